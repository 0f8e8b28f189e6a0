// Package server exposes the advisord HTTP API: dashboard data, account
// drilldowns, streaming chat, settings management, and MCP server
// registration. Errors are returned as a JSON envelope {"detail": ...} with
// conventional status mapping.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/advisordesk/advisord/agent"
	"github.com/advisordesk/advisord/conversations"
	"github.com/advisordesk/advisord/dashboard"
	"github.com/advisordesk/advisord/es"
	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/sessions"
	"github.com/advisordesk/advisord/settings"
)

// Server is the advisord HTTP API server.
type Server struct {
	engine       *gin.Engine
	data         *es.Client
	manager      *mcp.Manager
	settings     *settings.Store
	orchestrator *agent.Orchestrator
	sessions     sessions.Store
	transcript   *conversations.Store

	mainPage    *dashboard.MainPage
	alerts      *dashboard.Alerts
	accountNews *dashboard.AccountNews
	actionItems *dashboard.ActionItems
	emails      *dashboard.EmailDrafter

	logger    zerolog.Logger
	startedAt time.Time
}

// Config holds the server's collaborators.
type Config struct {
	Data         *es.Client
	Manager      *mcp.Manager
	Settings     *settings.Store
	Orchestrator *agent.Orchestrator
	Sessions     sessions.Store
	Transcript   *conversations.Store
	MainPage     *dashboard.MainPage
	Alerts       *dashboard.Alerts
	AccountNews  *dashboard.AccountNews
	ActionItems  *dashboard.ActionItems
	Emails       *dashboard.EmailDrafter
	Logger       zerolog.Logger
}

// New creates the HTTP server and registers all routes.
func New(cfg Config) *Server {
	s := &Server{
		data:         cfg.Data,
		manager:      cfg.Manager,
		settings:     cfg.Settings,
		orchestrator: cfg.Orchestrator,
		sessions:     cfg.Sessions,
		transcript:   cfg.Transcript,
		mainPage:     cfg.MainPage,
		alerts:       cfg.Alerts,
		accountNews:  cfg.AccountNews,
		actionItems:  cfg.ActionItems,
		emails:       cfg.Emails,
		logger:       cfg.Logger.With().Str("component", "httpServer").Logger(),
		startedAt:    time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/metrics/overview", s.handleMetricsOverview)
	s.engine.GET("/account/:account_id", s.handleAccountDetails)
	s.engine.GET("/account/:account_id/news-reports", s.handleAccountNewsReports)
	s.engine.POST("/agent/start_day", s.handleStartDay)
	s.engine.POST("/email/draft", s.handleEmailDraft)

	// gin matches the static /article/full segment ahead of :article_id.
	s.engine.GET("/article/full/:document_id", s.handleFullDocument)
	s.engine.GET("/article/:article_id", s.handleArticle)
	s.engine.GET("/report/:report_id", s.handleReport)

	s.engine.POST("/chat/query", s.handleChatQuery)
	s.engine.GET("/chat/sessions", s.handleChatSessions)
	s.engine.GET("/chat/sessions/:session_id/transcript", s.handleChatTranscript)

	s.engine.GET("/settings", s.handleGetSettings)
	s.engine.POST("/settings", s.handleUpdateSettings)
	s.engine.GET("/settings/logging", s.handleGetLogging)
	s.engine.PUT("/settings/logging", s.handleUpdateLogging)

	s.engine.POST("/servers", s.handleRegisterServer)
	s.engine.DELETE("/servers/:server_id", s.handleRemoveServer)
	s.engine.GET("/tools", s.handleListTools)

	s.engine.GET("/healthz", s.handleHealthz)
}

// Run serves the API on the given address, blocking until the listener
// fails.
func (s *Server) Run(addr string) error {
	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
	return s.engine.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLogger logs one line per request with method, path, status, and
// duration.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

// detail writes the error envelope with the given status.
func detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

// abortError maps a Go error onto the API's status conventions.
func abortError(c *gin.Context, err error) {
	var notFound *es.ErrNotFound
	switch {
	case errors.Is(err, mcp.ErrDuplicateServer):
		detail(c, http.StatusConflict, err.Error())
	case errors.Is(err, mcp.ErrServerNotFound), errors.As(err, &notFound):
		detail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, mcp.ErrUnreachable):
		detail(c, http.StatusBadGateway, err.Error())
	default:
		detail(c, http.StatusInternalServerError, err.Error())
	}
}

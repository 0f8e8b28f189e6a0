package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/advisordesk/advisord/logger"
	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/settings"
)

// handleGetSettings serves the settings document with API keys masked.
func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.SafeView())
}

// handleUpdateSettings replaces the settings document wholesale. Masked API
// keys in the incoming document keep their stored values. Enabled toggles
// take effect on the next turn without a restart.
func (s *Server) handleUpdateSettings(c *gin.Context) {
	var doc settings.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		detail(c, http.StatusBadRequest, "invalid settings document: "+err.Error())
		return
	}
	if err := s.settings.Replace(&doc); err != nil {
		detail(c, http.StatusBadRequest, "error updating settings: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, s.settings.SafeView())
}

// handleGetLogging serves the runtime log level.
func (s *Server) handleGetLogging(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"level": s.settings.LogLevel()})
}

// handleUpdateLogging changes the runtime log level and persists it.
func (s *Server) handleUpdateLogging(c *gin.Context) {
	var req struct {
		Level string `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Level == "" {
		detail(c, http.StatusBadRequest, "level is required")
		return
	}
	if err := logger.SetLevel(req.Level); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.settings.SetLogLevel(req.Level); err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": req.Level})
}

// handleRegisterServer registers an external MCP server: the connection is
// tested and the tool catalog discovered before anything is persisted.
func (s *Server) handleRegisterServer(c *gin.Context) {
	var req struct {
		ID                   string `json:"id"`
		Name                 string `json:"name"`
		URL                  string `json:"url"`
		APIKey               string `json:"apiKey"`
		Transport            string `json:"transport"`
		ConversationField    string `json:"conversationField"`
		ConversationLocation string `json:"conversationLocation"`
		UseForMainPage       bool   `json:"useForMainPage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		detail(c, http.StatusBadRequest, "Server ID is required.")
		return
	}
	if req.URL == "" {
		detail(c, http.StatusBadRequest, "Server URL is required.")
		return
	}

	cfg, err := s.manager.Register(c.Request.Context(), mcp.RegisterRequest{
		ID:                   req.ID,
		Name:                 req.Name,
		URL:                  req.URL,
		APIKey:               req.APIKey,
		Transport:            settings.TransportMode(req.Transport),
		ConversationField:    req.ConversationField,
		ConversationLocation: settings.ConversationLocation(req.ConversationLocation),
		UseForMainPage:       req.UseForMainPage,
	})
	if err != nil {
		abortError(c, err)
		return
	}
	cfg.APIKey = ""
	c.JSON(http.StatusOK, cfg)
}

// handleRemoveServer unregisters an MCP server.
func (s *Server) handleRemoveServer(c *gin.Context) {
	id := c.Param("server_id")
	if err := s.manager.Remove(id); err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Server " + id + " removed successfully."})
}

// handleListTools serves the assembled tool catalog across enabled servers.
func (s *Server) handleListTools(c *gin.Context) {
	bindings := s.manager.EnabledTools()
	tools := make([]gin.H, 0, len(bindings))
	for _, b := range bindings {
		tools = append(tools, gin.H{
			"name":        b.SafeName,
			"description": b.Definition.Description,
			"server":      b.ServerName,
			"server_id":   b.ServerID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"server_name": "MCP Servers",
		"tools":       tools,
	})
}

// handleHealthz reports liveness plus dependency status.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"sessions":       s.sessions.Len(),
		"servers":        s.manager.Statuses(),
	})
}

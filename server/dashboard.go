package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/dashboard"
	"github.com/advisordesk/advisord/es"
)

// handleMetricsOverview serves the dashboard headline metrics, optionally
// enriched with the news and reports panels.
func (s *Server) handleMetricsOverview(c *gin.Context) {
	includeNews := c.Query("include_news") == "true"
	includeReports := c.Query("include_reports") == "true"

	overview, err := s.data.MetricsOverview(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Metrics overview failed")
		overview = &es.Overview{}
	}

	out := gin.H{
		"total_accounts":  overview.TotalAccounts,
		"total_aum":       overview.TotalAUM,
		"total_news":      overview.TotalNews,
		"total_reports":   overview.TotalReports,
		"news_summary":    nil,
		"reports_summary": nil,
	}
	if includeNews {
		out["news_summary"] = s.mainPage.NewsSummary(c.Request.Context())
	}
	if includeReports {
		out["reports_summary"] = s.mainPage.ReportsSummary(c.Request.Context())
	}
	c.JSON(http.StatusOK, out)
}

// handleAccountDetails serves the account drilldown: holder info, holdings,
// and recent news for the held symbols.
func (s *Server) handleAccountDetails(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("account_id")

	account, err := s.data.AccountByID(ctx, accountID)
	if err != nil {
		abortError(c, err)
		return
	}
	holdings, err := s.data.HoldingsByAccount(ctx, accountID)
	if err != nil {
		abortError(c, err)
		return
	}
	symbols := lo.Uniq(lo.FilterMap(holdings, func(h es.Holding, _ int) (string, bool) {
		sym := strings.TrimSpace(h.Symbol)
		return sym, sym != ""
	}))
	news, err := s.data.NewsBySymbols(ctx, symbols, 10)
	if err != nil {
		s.logger.Warn().Str("account_id", accountID).Err(err).Msg("Relevant news lookup failed")
		news = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":            accountID,
		"account_name":          account.AccountHolderName,
		"state":                 account.State,
		"type":                  account.AccountType,
		"risk_profile":          account.RiskProfile,
		"total_portfolio_value": account.TotalPortfolioValue,
		"holdings":              holdings,
		"relevant_news":         news,
	})
}

// handleAccountNewsReports serves the per-holding news lookup for an
// account.
func (s *Server) handleAccountNewsReports(c *gin.Context) {
	result := s.accountNews.ForAccount(
		c.Request.Context(),
		c.Param("account_id"),
		queryInt(c, "time_period", dashboard.DefaultLookbackHours),
		c.DefaultQuery("time_unit", "hours"),
	)
	c.JSON(http.StatusOK, result)
}

// handleStartDay runs the start-of-day review: top accounts joined with
// negative news touching their holdings.
func (s *Server) handleStartDay(c *gin.Context) {
	result := s.actionItems.StartDay(
		c.Request.Context(),
		queryInt(c, "time_period", dashboard.DefaultActionItemHours),
		c.DefaultQuery("time_unit", "hours"),
	)
	c.JSON(http.StatusOK, result)
}

// handleEmailDraft drafts a portfolio update email for one account.
func (s *Server) handleEmailDraft(c *gin.Context) {
	var req struct {
		AccountID  string `json:"account_id"`
		TimePeriod int    `json:"time_period"`
		TimeUnit   string `json:"time_unit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccountID == "" {
		detail(c, http.StatusBadRequest, "account_id is required")
		return
	}

	email, err := s.emails.Draft(c.Request.Context(), req.AccountID, req.TimePeriod, req.TimeUnit)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

// handleArticle serves one article's content from the news index.
func (s *Server) handleArticle(c *gin.Context) {
	article, err := s.data.ArticleByID(c.Request.Context(), c.Param("article_id"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": article.Content})
}

// handleReport serves one report's content from the reports index.
func (s *Server) handleReport(c *gin.Context) {
	report, err := s.data.ReportByID(c.Request.Context(), c.Param("report_id"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": report.Content})
}

// handleFullDocument serves a raw document from a whitelisted index.
func (s *Server) handleFullDocument(c *gin.Context) {
	index := c.DefaultQuery("index", es.IndexNews)
	doc, err := s.data.RawDocument(c.Request.Context(), index, c.Param("document_id"))
	if err != nil {
		var notFound *es.ErrNotFound
		if errors.As(err, &notFound) {
			abortError(c, err)
			return
		}
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id": c.Param("document_id"),
		"index":       index,
		"document":    doc,
	})
}

// queryInt reads an integer query parameter, falling back on absence or a
// parse failure.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/advisordesk/advisord/agent"
)

// handleChatQuery streams an orchestrated chat turn as chunked plain text:
// a session-id line first, then text deltas interleaved with per-turn tool
// result blocks.
func (s *Server) handleChatQuery(c *gin.Context) {
	var req struct {
		Query     string `json:"query"`
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		detail(c, http.StatusBadRequest, "query is required")
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	emit := func(chunk string) error {
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	// Tool progress renders as status lines on the same stream. Errors
	// surface in-stream; the status line is already written.
	notifier := agent.StreamNotifier{Emit: emit}
	if err := s.orchestrator.StreamQuery(c.Request.Context(), req.Query, req.SessionID, emit, notifier); err != nil {
		s.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Chat turn failed")
	}
}

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/conversations"
)

type transcriptMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// handleChatSessions lists logged session ids, newest activity first.
func (s *Server) handleChatSessions(c *gin.Context) {
	if s.transcript == nil {
		detail(c, http.StatusServiceUnavailable, "transcript log is not configured")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			detail(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ids, err := s.transcript.Sessions(c.Request.Context(), limit)
	if err != nil {
		abortError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

// handleChatTranscript returns one session's logged turns in order.
func (s *Server) handleChatTranscript(c *gin.Context) {
	if s.transcript == nil {
		detail(c, http.StatusServiceUnavailable, "transcript log is not configured")
		return
	}

	sessionID := c.Param("session_id")
	msgs, err := s.transcript.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		abortError(c, err)
		return
	}
	if len(msgs) == 0 {
		detail(c, http.StatusNotFound, "no transcript for session "+sessionID)
		return
	}

	out := lo.Map(msgs, func(m conversations.Message, _ int) transcriptMessage {
		return transcriptMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolName:   m.ToolName,
			ToolCallID: m.ToolCallID,
			CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
		}
	})
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": out})
}

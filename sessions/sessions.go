// Package sessions holds live conversation state for the chat orchestrator.
// Sessions are in-memory only; the durable transcript lives in the
// conversations package. A session is continued by echoing its id on the next
// chat call and abandoned implicitly through idle expiry.
package sessions

import (
	"sync"
	"time"

	"github.com/advisordesk/advisord/llm"
)

// Continuity describes how a session's context is carried into a tool call
// against a particular server. Exactly one variant applies per server.
type Continuity interface {
	continuity()
}

// NativeSession means the server remembers history itself; the orchestrator
// threads the server's own conversation id through tool calls.
type NativeSession struct {
	ConversationID string
}

// ReplayedHistory means the backend is stateless; the orchestrator replays the
// accumulated transcript to the LLM on every turn.
type ReplayedHistory struct {
	Turns []llm.Message
}

func (NativeSession) continuity()   {}
func (ReplayedHistory) continuity() {}

// Session is one live conversation. Methods are safe for concurrent use,
// though turns within a session execute sequentially in practice.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	history      []llm.Message
	// serverConversations maps server id to that server's native
	// conversation id, for servers that track context themselves.
	serverConversations map[string]string
}

// LastActivity returns the time of the session's most recent use.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// History returns a copy of the accumulated transcript.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Append adds messages to the transcript and refreshes the activity clock.
func (s *Session) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	s.lastActivity = time.Now()
}

// SetServerConversation records a server's native conversation id.
func (s *Session) SetServerConversation(serverID, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serverConversations == nil {
		s.serverConversations = make(map[string]string)
	}
	s.serverConversations[serverID] = conversationID
}

// ServerConversation returns a server's native conversation id, if one has
// been observed.
func (s *Session) ServerConversation(serverID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.serverConversations[serverID]
	return id, ok
}

// ContinuityFor reports how context is carried for the given server: a native
// conversation id when the server has issued one, replayed history otherwise.
func (s *Session) ContinuityFor(serverID string) Continuity {
	if id, ok := s.ServerConversation(serverID); ok {
		return NativeSession{ConversationID: id}
	}
	return ReplayedHistory{Turns: s.History()}
}

package sessions

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxSessions caps memory usage; creating a session beyond the
	// cap evicts the oldest by last activity.
	DefaultMaxSessions = 100
	// DefaultIdleTimeout is how long an untouched session survives.
	DefaultIdleTimeout = time.Hour
)

// Store manages live conversation sessions.
type Store interface {
	// Create mints a new session with a fresh UUID id.
	Create() *Session

	// Get returns the session for id. Expired sessions are treated as
	// missing.
	Get(id string) (*Session, bool)

	// Remove drops a session.
	Remove(id string)

	// Sweep drops all sessions idle longer than the configured timeout and
	// returns how many were removed.
	Sweep() int

	// Len returns the number of live sessions.
	Len() int
}

// MemoryStore is the in-memory Store implementation.
type MemoryStore struct {
	maxSessions int
	idleTimeout time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates a session store. Zero values select the defaults.
func NewMemoryStore(maxSessions int, idleTimeout time.Duration, logger zerolog.Logger) *MemoryStore {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &MemoryStore{
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
		logger:      logger.With().Str("component", "sessions").Logger(),
		sessions:    make(map[string]*Session),
	}
}

// Create implements Store.
func (m *MemoryStore) Create() *Session {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		lastActivity: now,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.evictLocked(now)
	m.mu.Unlock()

	m.logger.Info().Str("session_id", sess.ID).Msg("Created conversation session")
	return sess
}

// Get implements Store.
func (m *MemoryStore) Get(id string) (*Session, bool) {
	now := time.Now()

	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok && now.Sub(sess.LastActivity()) > m.idleTimeout {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, false
	}
	sess.touch(now)
	return sess, true
}

// Remove implements Store.
func (m *MemoryStore) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Sweep implements Store.
func (m *MemoryStore) Sweep() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity()) > m.idleTimeout {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info().Int("removed", removed).Int("remaining", len(m.sessions)).Msg("Swept expired sessions")
	}
	return removed
}

// Len implements Store.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// evictLocked enforces the session cap, dropping oldest-by-activity first.
// Expired sessions go before live ones. Caller holds m.mu.
func (m *MemoryStore) evictLocked(now time.Time) {
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity()) > m.idleTimeout {
			delete(m.sessions, id)
		}
	}

	if len(m.sessions) <= m.maxSessions {
		return
	}

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.sessions[ids[i]].LastActivity().Before(m.sessions[ids[j]].LastActivity())
	})
	for _, id := range ids[:len(m.sessions)-m.maxSessions] {
		m.logger.Debug().Str("session_id", id).Msg("Evicting oldest session over cap")
		delete(m.sessions, id)
	}
}

var _ Store = (*MemoryStore)(nil)

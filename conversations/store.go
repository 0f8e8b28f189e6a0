// Package conversations persists the durable chat transcript: user turns,
// assistant answers, and tool invocations keyed by session id. The in-memory
// session store remains the source of truth for live context; this log exists
// for inspection after the fact.
package conversations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Message roles stored in the transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one transcript row.
type Message struct {
	ID         int64
	SessionID  string
	Role       string
	Content    string
	ToolName   string
	ToolCallID string
	CreatedAt  time.Time
}

// Store handles persistence of chat transcript messages.
type Store struct {
	db *sql.DB
}

// NewStore creates a transcript store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LogMessage appends one transcript row. Tool rows carry the tool name and
// call id; other roles leave them empty. Duplicate tool call ids within a
// session are ignored so crash-and-retry does not double-log.
func (s *Store) LogMessage(ctx context.Context, sessionID, role, content, toolName, toolCallID string) error {
	now := time.Now().Unix()
	query := sq.Insert("chat_log").
		Columns("session_id", "role", "content", "tool_name", "tool_call_id", "created_at").
		Values(sessionID, role, content, nullable(toolName), nullable(toolCallID), now)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if toolCallID != "" {
		// SQLite requires "OR IGNORE" to come after "INSERT", so we replace
		// "INSERT INTO" with "INSERT OR IGNORE INTO"
		queryStr = strings.Replace(queryStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	}

	_, err = s.db.ExecContext(ctx, queryStr, args...)
	return err
}

// ListBySession returns a session's transcript in insertion order.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Message, error) {
	query := sq.Select("id", "session_id", "role", "content", "tool_name", "tool_call_id", "created_at").
		From("chat_log").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("id ASC")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg       Message
			toolName  sql.NullString
			toolID    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &toolName, &toolID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		msg.ToolName = toolName.String
		msg.ToolCallID = toolID.String
		msg.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Sessions lists distinct session ids, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	query := sq.Select("session_id").
		From("chat_log").
		GroupBy("session_id").
		OrderBy("MAX(id) DESC").
		Limit(uint64(limit))

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

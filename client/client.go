// Package client is the HTTP client for the advisord API, used by the
// advisorctl command.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/advisordesk/advisord/settings"
)

// DefaultAddress is where a local advisord listens.
const DefaultAddress = "http://localhost:8000"

// Client talks to one advisord instance.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the given base URL. An empty address targets the
// local default.
func New(address string) *Client {
	if address == "" {
		address = DefaultAddress
	}
	return &Client{
		base: strings.TrimRight(address, "/"),
		// Long timeout: chat turns stream for a while.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// apiError is the server's {"detail": ...} envelope, surfaced as a Go error.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("advisord: %s (status %d)", e.Detail, e.Status)
}

// do runs one JSON round trip. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var envelope struct {
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Detail == "" {
		envelope.Detail = strings.TrimSpace(string(data))
	}
	return &apiError{Status: resp.StatusCode, Detail: envelope.Detail}
}

// Health returns the daemon's health document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Settings returns the safe settings view.
func (c *Client) Settings(ctx context.Context) (*settings.Document, error) {
	var doc settings.Document
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReplaceSettings uploads a whole settings document.
func (c *Client) ReplaceSettings(ctx context.Context, doc *settings.Document) (*settings.Document, error) {
	var updated settings.Document
	if err := c.do(ctx, http.MethodPost, "/settings", doc, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// LogLevel returns the runtime log level.
func (c *Client) LogLevel(ctx context.Context) (string, error) {
	var out struct {
		Level string `json:"level"`
	}
	if err := c.do(ctx, http.MethodGet, "/settings/logging", nil, &out); err != nil {
		return "", err
	}
	return out.Level, nil
}

// SetLogLevel changes the runtime log level.
func (c *Client) SetLogLevel(ctx context.Context, level string) error {
	return c.do(ctx, http.MethodPut, "/settings/logging", map[string]string{"level": level}, nil)
}

// RegisterServerRequest mirrors the POST /servers payload.
type RegisterServerRequest struct {
	ID                   string `json:"id"`
	Name                 string `json:"name,omitempty"`
	URL                  string `json:"url"`
	APIKey               string `json:"apiKey,omitempty"`
	Transport            string `json:"transport,omitempty"`
	ConversationField    string `json:"conversationField,omitempty"`
	ConversationLocation string `json:"conversationLocation,omitempty"`
	UseForMainPage       bool   `json:"useForMainPage,omitempty"`
}

// RegisterServer registers an external MCP server and returns the discovered
// configuration.
func (c *Client) RegisterServer(ctx context.Context, req RegisterServerRequest) (*settings.ServerConfig, error) {
	var cfg settings.ServerConfig
	if err := c.do(ctx, http.MethodPost, "/servers", req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RemoveServer unregisters an MCP server.
func (c *Client) RemoveServer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/servers/"+id, nil, nil)
}

// Tool is one catalog entry as served by GET /tools.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Server      string `json:"server"`
	ServerID    string `json:"server_id"`
}

// Tools returns the assembled catalog across enabled servers.
func (c *Client) Tools(ctx context.Context) ([]Tool, error) {
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// Sessions lists logged chat session ids, newest activity first. limit <= 0
// uses the server default.
func (c *Client) Sessions(ctx context.Context, limit int) ([]string, error) {
	path := "/chat/sessions"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out struct {
		Sessions []string `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// TranscriptMessage is one logged chat turn as served by the transcript
// endpoint.
type TranscriptMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// Transcript returns a session's logged turns in order.
func (c *Client) Transcript(ctx context.Context, sessionID string) ([]TranscriptMessage, error) {
	var out struct {
		Messages []TranscriptMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/"+sessionID+"/transcript", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Chat streams one chat turn, invoking emit for each chunk as it arrives.
// Returns the session id parsed from the stream's first line, so follow-up
// calls can continue the conversation.
func (c *Client) Chat(ctx context.Context, query, sessionID string, emit func(chunk string) error) (string, error) {
	payload := map[string]string{"query": query}
	if sessionID != "" {
		payload["session_id"] = sessionID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/query", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}

	gotSession := sessionID
	reader := bufio.NewReader(resp.Body)
	buf := make([]byte, 4096)
	var head strings.Builder
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			if gotSession == sessionID && head.Len() < 256 {
				head.WriteString(chunk)
				if id, ok := parseSessionLine(head.String()); ok {
					gotSession = id
				}
			}
			if emitErr := emit(chunk); emitErr != nil {
				return gotSession, emitErr
			}
		}
		if err == io.EOF {
			return gotSession, nil
		}
		if err != nil {
			return gotSession, fmt.Errorf("chat stream: %w", err)
		}
	}
}

// parseSessionLine extracts the id from the stream's "Session ID: <id>"
// opening line.
func parseSessionLine(head string) (string, bool) {
	const prefix = "Session ID: "
	if !strings.HasPrefix(head, prefix) {
		return "", false
	}
	rest := head[len(prefix):]
	end := strings.IndexByte(rest, '\n')
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// Package settings manages the persistent MCP server configuration document.
// The document is a flat JSON file mapping server id to server config, read and
// written wholesale with last-write-wins semantics. Logging preferences live in
// the same document so they can be changed through the settings API at runtime.
package settings

import (
	"time"
)

// TransportMode selects how a server is reached. The "-first" variants try the
// named transport and fall back to the other on connection failure.
type TransportMode string

const (
	TransportHTTP      TransportMode = "http"
	TransportSSE       TransportMode = "sse"
	TransportHTTPFirst TransportMode = "http-first"
	TransportSSEFirst  TransportMode = "sse-first"
)

// ConnectionStatus tracks the last known reachability of a server.
type ConnectionStatus string

const (
	StatusUnknown      ConnectionStatus = "unknown"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// ConversationLocation says where a server carries its native conversation id:
// extracted from tool results ("response") or injected into tool arguments
// ("params").
type ConversationLocation string

const (
	ConversationInResponse ConversationLocation = "response"
	ConversationInParams   ConversationLocation = "params"
)

// ToolConfig is one entry of a server's cached tool catalog.
type ToolConfig struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Enabled     bool           `json:"enabled"`
}

// ServerConfig is the persisted registration record for one MCP server.
type ServerConfig struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	URL                  string                `json:"url"`
	APIKey               string                `json:"api_key,omitempty"`
	Transport            TransportMode         `json:"transport"`
	Enabled              bool                  `json:"enabled"`
	Tools                map[string]ToolConfig `json:"tools"`
	LastConnected        *time.Time            `json:"last_connected,omitempty"`
	ConnectionStatus     ConnectionStatus      `json:"connection_status"`
	ConversationField    string                `json:"conversation_field,omitempty"`
	ConversationLocation ConversationLocation  `json:"conversation_location,omitempty"`
	UseForMainPage       bool                  `json:"use_for_main_page"`
}

// Clone returns a deep copy of the server config.
func (s *ServerConfig) Clone() *ServerConfig {
	out := *s
	if s.LastConnected != nil {
		t := *s.LastConnected
		out.LastConnected = &t
	}
	out.Tools = make(map[string]ToolConfig, len(s.Tools))
	for name, tool := range s.Tools {
		out.Tools[name] = tool.clone()
	}
	return &out
}

func (t ToolConfig) clone() ToolConfig {
	out := t
	out.Parameters = cloneMap(t.Parameters)
	return out
}

// LoggingConfig holds runtime-adjustable logging preferences.
type LoggingConfig struct {
	Level string `json:"level"`
}

// Document is the whole settings file.
type Document struct {
	Version   string                   `json:"version"`
	Servers   map[string]*ServerConfig `json:"servers"`
	Logging   LoggingConfig            `json:"logging"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := *d
	out.Servers = make(map[string]*ServerConfig, len(d.Servers))
	for id, srv := range d.Servers {
		out.Servers[id] = srv.Clone()
	}
	return &out
}

// cloneMap deep-copies a JSON-shaped map.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

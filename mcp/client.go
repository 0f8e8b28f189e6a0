// Package mcp implements tool catalog discovery and tool execution against
// Model Context Protocol servers, over streamable HTTP or SSE transports.
package mcp

import (
	"context"
	"time"
)

// DefaultCallTimeout bounds a single tool invocation.
const DefaultCallTimeout = 30 * time.Second

// ToolDefinition represents an MCP tool definition as discovered from a
// server's tools/list response.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolResult is the outcome of one tool invocation at the transport boundary.
// Transport failures never escape this package from the execution path; they
// are folded into an error-classified result so the model can react.
type ToolResult struct {
	// Content is the flattened text content of the result.
	Content string
	// Raw is the decoded structured payload when the content parses as
	// JSON, used for conversation-id extraction. Nil otherwise.
	Raw any
	// IsError is the structured success/error tag assigned by the server
	// or, for transport failures, by the client.
	IsError bool
}

// MCPClient is the interface for interacting with one MCP server.
type MCPClient interface {
	// Start initializes and starts the MCP client connection.
	Start(ctx context.Context) error

	// ListTools returns all tools available from the MCP server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// CallTool invokes a tool on the MCP server with the given arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)

	// Ping checks that the server is reachable.
	Ping(ctx context.Context) error

	// Close closes the connection to the MCP server.
	Close() error
}

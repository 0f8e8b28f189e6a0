package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/tools/schemas"
	"github.com/rs/zerolog"
)

// LocalClient exposes the registry through the same interface as a remote MCP
// server, so the built-in tools join the catalog without a network hop.
type LocalClient struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewLocalClient wraps a registry as an in-process tool server.
func NewLocalClient(registry *Registry, logger zerolog.Logger) *LocalClient {
	return &LocalClient{
		registry: registry,
		logger:   logger.With().Str("component", "local_tools").Logger(),
	}
}

// Start is a no-op; the local server has no transport to bring up.
func (c *LocalClient) Start(ctx context.Context) error {
	return nil
}

// ListTools returns the built-in tool catalog.
func (c *LocalClient) ListTools(ctx context.Context) ([]mcp.ToolDefinition, error) {
	all := schemas.All()
	tools := make([]mcp.ToolDefinition, 0, len(all))
	for name, schema := range all {
		tools = append(tools, mcp.ToolDefinition{
			Name:        name,
			Description: schema.Description,
			InputSchema: schema.Schema,
		})
	}
	return tools, nil
}

// CallTool executes a built-in tool. Handler failures come back as
// error-classified results, matching remote server behavior.
func (c *LocalClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	result, err := c.registry.Handle(ctx, name, args)
	if err != nil {
		return &mcp.ToolResult{
			Content: fmt.Sprintf("Error: %v", err),
			IsError: true,
		}, nil
	}

	content, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result of %s: %w", name, err)
	}
	return &mcp.ToolResult{
		Content: string(content),
		Raw:     result,
	}, nil
}

// Ping always succeeds; the local server is in-process.
func (c *LocalClient) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (c *LocalClient) Close() error {
	return nil
}

var _ mcp.MCPClient = (*LocalClient)(nil)

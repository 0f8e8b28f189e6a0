// Package tools implements the built-in local tool server: a registry of
// handlers over the financial indices, exposed in-process through the same
// client interface as remote MCP servers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// ToolHandler handles one tool call.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// Registry maps tool names to handlers.
type Registry struct {
	handlers map[string]ToolHandler
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]ToolHandler),
		logger:   logger.With().Str("component", "tool_registry").Logger(),
	}
}

// Register registers a handler for a tool name.
func (r *Registry) Register(name string, h ToolHandler) {
	r.logger.Debug().Str("name", name).Msg("Registering tool handler")
	r.handlers[name] = h
}

// Handle dispatches a tool call.
func (r *Registry) Handle(ctx context.Context, toolName string, args map[string]any) (any, error) {
	h, ok := r.handlers[toolName]
	if !ok {
		r.logger.Error().Str("tool", toolName).Msg("Unknown tool requested")
		return nil, fmt.Errorf("unknown tool: %s", toolName)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments for %s: %w", toolName, err)
	}

	r.logger.Info().Str("tool", toolName).Msg("Executing tool")
	result, err := h(ctx, raw)
	if err != nil {
		r.logger.Warn().Str("tool", toolName).Err(err).Msg("Tool execution failed")
		return nil, err
	}
	return result, nil
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

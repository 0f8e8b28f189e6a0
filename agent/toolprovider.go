package agent

import (
	"context"
	"fmt"

	"github.com/advisordesk/advisord/llm"
	"github.com/advisordesk/advisord/mcp"
	"github.com/samber/lo"
)

// ToolBroker is the orchestrator's view of the MCP layer: the enabled
// catalog, safe-name resolution, and execution. *mcp.Manager satisfies it.
type ToolBroker interface {
	EnabledTools() []mcp.ToolBinding
	ResolveTool(safeName string) (serverID, toolName string, ok bool)
	ExecuteTool(ctx context.Context, inv mcp.Invocation) *mcp.InvocationResult
}

var _ ToolBroker = (*mcp.Manager)(nil)

// specsFromBindings converts the enabled catalog into the provider-neutral
// function-calling contract. Safe names are advertised; the broker maps them
// back to the originals at execution time.
func specsFromBindings(bindings []mcp.ToolBinding) []llm.ToolSpec {
	return lo.Map(bindings, func(b mcp.ToolBinding, _ int) llm.ToolSpec {
		return llm.ToolSpec{
			Name:        b.SafeName,
			Description: b.Definition.Description,
			Schema:      schemaFromMap(b.Definition.InputSchema),
		}
	})
}

// schemaFromMap lifts a raw JSON schema into llm.ToolSchema. Unknown shapes
// degrade to an empty object schema rather than failing the catalog.
func schemaFromMap(raw map[string]any) llm.ToolSchema {
	schema := llm.ToolSchema{Type: "object"}
	if raw == nil {
		return schema
	}

	if t, ok := raw["type"].(string); ok && t != "" {
		schema.Type = t
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	switch req := raw["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	extra := map[string]any{}
	for k, v := range raw {
		if k != "type" && k != "properties" && k != "required" {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		schema.ExtraFields = extra
	}
	return schema
}

// validateToolArgs checks required parameters against the advertised schema.
// Best-effort: a missing required argument is an error, anything else passes.
func validateToolArgs(spec llm.ToolSchema, args map[string]any) error {
	for _, name := range spec.Required {
		val, ok := args[name]
		if !ok || val == nil {
			return fmt.Errorf("missing required parameter %q", name)
		}
		if s, ok := val.(string); ok && s == "" {
			return fmt.Errorf("required parameter %q cannot be empty", name)
		}
	}
	return nil
}

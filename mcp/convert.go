package mcp

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
)

// protocolVersions are tried in order when a server rejects the initialize
// handshake. Older servers predate the current protocol revision.
var protocolVersions = []string{
	mcp.LATEST_PROTOCOL_VERSION,
	"2025-06-18",
	"2024-11-05",
}

const (
	clientName    = "advisord"
	clientVersion = "1.0.0"
)

// toolDefinitionsFromMCP converts mcp-go tool records into ToolDefinitions.
func toolDefinitionsFromMCP(tools []mcp.Tool) []ToolDefinition {
	return lo.Map(tools, func(tool mcp.Tool, _ int) ToolDefinition {
		inputSchema := make(map[string]any)
		inputSchema["type"] = tool.InputSchema.Type
		if tool.InputSchema.Properties != nil {
			inputSchema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			inputSchema["$defs"] = tool.InputSchema.Defs
		}

		return ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema,
		}
	})
}

// toolResultFromMCP flattens an mcp-go call result into a ToolResult,
// preserving the server's error tag and decoding JSON content for
// conversation-id extraction.
func toolResultFromMCP(result *mcp.CallToolResult) *ToolResult {
	var texts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, textContent.Text)
		} else if contentStr := mcp.GetTextFromContent(content); contentStr != "" {
			texts = append(texts, contentStr)
		}
	}

	out := &ToolResult{
		Content: strings.Join(texts, "\n"),
		IsError: result.IsError,
	}

	var raw any
	if err := json.Unmarshal([]byte(out.Content), &raw); err == nil {
		out.Raw = raw
	}
	return out
}

// transportError wraps a transport-level failure as an error-classified
// result.
func transportError(err error) *ToolResult {
	return &ToolResult{
		Content: err.Error(),
		IsError: true,
	}
}

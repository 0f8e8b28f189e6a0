package ollama

import (
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/llm"
)

func toMessages(msgs []llm.Message) []api.Message {
	return lo.Map(msgs, func(msg llm.Message, _ int) api.Message {
		return toMessage(msg)
	})
}

// toMessage flattens one message. Text blocks join into the content string,
// tool-use blocks become tool calls, and tool results fold into the content
// since the loop replays them on the user turn.
func toMessage(msg llm.Message) api.Message {
	var parts []string
	var calls []api.ToolCall

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			parts = append(parts, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args := make(api.ToolCallFunctionArguments, len(block.ToolUse.Input))
			for k, v := range block.ToolUse.Input {
				args[k] = v
			}
			calls = append(calls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      block.ToolUse.Name,
					Arguments: args,
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				parts = append(parts, block.ToolResult.Content)
			}
		}
	}

	return api.Message{
		Role:      string(msg.Role),
		Content:   strings.Join(parts, "\n"),
		ToolCalls: calls,
	}
}

// toTools maps tool specs onto Ollama's typed schema. Only the property
// type survives the conversion; nested schema keywords are out of scope for
// the models served this way.
func toTools(specs []llm.ToolSpec) []api.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		props := make(map[string]api.ToolProperty, len(spec.Schema.Properties))
		for name, v := range spec.Schema.Properties {
			prop := api.ToolProperty{Type: []string{"string"}}
			if m, ok := v.(map[string]any); ok {
				if t, ok := m["type"].(string); ok {
					prop.Type = []string{t}
				}
			}
			props[name] = prop
		}
		return api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       spec.Schema.Type,
					Properties: props,
					Required:   spec.Schema.Required,
				},
			},
		}
	})
}

// fromToolCall synthesizes a tool-use ID since Ollama does not assign one.
func fromToolCall(call api.ToolCall) *llm.ToolUseBlock {
	input := make(map[string]any, len(call.Function.Arguments))
	for k, v := range call.Function.Arguments {
		input[k] = v
	}
	return &llm.ToolUseBlock{
		ID:    fmt.Sprintf("tool_%s", call.Function.Name),
		Name:  call.Function.Name,
		Input: input,
	}
}

package openai

import (
	"encoding/json"
	"strings"

	sdk "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/llm"
)

func toChatMessages(msgs []llm.Message) []sdk.ChatCompletionMessage {
	return lo.Map(msgs, func(msg llm.Message, _ int) sdk.ChatCompletionMessage {
		return toChatMessage(msg)
	})
}

// toChatMessage flattens one message. Text blocks join into a single
// content string, tool-use blocks become function tool calls, and tool
// results fold into the content since the loop replays them on the user
// turn.
func toChatMessage(msg llm.Message) sdk.ChatCompletionMessage {
	role := sdk.ChatMessageRoleUser
	switch msg.Role {
	case llm.RoleAssistant:
		role = sdk.ChatMessageRoleAssistant
	case llm.RoleSystem:
		role = sdk.ChatMessageRoleSystem
	}

	var parts []string
	var calls []sdk.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			parts = append(parts, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args, err := json.Marshal(block.ToolUse.Input)
			if err != nil {
				args = []byte("{}")
			}
			calls = append(calls, sdk.ToolCall{
				ID:   block.ToolUse.ID,
				Type: sdk.ToolTypeFunction,
				Function: sdk.FunctionCall{
					Name:      block.ToolUse.Name,
					Arguments: string(args),
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				parts = append(parts, block.ToolResult.Content)
			}
		}
	}

	return sdk.ChatCompletionMessage{
		Role:      role,
		Content:   strings.Join(parts, "\n"),
		ToolCalls: calls,
	}
}

func toTools(specs []llm.ToolSpec) []sdk.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) sdk.Tool {
		params := map[string]any{
			"type":       spec.Schema.Type,
			"properties": spec.Schema.Properties,
		}
		if len(spec.Schema.Required) > 0 {
			params["required"] = spec.Schema.Required
		}
		for k, v := range spec.Schema.ExtraFields {
			params[k] = v
		}
		return sdk.Tool{
			Type: sdk.ToolTypeFunction,
			Function: &sdk.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		}
	})
}

func fromToolCall(call sdk.ToolCall) *llm.ToolUseBlock {
	input := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
			input = map[string]any{}
		}
	}
	return &llm.ToolUseBlock{
		ID:    call.ID,
		Name:  call.Function.Name,
		Input: input,
	}
}

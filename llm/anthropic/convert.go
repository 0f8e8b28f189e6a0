package anthropic

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/samber/lo"

	"github.com/advisordesk/advisord/llm"
)

func toMessageParams(msgs []llm.Message) []sdk.MessageParam {
	return lo.Map(msgs, func(msg llm.Message, _ int) sdk.MessageParam {
		return toMessageParam(msg)
	})
}

func toMessageParam(msg llm.Message) sdk.MessageParam {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			blocks = append(blocks, sdk.NewTextBlock(block.Text))
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				blocks = append(blocks, sdk.NewToolUseBlock(
					block.ToolUse.ID, block.ToolUse.Input, block.ToolUse.Name))
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				blocks = append(blocks, sdk.NewToolResultBlock(
					block.ToolResult.ID, block.ToolResult.Content, block.ToolResult.IsError))
			}
		}
	}
	if msg.Role == llm.RoleAssistant {
		return sdk.NewAssistantMessage(blocks...)
	}
	return sdk.NewUserMessage(blocks...)
}

func toToolParams(specs []llm.ToolSpec) []sdk.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) sdk.ToolUnionParam {
		return sdk.ToolUnionParam{OfTool: &sdk.ToolParam{
			Name:        spec.Name,
			Description: sdk.String(spec.Description),
			InputSchema: sdk.ToolInputSchemaParam{
				Type:        "object",
				Properties:  spec.Schema.Properties,
				Required:    spec.Schema.Required,
				ExtraFields: spec.Schema.ExtraFields,
			},
		}}
	})
}

// decodeToolInput round-trips the SDK's raw tool input through JSON into a
// plain map. A malformed payload yields an empty map rather than an error;
// argument validation happens downstream against the tool schema.
func decodeToolInput(raw any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil || input == nil {
		return map[string]any{}
	}
	return input
}

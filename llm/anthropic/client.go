// Package anthropic adapts the official Anthropic SDK onto llm.Client.
package anthropic

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/advisordesk/advisord/llm"
)

// Client calls the Anthropic Messages API.
type Client struct {
	api    *sdk.Client
	logger zerolog.Logger
}

func New(apiKey string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	api := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Client{api: &api, logger: logger}, nil
}

func (c *Client) params(req *llm.Request) sdk.MessageNewParams {
	return sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toMessageParams(req.Messages),
		System:    systemBlocks(req.System),
		Tools:     toToolParams(req.Tools),
	}
}

// Synchronous implements llm.Client.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("anthropic: request is required")
	}

	msg, err := c.api.Messages.New(ctx, c.params(req))
	if err != nil {
		return nil, err
	}

	content := make([]llm.ContentBlock, 0, len(msg.Content))
	for _, union := range msg.Content {
		switch block := union.AsAny().(type) {
		case sdk.TextBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: block.Text,
			})
		case sdk.ToolUseBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: decodeToolInput(block.Input),
				},
			})
		}
	}

	usage := &llm.Usage{
		InputTokens:              msg.Usage.InputTokens,
		OutputTokens:             msg.Usage.OutputTokens,
		CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
	}
	c.logCacheStats(usage)

	return &llm.Response{
		Content:    content,
		Usage:      usage,
		StopReason: string(msg.StopReason),
	}, nil
}

// Stream implements llm.Client.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("anthropic: request is required")
	}
	return newStream(c.api.Messages.NewStreaming(ctx, c.params(req)), c.logger), nil
}

// systemBlocks wraps the system prompt with an ephemeral cache_control
// marker. Anthropic caches the full prefix up to the marked block, so the
// tool contract rides along with the system prompt on repeat turns.
func systemBlocks(prompt string) []sdk.TextBlockParam {
	return []sdk.TextBlockParam{
		{Text: prompt, CacheControl: sdk.NewCacheControlEphemeralParam()},
	}
}

func (c *Client) logCacheStats(usage *llm.Usage) {
	if usage.CacheCreationInputTokens == 0 && usage.CacheReadInputTokens == 0 {
		return
	}
	c.logger.Debug().
		Int64("input_tokens", usage.InputTokens).
		Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
		Int64("cache_read_tokens", usage.CacheReadInputTokens).
		Msg("Prompt cache stats")
}

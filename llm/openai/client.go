// Package openai adapts the go-openai SDK onto llm.Client. It also serves
// OpenAI-compatible gateways via a custom base URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/advisordesk/advisord/llm"
)

// The chat completions API does not surface Retry-After on 429s, so rate
// limits back off by a fixed default.
const defaultRetryAfter = 60 * time.Second

// Client calls the OpenAI chat completions API.
type Client struct {
	api   *sdk.Client
	model string // fallback when the request names no model
}

// New builds a Client. baseURL and organization are optional; model is the
// fallback used when a request does not name one.
func New(apiKey, baseURL, model, organization string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}

	cfg := sdk.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if organization != "" {
		cfg.OrgID = organization
	}

	return &Client{api: sdk.NewClientWithConfig(cfg), model: model}, nil
}

func (c *Client) buildRequest(req *llm.Request) (sdk.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return sdk.ChatCompletionRequest{}, fmt.Errorf("openai: model is required")
	}

	out := sdk.ChatCompletionRequest{
		Model:    model,
		Messages: toChatMessages(req.Messages),
	}
	// OpenAI takes the system prompt as a leading system-role message.
	if req.System != "" {
		out.Messages = append([]sdk.ChatCompletionMessage{{
			Role:    sdk.ChatMessageRoleSystem,
			Content: req.System,
		}}, out.Messages...)
	}
	if len(req.Tools) > 0 {
		out.Tools = toTools(req.Tools)
		out.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	return out, nil
}

// Synchronous implements llm.Client.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("openai: request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	choice := resp.Choices[0]
	content := make([]llm.ContentBlock, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, call := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: fromToolCall(call),
		})
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
		StopReason: stopReason(choice.FinishReason),
	}, nil
}

// Stream implements llm.Client.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("openai: request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true

	src, err := c.api.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	return newStream(src), nil
}

func stopReason(reason sdk.FinishReason) string {
	switch reason {
	case sdk.FinishReasonLength:
		return "max_tokens"
	case sdk.FinishReasonToolCalls:
		return "tool_calls"
	default:
		return "stop"
	}
}

// convertError normalizes SDK failures into the llm error taxonomy so the
// retry layer can classify them.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *sdk.APIError
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("openai call failed", err)
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		after := defaultRetryAfter
		return llm.NewRateLimitError(
			fmt.Sprintf("openai rate limit: %s", apiErr.Message), &after, err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError(
			fmt.Sprintf("openai request too large: %s", apiErr.Message), err)
	case http.StatusBadRequest:
		return &llm.Error{
			Type:        llm.ErrorTypeInvalidRequest,
			Message:     fmt.Sprintf("openai invalid request: %s", apiErr.Message),
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("openai server error: %s", apiErr.Message),
			Retryable:   true,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("openai error: %s", apiErr.Message),
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	}
}

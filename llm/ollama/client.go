// Package ollama adapts the Ollama API client onto llm.Client for locally
// hosted models.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/advisordesk/advisord/llm"
)

// Client calls a local or remote Ollama server.
type Client struct {
	api   *api.Client
	model string // fallback when the request names no model
}

// New builds a Client. An empty host falls back to OLLAMA_HOST or the
// default localhost endpoint.
func New(host, model string) (*Client, error) {
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: client from environment: %w", err)
		}
		return &Client{api: c, model: model}, nil
	}

	base, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host: %w", err)
	}
	return &Client{api: api.NewClient(base, &http.Client{}), model: model}, nil
}

func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

func (c *Client) buildRequest(req *llm.Request, streaming bool) (*api.ChatRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}

	msgs := toMessages(req.Messages)
	// The system prompt rides as a leading system-role message.
	if req.System != "" {
		msgs = append([]api.Message{{Role: "system", Content: req.System}}, msgs...)
	}

	out := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &streaming,
		Options:  map[string]any{},
	}
	if len(req.Tools) > 0 {
		out.Tools = toTools(req.Tools)
	}
	if req.MaxTokens > 0 {
		out.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		out.Options["temperature"] = *req.Temperature
	}
	return out, nil
}

// Synchronous implements llm.Client.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("ollama: request is required")
	}

	chatReq, err := c.buildRequest(req, false)
	if err != nil {
		return nil, err
	}

	var last api.ChatResponse
	err = c.api.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: chat request failed: %w", err)
	}

	content := make([]llm.ContentBlock, 0, 1+len(last.Message.ToolCalls))
	if last.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: last.Message.Content,
		})
	}
	for _, call := range last.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: fromToolCall(call),
		})
	}

	stopReason := "end_turn"
	if last.Done {
		stopReason = "stop"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(last.PromptEvalCount),
			OutputTokens: int64(last.EvalCount),
		},
		StopReason: stopReason,
	}, nil
}

// Stream implements llm.Client.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("ollama: request is required")
	}

	chatReq, err := c.buildRequest(req, true)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, c.api, chatReq), nil
}

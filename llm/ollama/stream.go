package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ollama/ollama/api"

	"github.com/advisordesk/advisord/llm"
)

// stream bridges Ollama's push-style Chat callback onto the pull-based
// llm.Stream. A goroutine runs the chat and feeds translated events into a
// channel; Next receives from it. Close cancels the goroutine's context.
type stream struct {
	events  chan *llm.StreamEvent
	errc    chan error
	cancel  context.CancelFunc
	current *llm.StreamEvent
	err     error
}

func newStream(ctx context.Context, client *api.Client, req *api.ChatRequest) *stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		events: make(chan *llm.StreamEvent, 16),
		errc:   make(chan error, 1),
		cancel: cancel,
	}
	go s.run(ctx, client, req)
	return s
}

// Next implements llm.Stream.
func (s *stream) Next() bool {
	ev, ok := <-s.events
	if !ok {
		select {
		case err := <-s.errc:
			s.err = err
		default:
		}
		return false
	}
	s.current = ev
	return true
}

// Event implements llm.Stream.
func (s *stream) Event() *llm.StreamEvent {
	return s.current
}

// Err implements llm.Stream.
func (s *stream) Err() error {
	return s.err
}

// Close implements llm.Stream.
func (s *stream) Close() error {
	s.cancel()
	return nil
}

func (s *stream) run(ctx context.Context, client *api.Client, req *api.ChatRequest) {
	defer close(s.events)

	if !s.send(ctx, &llm.StreamEvent{Type: llm.StreamEventTypeStart}) {
		return
	}

	var tool *llm.ToolUseBlock
	firstText := true

	err := client.Chat(ctx, req, func(resp api.ChatResponse) error {
		// Ollama streams incremental tokens, not cumulative content.
		if resp.Message.Content != "" {
			eventType := llm.StreamEventTypeContentDelta
			if firstText {
				eventType = llm.StreamEventTypeContentBlock
				firstText = false
			}
			if !s.send(ctx, &llm.StreamEvent{
				Type:  eventType,
				Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: resp.Message.Content},
			}) {
				return ctx.Err()
			}
		}

		for _, call := range resp.Message.ToolCalls {
			if tool == nil || tool.Name != call.Function.Name {
				tool = &llm.ToolUseBlock{
					ID:    fmt.Sprintf("tool_%s", call.Function.Name),
					Name:  call.Function.Name,
					Input: map[string]any{},
				}
				if !s.send(ctx, &llm.StreamEvent{
					Type:  llm.StreamEventTypeContentBlock,
					Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolUse, ToolUse: tool},
				}) {
					return ctx.Err()
				}
			}
			// Arguments arrive as partial maps; merge them as they come.
			if len(call.Function.Arguments) > 0 {
				for k, v := range call.Function.Arguments {
					tool.Input[k] = v
				}
				if merged, err := json.Marshal(tool.Input); err == nil {
					if !s.send(ctx, &llm.StreamEvent{
						Type:  llm.StreamEventTypeContentDelta,
						Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: string(merged)},
					}) {
						return ctx.Err()
					}
				}
			}
		}

		if resp.Done {
			usage := &llm.Usage{
				InputTokens:  int64(resp.PromptEvalCount),
				OutputTokens: int64(resp.EvalCount),
			}
			if !s.send(ctx, &llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: usage}) {
				return ctx.Err()
			}
			if !s.send(ctx, &llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: usage, Done: true}) {
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		s.errc <- err
	}
}

func (s *stream) send(ctx context.Context, ev *llm.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

package openai

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/advisordesk/advisord/llm"
)

// stream translates chat completion chunks into llm.StreamEvents on demand.
// One chunk can yield several events, so translated events queue up and are
// handed out one per Next call.
type stream struct {
	src *sdk.ChatCompletionStream

	queue   []*llm.StreamEvent
	current *llm.StreamEvent
	err     error
	done    bool

	tool     *llm.ToolUseBlock
	inputBuf strings.Builder
	usage    *llm.Usage
}

func newStream(src *sdk.ChatCompletionStream) *stream {
	return &stream{
		src:   src,
		queue: []*llm.StreamEvent{{Type: llm.StreamEventTypeStart}},
	}
}

// Next implements llm.Stream. Queued events drain before the done flag is
// consulted so nothing translated ahead of a stop chunk is lost.
func (s *stream) Next() bool {
	for {
		if len(s.queue) > 0 {
			s.current = s.queue[0]
			s.queue = s.queue[1:]
			return true
		}
		if s.done || s.err != nil {
			return false
		}

		chunk, err := s.src.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			s.done = true
			continue
		}
		s.translate(chunk)
	}
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
	s.done = true
	if s.src != nil {
		return s.src.Close()
	}
	return nil
}

func (s *stream) translate(chunk sdk.ChatCompletionStreamResponse) {
	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		s.push(&llm.StreamEvent{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: choice.Delta.Content},
		})
	}

	for _, call := range choice.Delta.ToolCalls {
		if call.Index == nil {
			continue
		}
		// A new call ID closes out the call being accumulated.
		if call.ID != "" && (s.tool == nil || s.tool.ID != call.ID) {
			s.finishTool()
			s.tool = &llm.ToolUseBlock{
				ID:    call.ID,
				Name:  call.Function.Name,
				Input: map[string]any{},
			}
			s.inputBuf.Reset()
			s.push(&llm.StreamEvent{
				Type:  llm.StreamEventTypeContentBlock,
				Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolUse, ToolUse: s.tool},
			})
		}
		if call.Function.Arguments != "" {
			s.inputBuf.WriteString(call.Function.Arguments)
			s.push(&llm.StreamEvent{
				Type:  llm.StreamEventTypeContentDelta,
				Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: call.Function.Arguments},
			})
		}
	}

	if choice.FinishReason != "" {
		s.finishTool()
		if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
			s.usage = &llm.Usage{
				InputTokens:  int64(chunk.Usage.PromptTokens),
				OutputTokens: int64(chunk.Usage.CompletionTokens),
			}
		}
		s.push(&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: s.usage})
		s.push(&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: s.usage, Done: true})
		s.done = true
	}
}

// finishTool parses the accumulated argument JSON into the open tool call.
func (s *stream) finishTool() {
	if s.tool == nil {
		return
	}
	input := map[string]any{}
	if s.inputBuf.Len() > 0 {
		if err := json.Unmarshal([]byte(s.inputBuf.String()), &input); err != nil {
			input = map[string]any{}
		}
	}
	s.tool.Input = input
	s.inputBuf.Reset()
	s.tool = nil
}

func (s *stream) push(ev *llm.StreamEvent) {
	s.queue = append(s.queue, ev)
}

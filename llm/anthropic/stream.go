package anthropic

import (
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/rs/zerolog"

	"github.com/advisordesk/advisord/llm"
)

// stream translates the SDK's SSE events into llm.StreamEvents on demand.
// One SDK event can yield zero or more llm events, so translated events are
// queued and handed out one per Next call.
type stream struct {
	src    *ssestream.Stream[sdk.MessageStreamEventUnion]
	logger zerolog.Logger

	queue   []*llm.StreamEvent
	current *llm.StreamEvent
	err     error
	done    bool

	tool     *llm.ToolUseBlock
	inputBuf strings.Builder
	usage    *llm.Usage
}

func newStream(src *ssestream.Stream[sdk.MessageStreamEventUnion], logger zerolog.Logger) *stream {
	return &stream{
		src:    src,
		logger: logger,
		queue:  []*llm.StreamEvent{{Type: llm.StreamEventTypeStart}},
	}
}

// Next implements llm.Stream.
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
		if !s.src.Next() {
			s.err = s.src.Err()
			s.done = true
			continue
		}
		s.translate(s.src.Current())
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

func (s *stream) translate(event sdk.MessageStreamEventUnion) {
	switch evt := event.AsAny().(type) {
	case sdk.ContentBlockStartEvent:
		block, ok := evt.ContentBlock.AsAny().(sdk.ToolUseBlock)
		if !ok {
			return
		}
		s.tool = &llm.ToolUseBlock{
			ID:    block.ID,
			Name:  block.Name,
			Input: map[string]any{},
		}
		s.inputBuf.Reset()
		s.push(&llm.StreamEvent{
			Type:  llm.StreamEventTypeContentBlock,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolUse, ToolUse: s.tool},
		})

	case sdk.ContentBlockDeltaEvent:
		switch d := evt.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if d.Text != "" {
				s.push(&llm.StreamEvent{
					Type:  llm.StreamEventTypeContentDelta,
					Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: d.Text},
				})
			}
		case sdk.InputJSONDelta:
			if s.tool != nil && d.PartialJSON != "" {
				s.inputBuf.WriteString(d.PartialJSON)
				s.push(&llm.StreamEvent{
					Type:  llm.StreamEventTypeContentDelta,
					Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: d.PartialJSON},
				})
			}
		}

	case sdk.ContentBlockStopEvent:
		s.finishTool()

	case sdk.MessageDeltaEvent:
		s.usage = &llm.Usage{
			InputTokens:              evt.Usage.InputTokens,
			OutputTokens:             evt.Usage.OutputTokens,
			CacheCreationInputTokens: evt.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     evt.Usage.CacheReadInputTokens,
		}
		if s.usage.CacheCreationInputTokens > 0 || s.usage.CacheReadInputTokens > 0 {
			s.logger.Debug().
				Int64("input_tokens", s.usage.InputTokens).
				Int64("cache_creation_tokens", s.usage.CacheCreationInputTokens).
				Int64("cache_read_tokens", s.usage.CacheReadInputTokens).
				Msg("Prompt cache stats (stream)")
		}

	case sdk.MessageStopEvent:
		s.finishTool()
		s.push(&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: s.usage})
		s.push(&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: s.usage, Done: true})
		s.done = true
	}
}

// finishTool parses the accumulated input JSON into the open tool-use block.
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

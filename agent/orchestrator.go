// Package agent drives the chat turn loop: it sends the conversation plus the
// enabled tool catalog to the LLM, executes requested tool calls against
// their owning servers, feeds results back, and streams text to the caller.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/advisordesk/advisord/llm"
	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/sessions"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// DefaultMaxTurns bounds tool round-trips within one user query.
	DefaultMaxTurns = 5
	// defaultMaxTokens caps each completion.
	defaultMaxTokens = 2000
	// defaultTemperature is used for all chat completions.
	defaultTemperature = 0.7
)

// StreamFunc receives text chunks as they are produced. Returning an error
// aborts the turn; the session keeps everything appended so far.
type StreamFunc func(chunk string) error

// TranscriptLogger records chat turns durably. Logging is best-effort: a
// failure must never fail the turn.
type TranscriptLogger interface {
	LogMessage(ctx context.Context, sessionID, role, content, toolName, toolCallID string) error
}

// Orchestrator runs multi-turn tool-calling conversations.
type Orchestrator struct {
	broker      ToolBroker
	clients     ClientSource
	sessions    sessions.Store
	transcript  TranscriptLogger
	notifier    Notifier
	system      string
	maxTurns    int
	callTimeout time.Duration
	logger      zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTranscript attaches a durable transcript log.
func WithTranscript(t TranscriptLogger) Option {
	return func(o *Orchestrator) { o.transcript = t }
}

// WithNotifier attaches a tool progress consumer.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithSystemPrompt overrides the advisor system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) {
		if prompt != "" {
			o.system = prompt
		}
	}
}

// WithMaxTurns overrides the tool round-trip ceiling.
func WithMaxTurns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

// WithCallTimeout bounds each LLM round-trip. Zero leaves the round-trip on
// the request's own deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

const defaultSystemPrompt = "You are a financial advisor assistant. You help advisors review " +
	"client accounts, holdings, market news and analyst reports. Use the available tools to " +
	"ground every answer in real portfolio data, and cite account ids and symbols when you do."

// NewOrchestrator wires the turn loop to its collaborators.
func NewOrchestrator(broker ToolBroker, clients ClientSource, store sessions.Store, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		broker:   broker,
		clients:  clients,
		sessions: store,
		notifier: NopNotifier{},
		system:   defaultSystemPrompt,
		maxTurns: DefaultMaxTurns,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// toolResultRecord is one entry in the per-turn tool results block streamed
// to the client between LLM round-trips.
type toolResultRecord struct {
	ToolName  string `json:"tool_name"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`

	isError bool
}

type toolResultsBlock struct {
	Turn    int                `json:"turn"`
	Results []toolResultRecord `json:"tool_results"`
}

// StreamQuery runs one user query to completion, streaming text chunks and
// per-turn tool result blocks through emit. The first chunk carries the
// session id so the caller can continue the conversation. Extra notifiers
// receive tool progress for this query alongside the configured one.
func (o *Orchestrator) StreamQuery(ctx context.Context, prompt, sessionID string, emit StreamFunc, notifiers ...Notifier) error {
	notify := o.notifier
	if len(notifiers) > 0 {
		notify = append(multiNotifier{o.notifier}, notifiers...)
	}

	sess := o.resolveSession(sessionID)
	if err := emit(fmt.Sprintf("Session ID: %s\n\n", sess.ID)); err != nil {
		return err
	}

	sess.Append(llm.NewTextMessage(llm.RoleUser, prompt))
	o.logTurn(ctx, sess.ID, "user", prompt, "", "")

	client, model, err := o.clients.ClientFor("")
	if err != nil {
		return o.emitTurnError(emit, fmt.Errorf("no LLM provider available: %w", err))
	}

	bindings := o.broker.EnabledTools()
	specs := specsFromBindings(bindings)
	specsByName := lo.KeyBy(specs, func(s llm.ToolSpec) string { return s.Name })

	for turn := 1; turn <= o.maxTurns; turn++ {
		req := &llm.Request{
			Model:       model,
			Messages:    sess.History(),
			System:      o.system,
			Tools:       specs,
			MaxTokens:   defaultMaxTokens,
			Temperature: lo.ToPtr(defaultTemperature),
		}

		o.logger.Debug().
			Int("turn", turn).
			Int("messages", len(req.Messages)).
			Int("tools", len(specs)).
			Msg("Calling LLM")

		text, toolUses, err := o.streamOnce(ctx, client, req, emit)
		if err != nil {
			return o.emitTurnError(emit, err)
		}

		sess.Append(assistantMessage(text, toolUses))
		o.logTurn(ctx, sess.ID, "assistant", text, "", "")

		if len(toolUses) == 0 {
			return nil
		}

		records := o.executeTools(ctx, sess, toolUses, specsByName, notify)
		sess.Append(toolResultMessage(toolUses, records))
		for i, rec := range records {
			o.logTurn(ctx, sess.ID, "tool", rec.Result, rec.ToolName, toolUses[i].ID)
		}

		if err := emitToolResults(emit, turn, records); err != nil {
			return err
		}
	}

	notice := fmt.Sprintf("\n\n[Stopped after %d tool turns without a final answer. "+
		"Ask a follow-up to continue.]\n", o.maxTurns)
	return emit(notice)
}

// resolveSession continues the referenced session or mints a fresh one when
// the id is absent, unknown, or expired.
func (o *Orchestrator) resolveSession(sessionID string) *sessions.Session {
	if sessionID != "" {
		if sess, ok := o.sessions.Get(sessionID); ok {
			return sess
		}
		o.logger.Info().Str("session_id", sessionID).Msg("Session not found, starting a new one")
	}
	return o.sessions.Create()
}

// streamOnce performs a single LLM round-trip, emitting text deltas and
// accumulating tool calls in response order. The stream is fully drained and
// closed before returning, so the per-call deadline can end here.
func (o *Orchestrator) streamOnce(ctx context.Context, client llm.Client, req *llm.Request, emit StreamFunc) (string, []*llm.ToolUseBlock, error) {
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}

	stream, err := client.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var finalText strings.Builder
	toolUses := make(map[string]*llm.ToolUseBlock)
	toolOrder := make([]string, 0)
	toolInputBuilders := make(map[string]*strings.Builder)
	var currentToolID string

events:
	for stream.Next() {
		event := stream.Event()
		if event == nil {
			continue
		}

		switch event.Type {
		case llm.StreamEventTypeContentDelta, llm.StreamEventTypeContentBlock:
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case llm.StreamDeltaTypeText:
				if event.Delta.Text != "" {
					finalText.WriteString(event.Delta.Text)
					if err := emit(event.Delta.Text); err != nil {
						return "", nil, fmt.Errorf("stream consumer error: %w", err)
					}
				}
			case llm.StreamDeltaTypeToolUse:
				if tu := event.Delta.ToolUse; tu != nil {
					if _, ok := toolUses[tu.ID]; !ok {
						toolCopy := *tu
						toolCopy.Input = make(map[string]any)
						toolUses[tu.ID] = &toolCopy
						toolOrder = append(toolOrder, tu.ID)
						toolInputBuilders[tu.ID] = &strings.Builder{}
					}
					currentToolID = tu.ID
				}
			case llm.StreamDeltaTypeToolInput:
				if currentToolID != "" {
					if builder, ok := toolInputBuilders[currentToolID]; ok {
						builder.WriteString(event.Delta.ToolInput)
					}
				}
			}

		case llm.StreamEventTypeStop:
			break events
		}
	}

	if err := stream.Err(); err != nil {
		return "", nil, err
	}

	// Parse accumulated JSON input per tool. Malformed input degrades to
	// empty arguments; validation reports the miss to the model.
	ordered := make([]*llm.ToolUseBlock, 0, len(toolOrder))
	for _, id := range toolOrder {
		tu := toolUses[id]
		if builder := toolInputBuilders[id]; builder.Len() > 0 {
			var input map[string]any
			if err := json.Unmarshal([]byte(builder.String()), &input); err == nil {
				tu.Input = input
			} else {
				o.logger.Warn().Str("tool", tu.Name).Err(err).Msg("Malformed tool arguments from LLM")
			}
		}
		ordered = append(ordered, tu)
	}

	return strings.TrimSpace(finalText.String()), ordered, nil
}

// executeTools runs the requested calls sequentially in response order and
// returns their streamed records. All failures become error-text results.
func (o *Orchestrator) executeTools(ctx context.Context, sess *sessions.Session, toolUses []*llm.ToolUseBlock, specsByName map[string]llm.ToolSpec, notify Notifier) []toolResultRecord {
	records := make([]toolResultRecord, 0, len(toolUses))

	for _, tu := range toolUses {
		timestamp := time.Now()
		record := toolResultRecord{
			ToolName:  tu.Name,
			Timestamp: timestamp.UTC().Format(time.RFC3339),
		}

		serverID, toolName, found := o.broker.ResolveTool(tu.Name)
		if !found {
			record.Result = fmt.Sprintf("Tool %s not found in any enabled MCP server", tu.Name)
			record.isError = true
			records = append(records, record)
			continue
		}

		if spec, ok := specsByName[tu.Name]; ok {
			if err := validateToolArgs(spec.Schema, tu.Input); err != nil {
				record.Result = fmt.Sprintf("Error calling tool %s: %v", tu.Name, err)
				record.isError = true
				records = append(records, record)
				continue
			}
		}

		// Servers that issued a native conversation id get it back so they
		// resume their own context; everyone else relies on the replayed
		// history already in the request.
		var conversationID string
		if native, ok := sess.ContinuityFor(serverID).(sessions.NativeSession); ok {
			conversationID = native.ConversationID
		}

		notify.ToolStarted(tu.ID, tu.Name, serverID)
		result := o.broker.ExecuteTool(ctx, mcp.Invocation{
			ServerID:       serverID,
			ToolName:       toolName,
			Args:           tu.Input,
			ConversationID: conversationID,
		})
		notify.ToolFinished(tu.ID, tu.Name, serverID, result.Result.IsError)

		if result.ConversationID != "" {
			sess.SetServerConversation(serverID, result.ConversationID)
		}

		if result.Result.IsError {
			record.Result = fmt.Sprintf("Error calling MCP tool %s: %s", tu.Name, result.Result.Content)
			record.isError = true
		} else {
			record.Result = result.Result.Content
		}
		records = append(records, record)
	}
	return records
}

// assistantMessage builds the assistant turn from streamed text and tool use
// blocks.
func assistantMessage(text string, toolUses []*llm.ToolUseBlock) llm.Message {
	content := make([]llm.ContentBlock, 0, len(toolUses)+1)
	if text != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: text,
		})
	}
	for _, tu := range toolUses {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: tu,
		})
	}
	return llm.Message{Role: llm.RoleAssistant, Content: content}
}

// toolResultMessage pairs each executed call with its result for the next
// round-trip.
func toolResultMessage(toolUses []*llm.ToolUseBlock, records []toolResultRecord) llm.Message {
	blocks := make([]llm.ContentBlock, 0, len(records))
	for i, rec := range records {
		blocks = append(blocks, llm.ContentBlock{
			Type: llm.ContentBlockTypeToolResult,
			ToolResult: &llm.ToolResultBlock{
				ID:      toolUses[i].ID,
				Content: rec.Result,
				IsError: rec.isError,
			},
		})
	}
	return llm.Message{Role: llm.RoleUser, Content: blocks}
}

// emitToolResults streams the per-turn tool results block: a human-readable
// header followed by a fenced JSON payload for client rendering.
func emitToolResults(emit StreamFunc, turn int, records []toolResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	block := toolResultsBlock{Turn: turn, Results: records}
	payload, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		return err
	}
	return emit(fmt.Sprintf("\n\n--- Tool Results (Turn %d) ---\n```json\n%s\n```\n\n", turn, payload))
}

// emitTurnError surfaces a fatal turn error as a single stream chunk. The
// emit failure wins if the consumer is gone.
func (o *Orchestrator) emitTurnError(emit StreamFunc, err error) error {
	o.logger.Error().Err(err).Msg("Turn failed")
	if emitErr := emit(fmt.Sprintf("Error: %v", err)); emitErr != nil {
		return emitErr
	}
	return err
}

// logTurn appends to the durable transcript, best-effort.
func (o *Orchestrator) logTurn(ctx context.Context, sessionID, role, content, toolName, toolCallID string) {
	if o.transcript == nil || content == "" {
		return
	}
	if err := o.transcript.LogMessage(ctx, sessionID, role, content, toolName, toolCallID); err != nil {
		o.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to log transcript message")
	}
}

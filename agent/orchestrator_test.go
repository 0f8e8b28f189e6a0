package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/advisordesk/advisord/llm"
	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/sessions"
	"github.com/rs/zerolog"
)

type fakeStream struct {
	events []*llm.StreamEvent
	i      int
}

func (s *fakeStream) Next() bool {
	if s.i < len(s.events) {
		s.i++
		return true
	}
	return false
}

func (s *fakeStream) Event() *llm.StreamEvent { return s.events[s.i-1] }
func (s *fakeStream) Err() error              { return nil }
func (s *fakeStream) Close() error            { return nil }

// fakeClient serves one scripted stream per LLM round-trip and records the
// context each round-trip ran on.
type fakeClient struct {
	turns [][]*llm.StreamEvent
	calls int
	ctxs  []context.Context
}

func (c *fakeClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return nil, errors.New("synchronous not used by the turn loop")
}

func (c *fakeClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	c.ctxs = append(c.ctxs, ctx)
	if c.calls >= len(c.turns) {
		return nil, fmt.Errorf("unexpected LLM round-trip %d", c.calls+1)
	}
	events := c.turns[c.calls]
	c.calls++
	return &fakeStream{events: events}, nil
}

type fakeClientSource struct {
	client llm.Client
	err    error
}

func (f *fakeClientSource) ClientFor(modelOverride string) (llm.Client, string, error) {
	return f.client, "test-model", f.err
}

type toolRoute struct {
	serverID string
	toolName string
}

type fakeBroker struct {
	bindings []mcp.ToolBinding
	routes   map[string]toolRoute
	results  map[string]*mcp.InvocationResult
	calls    []mcp.Invocation
}

func (b *fakeBroker) EnabledTools() []mcp.ToolBinding { return b.bindings }

func (b *fakeBroker) ResolveTool(safeName string) (string, string, bool) {
	route, ok := b.routes[safeName]
	return route.serverID, route.toolName, ok
}

func (b *fakeBroker) ExecuteTool(ctx context.Context, inv mcp.Invocation) *mcp.InvocationResult {
	b.calls = append(b.calls, inv)
	if res, ok := b.results[inv.ToolName]; ok {
		return res
	}
	return &mcp.InvocationResult{
		ServerID:  inv.ServerID,
		ToolName:  inv.ToolName,
		Result:    &mcp.ToolResult{Content: "ok"},
		Timestamp: time.Now(),
	}
}

func textTurn(chunks ...string) []*llm.StreamEvent {
	events := []*llm.StreamEvent{{Type: llm.StreamEventTypeStart}}
	for _, chunk := range chunks {
		events = append(events, &llm.StreamEvent{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: chunk},
		})
	}
	return append(events, &llm.StreamEvent{Type: llm.StreamEventTypeStop})
}

func toolTurn(id, name, inputJSON string) []*llm.StreamEvent {
	return []*llm.StreamEvent{
		{Type: llm.StreamEventTypeStart},
		{
			Type: llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{
				Type:    llm.StreamDeltaTypeToolUse,
				ToolUse: &llm.ToolUseBlock{ID: id, Name: name},
			},
		},
		{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: inputJSON},
		},
		{Type: llm.StreamEventTypeStop},
	}
}

func accountTool(required ...string) mcp.ToolBinding {
	return mcp.ToolBinding{
		ServerID:   "es-mcp",
		ServerName: "Elasticsearch MCP",
		SafeName:   "get_account_summary",
		Definition: mcp.ToolDefinition{
			Name:        "get.account.summary",
			Description: "Summarize one account",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"account_id": map[string]any{"type": "string"},
				},
				"required": toAnySlice(required),
			},
		},
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func newTestOrchestrator(t *testing.T, broker ToolBroker, client llm.Client, opts ...Option) (*Orchestrator, sessions.Store) {
	t.Helper()
	store := sessions.NewMemoryStore(0, 0, zerolog.Nop())
	o := NewOrchestrator(broker, &fakeClientSource{client: client}, store, zerolog.Nop(), opts...)
	return o, store
}

func collect(out *strings.Builder) StreamFunc {
	return func(chunk string) error {
		out.WriteString(chunk)
		return nil
	}
}

func TestStreamQueryPlainAnswer(t *testing.T) {
	broker := &fakeBroker{}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		textTurn("The portfolio is ", "up 3% this week."),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "how did we do?", "", collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	streamed := out.String()
	if !strings.HasPrefix(streamed, "Session ID: ") {
		t.Errorf("stream should open with the session id, got %q", streamed[:min(40, len(streamed))])
	}
	if !strings.Contains(streamed, "The portfolio is up 3% this week.") {
		t.Errorf("streamed output missing answer text: %q", streamed)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d sessions, want 1", store.Len())
	}
	if len(broker.calls) != 0 {
		t.Errorf("no tools should run for a plain answer, got %d calls", len(broker.calls))
	}
}

func TestStreamQueryToolRoundTrip(t *testing.T) {
	broker := &fakeBroker{
		bindings: []mcp.ToolBinding{accountTool()},
		routes:   map[string]toolRoute{"get_account_summary": {serverID: "es-mcp", toolName: "get.account.summary"}},
		results: map[string]*mcp.InvocationResult{
			"get.account.summary": {
				ServerID:       "es-mcp",
				ToolName:       "get.account.summary",
				Result:         &mcp.ToolResult{Content: `{"account_id":"ACC1","total":125000}`},
				ConversationID: "conv-9",
				Timestamp:      time.Now(),
			},
		},
	}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		toolTurn("tu-1", "get_account_summary", `{"account_id":"ACC1"}`),
		textTurn("ACC1 holds $125,000."),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	sess := store.Create()
	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "summarize ACC1", sess.ID, collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	if len(broker.calls) != 1 {
		t.Fatalf("broker received %d calls, want 1", len(broker.calls))
	}
	call := broker.calls[0]
	if call.ServerID != "es-mcp" || call.ToolName != "get.account.summary" {
		t.Errorf("call routed to %s/%s, want es-mcp/get.account.summary", call.ServerID, call.ToolName)
	}
	if call.Args["account_id"] != "ACC1" {
		t.Errorf("tool args = %v, want account_id=ACC1", call.Args)
	}

	streamed := out.String()
	if !strings.Contains(streamed, "--- Tool Results (Turn 1) ---") {
		t.Errorf("streamed output missing tool results block: %q", streamed)
	}
	if !strings.Contains(streamed, "ACC1 holds $125,000.") {
		t.Errorf("streamed output missing final answer: %q", streamed)
	}

	// The server's native conversation id is captured for the next call.
	if id, ok := sess.ServerConversation("es-mcp"); !ok || id != "conv-9" {
		t.Errorf("server conversation = %q (found=%v), want conv-9", id, ok)
	}

	// user, assistant tool request, tool results, final assistant.
	if got := len(sess.History()); got != 4 {
		t.Errorf("session history has %d messages, want 4", got)
	}
}

func TestStreamQueryThreadsConversationID(t *testing.T) {
	broker := &fakeBroker{
		bindings: []mcp.ToolBinding{accountTool()},
		routes:   map[string]toolRoute{"get_account_summary": {serverID: "es-mcp", toolName: "get.account.summary"}},
	}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		toolTurn("tu-1", "get_account_summary", `{"account_id":"ACC1"}`),
		textTurn("done"),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	sess := store.Create()
	sess.SetServerConversation("es-mcp", "conv-earlier")

	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "again please", sess.ID, collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	if len(broker.calls) != 1 {
		t.Fatalf("broker received %d calls, want 1", len(broker.calls))
	}
	if got := broker.calls[0].ConversationID; got != "conv-earlier" {
		t.Errorf("invocation conversation id = %q, want conv-earlier", got)
	}
}

func TestStreamQueryToolErrorFedBack(t *testing.T) {
	broker := &fakeBroker{
		bindings: []mcp.ToolBinding{accountTool()},
		routes:   map[string]toolRoute{"get_account_summary": {serverID: "es-mcp", toolName: "get.account.summary"}},
		results: map[string]*mcp.InvocationResult{
			"get.account.summary": {
				Result: &mcp.ToolResult{Content: "index not found", IsError: true},
			},
		},
	}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		toolTurn("tu-1", "get_account_summary", `{"account_id":"ACC1"}`),
		textTurn("I could not look that up."),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	sess := store.Create()
	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "summarize ACC1", sess.ID, collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	// The error is classified into the tool result message, not a Go error.
	history := sess.History()
	if len(history) != 4 {
		t.Fatalf("history has %d messages, want 4", len(history))
	}
	resultMsg := history[2]
	if len(resultMsg.Content) != 1 || resultMsg.Content[0].ToolResult == nil {
		t.Fatalf("third message should carry one tool result, got %+v", resultMsg)
	}
	tr := resultMsg.Content[0].ToolResult
	if !tr.IsError {
		t.Error("tool result should be flagged as an error")
	}
	if !strings.Contains(tr.Content, "index not found") {
		t.Errorf("tool result content = %q, want the server error text", tr.Content)
	}
}

func TestStreamQueryUnknownTool(t *testing.T) {
	broker := &fakeBroker{routes: map[string]toolRoute{}}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		toolTurn("tu-1", "made_up_tool", `{}`),
		textTurn("never mind"),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	sess := store.Create()
	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "use the made up tool", sess.ID, collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	if len(broker.calls) != 0 {
		t.Errorf("unresolvable tool must not be executed, got %d calls", len(broker.calls))
	}
	if !strings.Contains(out.String(), "not found in any enabled MCP server") {
		t.Errorf("streamed output missing unknown-tool notice: %q", out.String())
	}
}

func TestStreamQueryMissingRequiredArg(t *testing.T) {
	broker := &fakeBroker{
		bindings: []mcp.ToolBinding{accountTool("account_id")},
		routes:   map[string]toolRoute{"get_account_summary": {serverID: "es-mcp", toolName: "get.account.summary"}},
	}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		toolTurn("tu-1", "get_account_summary", `{}`),
		textTurn("which account did you mean?"),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	sess := store.Create()
	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "summarize", sess.ID, collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	if len(broker.calls) != 0 {
		t.Errorf("invalid arguments must not reach the broker, got %d calls", len(broker.calls))
	}
	// The record is JSON-marshaled into the stream, so quotes are escaped.
	if !strings.Contains(out.String(), "missing required parameter") {
		t.Errorf("streamed output missing validation error: %q", out.String())
	}
}

func TestStreamQueryStopsAtTurnCeiling(t *testing.T) {
	broker := &fakeBroker{
		bindings: []mcp.ToolBinding{accountTool()},
		routes:   map[string]toolRoute{"get_account_summary": {serverID: "es-mcp", toolName: "get.account.summary"}},
	}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		toolTurn("tu-1", "get_account_summary", `{"account_id":"ACC1"}`),
		toolTurn("tu-2", "get_account_summary", `{"account_id":"ACC2"}`),
	}}
	o, store := newTestOrchestrator(t, broker, client, WithMaxTurns(2))

	sess := store.Create()
	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "keep digging", sess.ID, collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	if len(broker.calls) != 2 {
		t.Errorf("broker received %d calls, want 2", len(broker.calls))
	}
	if !strings.Contains(out.String(), "Stopped after 2 tool turns") {
		t.Errorf("streamed output missing truncation notice: %q", out.String())
	}
}

func TestStreamQueryNoProvider(t *testing.T) {
	store := sessions.NewMemoryStore(0, 0, zerolog.Nop())
	source := &fakeClientSource{err: errors.New("no provider configured")}
	o := NewOrchestrator(&fakeBroker{}, source, store, zerolog.Nop())

	var out strings.Builder
	err := o.StreamQuery(context.Background(), "hello", "", collect(&out))
	if err == nil {
		t.Fatal("expected an error when no provider is available")
	}
	if !strings.Contains(out.String(), "no LLM provider available") {
		t.Errorf("error was not surfaced in the stream: %q", out.String())
	}
}

func TestStreamQueryContinuesSession(t *testing.T) {
	broker := &fakeBroker{}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		textTurn("first answer"),
		textTurn("second answer"),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	sess := store.Create()
	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "first question", sess.ID, collect(&out)); err != nil {
		t.Fatal(err)
	}
	if err := o.StreamQuery(context.Background(), "second question", sess.ID, collect(&out)); err != nil {
		t.Fatal(err)
	}

	if store.Len() != 1 {
		t.Errorf("store has %d sessions, want the original one reused", store.Len())
	}
	if got := len(sess.History()); got != 4 {
		t.Errorf("session history has %d messages, want 4 across both turns", got)
	}
}

func TestStreamQueryUnknownSessionStartsFresh(t *testing.T) {
	broker := &fakeBroker{}
	client := &fakeClient{turns: [][]*llm.StreamEvent{textTurn("hello")}}
	o, store := newTestOrchestrator(t, broker, client)

	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "hi", "expired-session-id", collect(&out)); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d sessions, want 1 fresh session", store.Len())
	}
	if strings.Contains(out.String(), "expired-session-id") {
		t.Error("a fresh session id should have been issued")
	}
}

func TestStreamQueryCallTimeout(t *testing.T) {
	broker := &fakeBroker{}
	client := &fakeClient{turns: [][]*llm.StreamEvent{textTurn("quick answer")}}
	o, _ := newTestOrchestrator(t, broker, client, WithCallTimeout(30*time.Second))

	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "how did we do?", "", collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	if len(client.ctxs) != 1 {
		t.Fatalf("client saw %d round-trips, want 1", len(client.ctxs))
	}
	deadline, ok := client.ctxs[0].Deadline()
	if !ok {
		t.Fatal("round-trip context has no deadline despite the configured call timeout")
	}
	if until := time.Until(deadline); until > 30*time.Second || until <= 0 {
		t.Errorf("deadline %v from now, want within the 30s budget", until)
	}
}

func TestStreamQueryNoCallTimeoutByDefault(t *testing.T) {
	broker := &fakeBroker{}
	client := &fakeClient{turns: [][]*llm.StreamEvent{textTurn("quick answer")}}
	o, _ := newTestOrchestrator(t, broker, client)

	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "how did we do?", "", collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}
	if _, ok := client.ctxs[0].Deadline(); ok {
		t.Error("round-trip context should carry no deadline when none is configured")
	}
}

func TestStreamQueryContinuityDecision(t *testing.T) {
	broker := &fakeBroker{
		bindings: []mcp.ToolBinding{accountTool()},
		routes:   map[string]toolRoute{"get_account_summary": {serverID: "es-mcp", toolName: "get.account.summary"}},
		results: map[string]*mcp.InvocationResult{
			"get.account.summary": {
				Result:         &mcp.ToolResult{Content: "{}"},
				ConversationID: "conv-1",
			},
		},
	}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		toolTurn("tu-1", "get_account_summary", `{"account_id":"ACC1"}`),
		toolTurn("tu-2", "get_account_summary", `{"account_id":"ACC1"}`),
		textTurn("done"),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	sess := store.Create()
	var out strings.Builder
	if err := o.StreamQuery(context.Background(), "summarize ACC1", sess.ID, collect(&out)); err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}
	if len(broker.calls) != 2 {
		t.Fatalf("broker received %d calls, want 2", len(broker.calls))
	}

	// First call: the server has issued no conversation id yet, so context
	// travels as replayed history and the invocation carries none.
	if got := broker.calls[0].ConversationID; got != "" {
		t.Errorf("first invocation conversation id = %q, want empty", got)
	}
	// Second call: the id issued by the first result is handed back.
	if got := broker.calls[1].ConversationID; got != "conv-1" {
		t.Errorf("second invocation conversation id = %q, want conv-1", got)
	}
}

func TestStreamQueryRendersToolStatusLines(t *testing.T) {
	broker := &fakeBroker{
		bindings: []mcp.ToolBinding{accountTool()},
		routes:   map[string]toolRoute{"get_account_summary": {serverID: "es-mcp", toolName: "get.account.summary"}},
	}
	client := &fakeClient{turns: [][]*llm.StreamEvent{
		toolTurn("tu-1", "get_account_summary", `{"account_id":"ACC1"}`),
		textTurn("all set"),
	}}
	o, store := newTestOrchestrator(t, broker, client)

	sess := store.Create()
	var out strings.Builder
	err := o.StreamQuery(context.Background(), "summarize ACC1", sess.ID, collect(&out), StreamNotifier{Emit: collect(&out)})
	if err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	streamed := out.String()
	if !strings.Contains(streamed, "[running get_account_summary on es-mcp...]") {
		t.Errorf("stream missing tool start status line: %q", streamed)
	}
	if !strings.Contains(streamed, "[get_account_summary on es-mcp finished]") {
		t.Errorf("stream missing tool finish status line: %q", streamed)
	}
}

func TestStreamNotifierReportsFailure(t *testing.T) {
	var out strings.Builder
	n := StreamNotifier{Emit: collect(&out)}
	n.ToolFinished("tu-1", "get_account_summary", "es-mcp", true)
	if !strings.Contains(out.String(), "[get_account_summary on es-mcp failed]") {
		t.Errorf("failure status line = %q", out.String())
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

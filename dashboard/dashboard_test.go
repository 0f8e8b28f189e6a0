package dashboard

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/settings"
	"github.com/rs/zerolog"
)

// fakeExec routes invocations to canned results by tool name.
type fakeExec struct {
	calls   []mcp.Invocation
	results map[string]*mcp.InvocationResult
}

func (f *fakeExec) ExecuteTool(ctx context.Context, inv mcp.Invocation) *mcp.InvocationResult {
	f.calls = append(f.calls, inv)
	if res, ok := f.results[inv.ToolName]; ok {
		return res
	}
	return &mcp.InvocationResult{
		ServerID: inv.ServerID,
		ToolName: inv.ToolName,
		Result:   &mcp.ToolResult{Content: "tool not available", IsError: true},
	}
}

func jsonResult(payload map[string]any) *mcp.InvocationResult {
	return &mcp.InvocationResult{Result: &mcp.ToolResult{Raw: payload}}
}

// mainPageStore builds a settings store holding one designated server with
// the given tool catalog.
func mainPageStore(t *testing.T, toolNames ...string) *settings.Store {
	t.Helper()
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// The default local server is not flagged for main page use; drop it so
	// tests see only the server under test.
	if err := store.RemoveServer(settings.LocalServerID); err != nil {
		t.Fatal(err)
	}
	tools := make(map[string]settings.ToolConfig, len(toolNames))
	for _, name := range toolNames {
		tools[name] = settings.ToolConfig{Name: name, Enabled: true}
	}
	err = store.UpsertServer(&settings.ServerConfig{
		ID:             "es-mcp",
		Name:           "Elasticsearch MCP",
		Enabled:        true,
		UseForMainPage: true,
		Tools:          tools,
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func emptyStore(t *testing.T) *settings.Store {
	t.Helper()
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RemoveServer(settings.LocalServerID); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{0, "$0"},
		{950, "$950"},
		{1234, "$1,234"},
		{1234567.8, "$1,234,568"},
		{100000, "$100,000"},
		{-45000, "-$45,000"},
	}
	for _, tt := range tests {
		if got := formatUSD(tt.in); got != tt.expected {
			t.Errorf("formatUSD(%v) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q, want unchanged", got)
	}
	if got := truncate("a longer sentence", 8); got != "a longer..." {
		t.Errorf("truncate() = %q, want %q", got, "a longer...")
	}
	// Multi-byte characters must not be split mid-rune.
	if got := truncate("désolé, aucune donnée", 6); got != "désolé..." {
		t.Errorf("truncate() = %q, want %q", got, "désolé...")
	}
	if got := truncate("口座の概要", 10); got != "口座の概要" {
		t.Errorf("truncate() = %q, want unchanged", got)
	}
}

func TestDecodePayload(t *testing.T) {
	raw := map[string]any{"result": map[string]any{}}
	if m, ok := decodePayload(&mcp.ToolResult{Raw: raw}); !ok || m["result"] == nil {
		t.Error("structured payload should be used directly")
	}

	if m, ok := decodePayload(&mcp.ToolResult{Content: `{"a":1}`}); !ok || m["a"] != float64(1) {
		t.Error("text content should be parsed as JSON")
	}

	if _, ok := decodePayload(&mcp.ToolResult{Content: "plain text"}); ok {
		t.Error("non-JSON content should not decode")
	}
	if _, ok := decodePayload(nil); ok {
		t.Error("nil result should not decode")
	}
}

func TestSearchHits(t *testing.T) {
	section := map[string]any{
		"hits": map[string]any{
			"hits": []any{
				map[string]any{"_id": "1"},
				map[string]any{"_id": "2"},
			},
		},
	}
	hits, ok := searchHits(section)
	if !ok {
		t.Fatal("expected hits to parse")
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want 2", len(hits))
	}

	if _, ok := searchHits(map[string]any{"values": []any{}}); ok {
		t.Error("non-search section should not parse as hits")
	}
}

func TestEsqlResultAndCol(t *testing.T) {
	section := map[string]any{
		"columns": []any{
			map[string]any{"name": "title"},
			map[string]any{"name": "symbol"},
		},
		"values": []any{
			[]any{"Rates climb", "TLT"},
			[]any{nil, "AAPL"},
		},
	}
	table, ok := esqlResult(section)
	if !ok {
		t.Fatal("expected table to parse")
	}
	if len(table.rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(table.rows))
	}

	if got := table.col(table.rows[0], "title"); got != "Rates climb" {
		t.Errorf("col(title) = %v", got)
	}
	// nil cells fall through to the next candidate name.
	if got := table.col(table.rows[1], "title", "symbol"); got != "AAPL" {
		t.Errorf("col with nil first candidate = %v, want AAPL", got)
	}
	if got := table.col(table.rows[0], "missing"); got != nil {
		t.Errorf("col(missing) = %v, want nil", got)
	}
}

func TestFieldHelpers(t *testing.T) {
	m := map[string]any{"title": "", "news_title": "Fed cuts", "value": float64(12.5)}
	if got := strField(m, "title", "news_title"); got != "Fed cuts" {
		t.Errorf("strField() = %q, want first non-empty match", got)
	}
	if got := numField(m, "value"); got != 12.5 {
		t.Errorf("numField() = %v, want 12.5", got)
	}
	if got := toStr(float64(42)); got != "42" {
		t.Errorf("toStr(42) = %q", got)
	}
	if got := toNum("3.5"); got != 3.5 {
		t.Errorf("toNum(%q) = %v", "3.5", got)
	}
}

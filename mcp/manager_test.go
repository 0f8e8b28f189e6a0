package mcp

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/advisordesk/advisord/settings"
)

// fakeMCPClient is an in-memory MCPClient for exercising the manager without
// a transport.
type fakeMCPClient struct {
	tools    []ToolDefinition
	pingErr  error
	listErr  error
	callErr  error
	result   *ToolResult
	lastTool string
	lastArgs map[string]any
	closed   bool
}

func (f *fakeMCPClient) Start(ctx context.Context) error { return nil }

func (f *fakeMCPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeMCPClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	f.lastTool = name
	f.lastArgs = args
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ToolResult{Content: "ok"}, nil
}

func (f *fakeMCPClient) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeMCPClient) Close() error {
	f.closed = true
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewManager(store, zerolog.Nop())
}

func seedServer(t *testing.T, m *Manager, id string, tools ...string) {
	t.Helper()
	cfg := &settings.ServerConfig{
		ID:               id,
		Name:             id,
		URL:              "http://" + id + ".example",
		Enabled:          true,
		Tools:            make(map[string]settings.ToolConfig),
		ConnectionStatus: settings.StatusConnected,
	}
	for _, name := range tools {
		cfg.Tools[name] = settings.ToolConfig{
			Name:    name,
			Enabled: true,
		}
	}
	if err := m.settings.UpsertServer(cfg); err != nil {
		t.Fatalf("UpsertServer(%s): %v", id, err)
	}
}

// enabledToolNames flattens the contract to "server/tool" strings, skipping
// the built-in local server a fresh store always carries.
func enabledToolNames(m *Manager) []string {
	var names []string
	for _, b := range m.EnabledTools() {
		if b.ServerID == settings.LocalServerID {
			continue
		}
		names = append(names, b.ServerID+"/"+b.Definition.Name)
	}
	sort.Strings(names)
	return names
}

func TestEnabledToolsUnionsServers(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "get_alerts", "get_clients")
	seedServer(t, m, "beta", "search.news.by_symbol")

	got := enabledToolNames(m)
	want := []string{"alpha/get_alerts", "alpha/get_clients", "beta/search.news.by_symbol"}
	if len(got) != len(want) {
		t.Fatalf("EnabledTools() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EnabledTools()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Dotted names are advertised under their safe form and resolve back.
	serverID, toolName, ok := m.ResolveTool("search_news_by_symbol")
	if !ok {
		t.Fatal("ResolveTool: expected the safe name to resolve")
	}
	if serverID != "beta" || toolName != "search.news.by_symbol" {
		t.Errorf("ResolveTool() = (%q, %q), want (beta, search.news.by_symbol)", serverID, toolName)
	}
}

func TestDisabledToolLeavesContract(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "get_alerts", "get_clients")

	err := m.settings.UpdateServer("alpha", func(srv *settings.ServerConfig) {
		tool := srv.Tools["get_alerts"]
		tool.Enabled = false
		srv.Tools["get_alerts"] = tool
	})
	if err != nil {
		t.Fatalf("UpdateServer: %v", err)
	}

	got := enabledToolNames(m)
	if len(got) != 1 || got[0] != "alpha/get_clients" {
		t.Fatalf("EnabledTools() after disable = %v, want [alpha/get_clients]", got)
	}
	if _, _, ok := m.ResolveTool("get_alerts"); ok {
		t.Error("ResolveTool: disabled tool should not resolve")
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "get_alerts")

	_, err := m.Register(context.Background(), RegisterRequest{
		ID:  "alpha",
		URL: "http://elsewhere.example",
	})
	if !errors.Is(err, ErrDuplicateServer) {
		t.Fatalf("Register duplicate id error = %v, want ErrDuplicateServer", err)
	}
}

func TestRegisterRequiresIDAndURL(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Register(context.Background(), RegisterRequest{ID: "alpha"}); err == nil {
		t.Error("Register without url should fail")
	}
	if _, err := m.Register(context.Background(), RegisterRequest{URL: "http://a.example"}); err == nil {
		t.Error("Register without id should fail")
	}
}

func TestRefreshServerKeepsStaleCatalogOnFailure(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "get_alerts", "get_clients")

	fake := &fakeMCPClient{pingErr: errors.New("connection reset")}
	m.mu.Lock()
	m.clients["alpha"] = fake
	m.mu.Unlock()

	err := m.RefreshServer(context.Background(), "alpha")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("RefreshServer error = %v, want ErrUnreachable", err)
	}

	cfg, ok := m.settings.Server("alpha")
	if !ok {
		t.Fatal("server disappeared from the store")
	}
	if cfg.ConnectionStatus != settings.StatusDisconnected {
		t.Errorf("ConnectionStatus = %q, want %q", cfg.ConnectionStatus, settings.StatusDisconnected)
	}
	if len(cfg.Tools) != 2 {
		t.Errorf("stale catalog size = %d, want 2", len(cfg.Tools))
	}
	if !fake.closed {
		t.Error("failed connection should be dropped")
	}
}

func TestRefreshServerPreservesDisabledFlags(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "get_alerts", "get_clients")
	err := m.settings.UpdateServer("alpha", func(srv *settings.ServerConfig) {
		tool := srv.Tools["get_alerts"]
		tool.Enabled = false
		srv.Tools["get_alerts"] = tool
	})
	if err != nil {
		t.Fatalf("UpdateServer: %v", err)
	}

	fake := &fakeMCPClient{tools: []ToolDefinition{
		{Name: "get_alerts", Description: "portfolio alerts"},
		{Name: "get_clients", Description: "client roster"},
		{Name: "get_meetings", Description: "upcoming meetings"},
	}}
	m.mu.Lock()
	m.clients["alpha"] = fake
	m.mu.Unlock()

	if err := m.RefreshServer(context.Background(), "alpha"); err != nil {
		t.Fatalf("RefreshServer: %v", err)
	}

	cfg, _ := m.settings.Server("alpha")
	if len(cfg.Tools) != 3 {
		t.Fatalf("refreshed catalog size = %d, want 3", len(cfg.Tools))
	}
	if cfg.Tools["get_alerts"].Enabled {
		t.Error("disabled flag should survive a catalog refresh")
	}
	if !cfg.Tools["get_meetings"].Enabled {
		t.Error("newly discovered tool should default to enabled")
	}
	if cfg.ConnectionStatus != settings.StatusConnected {
		t.Errorf("ConnectionStatus = %q, want %q", cfg.ConnectionStatus, settings.StatusConnected)
	}
}

func TestRefreshServerUnknownID(t *testing.T) {
	m := newTestManager(t)
	if err := m.RefreshServer(context.Background(), "ghost"); !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("RefreshServer error = %v, want ErrServerNotFound", err)
	}
}

func TestExecuteToolClassifiesFailures(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "get_alerts")
	err := m.settings.UpdateServer("alpha", func(srv *settings.ServerConfig) {
		srv.Enabled = false
	})
	if err != nil {
		t.Fatalf("UpdateServer: %v", err)
	}

	tests := []struct {
		name     string
		serverID string
		wantText string
	}{
		{name: "unknown server", serverID: "ghost", wantText: "server not found"},
		{name: "disabled server", serverID: "alpha", wantText: "server is disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := m.ExecuteTool(context.Background(), Invocation{ServerID: tt.serverID, ToolName: "get_alerts"})
			if out.Result == nil || !out.Result.IsError {
				t.Fatalf("ExecuteTool result = %+v, want error-classified result", out.Result)
			}
			if !strings.Contains(out.Result.Content, tt.wantText) {
				t.Errorf("result content %q, want it to mention %q", out.Result.Content, tt.wantText)
			}
		})
	}
}

func TestExecuteToolCallFailureIsErrorResult(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "get_alerts")

	fake := &fakeMCPClient{callErr: errors.New("broken pipe")}
	m.mu.Lock()
	m.clients["alpha"] = fake
	m.mu.Unlock()

	out := m.ExecuteTool(context.Background(), Invocation{ServerID: "alpha", ToolName: "get_alerts"})
	if out.Result == nil || !out.Result.IsError {
		t.Fatalf("ExecuteTool result = %+v, want error-classified result", out.Result)
	}
	if !fake.closed {
		t.Error("failing connection should be dropped for redial")
	}
}

func TestExecuteToolExtractsConversationID(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "ask")
	err := m.settings.UpdateServer("alpha", func(srv *settings.ServerConfig) {
		srv.ConversationField = "conversation_id"
		srv.ConversationLocation = settings.ConversationInResponse
	})
	if err != nil {
		t.Fatalf("UpdateServer: %v", err)
	}

	fake := &fakeMCPClient{result: &ToolResult{
		Content: `{"conversation_id":"conv-42","answer":"done"}`,
		Raw:     map[string]any{"conversation_id": "conv-42", "answer": "done"},
	}}
	m.mu.Lock()
	m.clients["alpha"] = fake
	m.mu.Unlock()

	out := m.ExecuteTool(context.Background(), Invocation{ServerID: "alpha", ToolName: "ask"})
	if out.Result.IsError {
		t.Fatalf("unexpected error result: %s", out.Result.Content)
	}
	if out.ConversationID != "conv-42" {
		t.Errorf("ConversationID = %q, want %q", out.ConversationID, "conv-42")
	}
}

func TestExecuteToolInjectsConversationID(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "ask")
	err := m.settings.UpdateServer("alpha", func(srv *settings.ServerConfig) {
		srv.ConversationField = "session"
		srv.ConversationLocation = settings.ConversationInParams
	})
	if err != nil {
		t.Fatalf("UpdateServer: %v", err)
	}

	fake := &fakeMCPClient{}
	m.mu.Lock()
	m.clients["alpha"] = fake
	m.mu.Unlock()

	out := m.ExecuteTool(context.Background(), Invocation{
		ServerID:       "alpha",
		ToolName:       "ask",
		Args:           map[string]any{"q": "summarize"},
		ConversationID: "conv-7",
	})
	if out.Result.IsError {
		t.Fatalf("unexpected error result: %s", out.Result.Content)
	}
	if got := fake.lastArgs["session"]; got != "conv-7" {
		t.Errorf("injected session = %v, want conv-7", got)
	}
	if got := fake.lastArgs["q"]; got != "summarize" {
		t.Errorf("original arg lost: q = %v", got)
	}
}

func TestRemoveProtectsLocalServer(t *testing.T) {
	m := newTestManager(t)
	if err := m.Remove(settings.LocalServerID); err == nil {
		t.Error("Remove(local) should fail")
	}
	if err := m.Remove("ghost"); !errors.Is(err, ErrServerNotFound) {
		t.Errorf("Remove unknown id error = %v, want ErrServerNotFound", err)
	}
}

func TestRemoveClosesConnection(t *testing.T) {
	m := newTestManager(t)
	seedServer(t, m, "alpha", "get_alerts")
	fake := &fakeMCPClient{}
	m.mu.Lock()
	m.clients["alpha"] = fake
	m.mu.Unlock()

	if err := m.Remove("alpha"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !fake.closed {
		t.Error("Remove should close the live connection")
	}
	if _, ok := m.settings.Server("alpha"); ok {
		t.Error("server should be gone from the store")
	}
}

package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/advisordesk/advisord/settings"
	"github.com/rs/zerolog"
)

// Registration and execution errors surfaced to the API layer.
var (
	ErrDuplicateServer = errors.New("server id already registered")
	ErrServerNotFound  = errors.New("server not found")
	ErrServerDisabled  = errors.New("server is disabled")
	ErrUnreachable     = errors.New("server is unreachable")
)

// RegisterRequest carries the fields of a server registration call.
type RegisterRequest struct {
	ID                   string
	Name                 string
	URL                  string
	APIKey               string
	Transport            settings.TransportMode
	ConversationField    string
	ConversationLocation settings.ConversationLocation
	UseForMainPage       bool
}

// Invocation is one structured tool-call request against a registered server.
type Invocation struct {
	ServerID string
	// ToolName is the server's original tool name.
	ToolName string
	Args     map[string]any
	// ConversationID is the server's native conversation id from an
	// earlier call, injected into the arguments for servers that carry
	// context in params.
	ConversationID string
}

// InvocationResult is the classified outcome of one tool invocation.
type InvocationResult struct {
	ServerID  string
	ToolName  string
	Result    *ToolResult
	Timestamp time.Time
	// ConversationID is the native conversation id extracted from the
	// result, for servers that carry context in responses. Empty when none
	// was found or the server is not configured for extraction.
	ConversationID string
}

// ToolBinding associates one enabled tool with its owning server. SafeName is
// the name advertised to the LLM.
type ToolBinding struct {
	ServerID   string
	ServerName string
	SafeName   string
	Definition ToolDefinition
}

// Manager owns the live MCP client connections and the cached tool catalogs.
// Server configuration is persisted through the settings store; the manager
// keeps only connection state in memory.
type Manager struct {
	settings *settings.Store
	names    *NameAdapter
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[string]MCPClient
}

// NewManager creates a manager over the given settings store.
func NewManager(store *settings.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		settings: store,
		names:    NewNameAdapter(),
		logger:   logger.With().Str("component", "mcpManager").Logger(),
		clients:  make(map[string]MCPClient),
	}
}

// AttachLocal installs an in-process client for the built-in local server.
// The local server needs no transport and is always considered connected.
func (m *Manager) AttachLocal(client MCPClient) {
	m.mu.Lock()
	m.clients[settings.LocalServerID] = client
	m.mu.Unlock()
}

// Register validates and persists a new server registration: the id must be
// unused, the server must be reachable, and its tool catalog is discovered
// synchronously so the caller gets the catalog back.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*settings.ServerConfig, error) {
	if req.ID == "" || req.URL == "" {
		return nil, fmt.Errorf("server id and url are required")
	}
	if _, exists := m.settings.Server(req.ID); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateServer, req.ID)
	}
	if req.Transport == "" {
		req.Transport = settings.TransportHTTP
	}
	if req.ConversationField != "" && req.ConversationLocation == "" {
		req.ConversationLocation = settings.ConversationInResponse
	}

	cfg := &settings.ServerConfig{
		ID:                   req.ID,
		Name:                 req.Name,
		URL:                  req.URL,
		APIKey:               req.APIKey,
		Transport:            req.Transport,
		Enabled:              true,
		Tools:                make(map[string]settings.ToolConfig),
		ConnectionStatus:     settings.StatusUnknown,
		ConversationField:    req.ConversationField,
		ConversationLocation: req.ConversationLocation,
		UseForMainPage:       req.UseForMainPage,
	}

	client, err := m.connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: tool discovery failed: %v", ErrUnreachable, err)
	}

	for _, tool := range tools {
		cfg.Tools[tool.Name] = settings.ToolConfig{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
			Enabled:     true,
		}
	}
	now := time.Now()
	cfg.LastConnected = &now
	cfg.ConnectionStatus = settings.StatusConnected

	if err := m.settings.UpsertServer(cfg); err != nil {
		_ = client.Close()
		return nil, err
	}

	m.mu.Lock()
	m.clients[cfg.ID] = client
	m.mu.Unlock()

	m.logger.Info().
		Str("server_id", cfg.ID).
		Str("url", cfg.URL).
		Int("tools", len(cfg.Tools)).
		Msg("Registered MCP server")
	return cfg.Clone(), nil
}

// Remove unregisters a server and closes its connection. The built-in local
// server cannot be removed.
func (m *Manager) Remove(id string) error {
	if id == settings.LocalServerID {
		return fmt.Errorf("the built-in local server cannot be removed")
	}
	if _, ok := m.settings.Server(id); !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, id)
	}

	m.mu.Lock()
	if client, ok := m.clients[id]; ok {
		_ = client.Close()
		delete(m.clients, id)
	}
	m.mu.Unlock()

	if err := m.settings.RemoveServer(id); err != nil {
		return err
	}
	m.logger.Info().Str("server_id", id).Msg("Removed MCP server")
	return nil
}

// connect builds and starts a client for the server, honoring the transport
// preference. The "-first" transports fall back to the other on failure.
func (m *Manager) connect(ctx context.Context, cfg *settings.ServerConfig) (MCPClient, error) {
	var order []settings.TransportMode
	switch cfg.Transport {
	case settings.TransportSSE:
		order = []settings.TransportMode{settings.TransportSSE}
	case settings.TransportSSEFirst:
		order = []settings.TransportMode{settings.TransportSSE, settings.TransportHTTP}
	case settings.TransportHTTPFirst:
		order = []settings.TransportMode{settings.TransportHTTP, settings.TransportSSE}
	default:
		order = []settings.TransportMode{settings.TransportHTTP}
	}

	var lastErr error
	for _, transport := range order {
		var (
			client MCPClient
			err    error
		)
		switch transport {
		case settings.TransportSSE:
			client, err = NewSSEMCPClient(m.logger, cfg.URL, cfg.APIKey)
		default:
			client, err = NewHttpMCPClient(m.logger, cfg.URL, cfg.APIKey)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if err := client.Start(ctx); err != nil {
			lastErr = err
			_ = client.Close()
			m.logger.Warn().
				Str("server_id", cfg.ID).
				Str("transport", string(transport)).
				Err(err).
				Msg("Transport connection failed")
			continue
		}
		return client, nil
	}
	return nil, lastErr
}

// clientFor returns the live client for a server, connecting on demand.
func (m *Manager) clientFor(ctx context.Context, cfg *settings.ServerConfig) (MCPClient, error) {
	m.mu.Lock()
	client, ok := m.clients[cfg.ID]
	m.mu.Unlock()
	if ok {
		return client, nil
	}

	client, err := m.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Another goroutine may have connected concurrently; keep the first.
	if existing, ok := m.clients[cfg.ID]; ok {
		m.mu.Unlock()
		_ = client.Close()
		return existing, nil
	}
	m.clients[cfg.ID] = client
	m.mu.Unlock()
	return client, nil
}

// dropClient closes and forgets a live connection so the next use redials.
func (m *Manager) dropClient(id string) {
	if id == settings.LocalServerID {
		return
	}
	m.mu.Lock()
	if client, ok := m.clients[id]; ok {
		_ = client.Close()
		delete(m.clients, id)
	}
	m.mu.Unlock()
}

// RefreshServer pings one server and refreshes its cached tool catalog. An
// unreachable server is marked disconnected but keeps its stale catalog, so a
// transient blip does not hide previously working tools. Disabled flags are
// preserved across the catalog replace.
func (m *Manager) RefreshServer(ctx context.Context, id string) error {
	cfg, ok := m.settings.Server(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, id)
	}

	client, err := m.clientFor(ctx, cfg)
	if err != nil {
		m.markStatus(id, settings.StatusDisconnected)
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if err := client.Ping(ctx); err != nil {
		m.dropClient(id)
		m.markStatus(id, settings.StatusDisconnected)
		return fmt.Errorf("%w: ping failed: %v", ErrUnreachable, err)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		m.markStatus(id, settings.StatusError)
		return fmt.Errorf("refresh tool catalog for %s: %w", id, err)
	}

	now := time.Now()
	return m.settings.UpdateServer(id, func(srv *settings.ServerConfig) {
		refreshed := make(map[string]settings.ToolConfig, len(tools))
		for _, tool := range tools {
			enabled := true
			if prev, ok := srv.Tools[tool.Name]; ok {
				enabled = prev.Enabled
			}
			refreshed[tool.Name] = settings.ToolConfig{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
				Enabled:     enabled,
			}
		}
		srv.Tools = refreshed
		srv.ConnectionStatus = settings.StatusConnected
		srv.LastConnected = &now
	})
}

// RefreshAll refreshes every registered server except the local one. A single
// server's failure is logged and isolated from the others.
func (m *Manager) RefreshAll(ctx context.Context) {
	for id := range m.settings.Servers() {
		if id == settings.LocalServerID {
			continue
		}
		if err := m.RefreshServer(ctx, id); err != nil {
			m.logger.Warn().Str("server_id", id).Err(err).Msg("Server refresh failed")
		}
	}
}

func (m *Manager) markStatus(id string, status settings.ConnectionStatus) {
	err := m.settings.UpdateServer(id, func(srv *settings.ServerConfig) {
		srv.ConnectionStatus = status
	})
	if err != nil {
		m.logger.Warn().Str("server_id", id).Err(err).Msg("Failed to record connection status")
	}
}

// EnabledTools assembles the union of enabled tools across all enabled
// servers, with safe names registered for the function-calling contract.
func (m *Manager) EnabledTools() []ToolBinding {
	var bindings []ToolBinding
	for id, srv := range m.settings.EnabledServers() {
		for name, tool := range srv.Tools {
			if !tool.Enabled {
				continue
			}
			bindings = append(bindings, ToolBinding{
				ServerID:   id,
				ServerName: srv.Name,
				SafeName:   m.names.GetSafeName(name),
				Definition: ToolDefinition{
					Name:        name,
					Description: tool.Description,
					InputSchema: tool.Parameters,
				},
			})
		}
	}
	return bindings
}

// ResolveTool maps a safe tool name back to its original name and owning
// server. The first enabled server advertising the tool wins.
func (m *Manager) ResolveTool(safeName string) (serverID, toolName string, ok bool) {
	original, found := m.names.ToOriginalName(safeName)
	if !found {
		original = safeName
	}
	for id, srv := range m.settings.EnabledServers() {
		if tool, ok := srv.Tools[original]; ok && tool.Enabled {
			return id, original, true
		}
	}
	return "", "", false
}

// ExecuteTool runs one tool invocation against its owning server. Transport
// failures are returned as error-classified results, never as Go errors, so a
// failing tool feeds back into the conversation instead of aborting the turn.
func (m *Manager) ExecuteTool(ctx context.Context, inv Invocation) *InvocationResult {
	out := &InvocationResult{
		ServerID:  inv.ServerID,
		ToolName:  inv.ToolName,
		Timestamp: time.Now(),
	}

	cfg, ok := m.settings.Server(inv.ServerID)
	if !ok {
		out.Result = transportError(fmt.Errorf("%w: %s", ErrServerNotFound, inv.ServerID))
		return out
	}
	if !cfg.Enabled {
		out.Result = transportError(fmt.Errorf("%w: %s", ErrServerDisabled, inv.ServerID))
		return out
	}

	args := inv.Args
	if args == nil {
		args = make(map[string]any)
	}
	if cfg.ConversationField != "" &&
		cfg.ConversationLocation == settings.ConversationInParams &&
		inv.ConversationID != "" {
		args = InjectConversationID(args, cfg.ConversationField, inv.ConversationID)
	}

	client, err := m.clientFor(ctx, cfg)
	if err != nil {
		m.markStatus(inv.ServerID, settings.StatusDisconnected)
		out.Result = transportError(err)
		return out
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	result, err := client.CallTool(callCtx, inv.ToolName, args)
	if err != nil {
		m.dropClient(inv.ServerID)
		out.Result = transportError(err)
		return out
	}
	out.Result = result

	if cfg.ConversationField != "" &&
		cfg.ConversationLocation == settings.ConversationInResponse &&
		!result.IsError {
		payload := result.Raw
		if payload == nil {
			payload = result.Content
		}
		if id, ok := ExtractConversationID(payload, cfg.ConversationField); ok {
			out.ConversationID = id
		}
	}

	m.logger.Debug().
		Str("server_id", inv.ServerID).
		Str("tool", inv.ToolName).
		Bool("is_error", out.Result.IsError).
		Msg("Tool invocation completed")
	return out
}

// Statuses returns the connection status of every registered server.
func (m *Manager) Statuses() map[string]settings.ConnectionStatus {
	out := make(map[string]settings.ConnectionStatus)
	for id, srv := range m.settings.Servers() {
		out[id] = srv.ConnectionStatus
	}
	return out
}

package mcp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// SSEMCPClient implements MCPClient for the SSE transport.
type SSEMCPClient struct {
	client  *client.Client
	baseURL string
	logger  zerolog.Logger
}

// NewSSEMCPClient creates a new SSE MCP client. If apiKey is non-empty it is
// sent on every request as an "Authorization: ApiKey <key>" header.
func NewSSEMCPClient(logger zerolog.Logger, baseURL, apiKey string) (*SSEMCPClient, error) {
	logger = logger.With().Str("component", "sseMCPClient").Str("base_url", baseURL).Logger()
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for SSE MCP client")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	var opts []transport.ClientOption
	if apiKey != "" {
		opts = append(opts, transport.WithHeaders(map[string]string{
			"Authorization": "ApiKey " + apiKey,
		}))
	}

	mcpClient, err := client.NewSSEMCPClient(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSE MCP client: %w", err)
	}

	return &SSEMCPClient{
		client:  mcpClient,
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// Start initializes the MCP client connection with protocol-version fallback.
func (c *SSEMCPClient) Start(ctx context.Context) error {
	c.logger.Debug().Msg("Starting SSE MCP client")
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start SSE MCP client: %w", err)
	}

	var lastErr error
	for _, protocolVersion := range protocolVersions {
		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: protocolVersion,
				Capabilities:    mcp.ClientCapabilities{},
				ClientInfo: mcp.Implementation{
					Name:    clientName,
					Version: clientVersion,
				},
			},
		}

		if _, err := c.client.Initialize(ctx, initReq); err != nil {
			lastErr = err
			c.logger.Warn().
				Str("protocol_version", protocolVersion).
				Err(err).
				Msg("Initialize failed, trying next protocol version")
			continue
		}

		c.logger.Info().Str("protocol_version", protocolVersion).Msg("SSE MCP client initialized")
		return nil
	}

	return fmt.Errorf("failed to initialize SSE MCP client: %w", lastErr)
}

// ListTools returns all tools available from the MCP server.
func (c *SSEMCPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug().Int("tool_count", len(result.Tools)).Msg("Received tool catalog")
	return toolDefinitionsFromMCP(result.Tools), nil
}

// CallTool invokes a tool on the MCP server.
func (c *SSEMCPClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}
	return toolResultFromMCP(result), nil
}

// Ping checks that the server is reachable.
func (c *SSEMCPClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Close closes the connection to the MCP server.
func (c *SSEMCPClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

var _ MCPClient = (*SSEMCPClient)(nil)

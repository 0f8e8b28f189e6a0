package settings

import (
	"time"

	"github.com/advisordesk/advisord/tools/schemas"
)

// LocalServerID identifies the built-in server exposing the dashboard's own
// Elasticsearch query tools. It executes in-process rather than over HTTP.
const LocalServerID = "local"

// DefaultDocument builds the initial settings document containing only the
// built-in local server with its canned tool catalog.
func DefaultDocument() *Document {
	now := time.Now()
	return &Document{
		Version: "1.0",
		Servers: map[string]*ServerConfig{
			LocalServerID: DefaultLocalServer(),
		},
		Logging:   LoggingConfig{Level: "info"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DefaultLocalServer builds the registration record for the built-in server.
// The catalog mirrors what tools.RegisterFinancialTools installs.
func DefaultLocalServer() *ServerConfig {
	tools := make(map[string]ToolConfig)
	for name, schema := range schemas.Financial() {
		tools[name] = ToolConfig{
			Name:        name,
			Description: schema.Description,
			Parameters:  schema.Schema,
			Enabled:     true,
		}
	}
	return &ServerConfig{
		ID:               LocalServerID,
		Name:             "Advisor Dashboard (Local)",
		URL:              "local://advisord",
		Transport:        TransportHTTP,
		Enabled:          true,
		Tools:            tools,
		ConnectionStatus: StatusConnected,
	}
}

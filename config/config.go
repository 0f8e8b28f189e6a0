package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig represents configuration for the Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // Anthropic API key
	Model  string `yaml:"model,omitempty"`   // Default model name
}

// OllamaConfig represents configuration for the Ollama LLM provider.
type OllamaConfig struct {
	Host    string `yaml:"host,omitempty"`    // Ollama host (default: "http://localhost:11434")
	Model   string `yaml:"model,omitempty"`   // Default model name
	Timeout int    `yaml:"timeout,omitempty"` // Request timeout in seconds
}

// OpenAIConfig represents configuration for an OpenAI-compatible LLM provider.
// BaseURL covers gateways that speak the OpenAI wire format (Azure-style
// deployments included).
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// ElasticsearchConfig represents configuration for the Elasticsearch cluster
// holding the financial indices.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses,omitempty"` // Cluster addresses (default: http://localhost:9200)
	Username  string   `yaml:"username,omitempty"`
	Password  string   `yaml:"password,omitempty"`
	APIKey    string   `yaml:"api_key,omitempty"` // Base64 API key, takes precedence over basic auth
}

// RefreshConfig controls the background maintenance schedule.
type RefreshConfig struct {
	Schedule string `yaml:"schedule,omitempty"` // cron spec or @every duration (default: "@every 5m")
	Disabled bool   `yaml:"disabled,omitempty"`
}

// ChatConfig holds chat orchestration settings.
type ChatConfig struct {
	SystemPrompt string `yaml:"system_prompt,omitempty"` // Override for the advisor system prompt
	MaxTurns     int    `yaml:"max_turns,omitempty"`     // Tool-loop ceiling (default: 5)
	Timeout      int    `yaml:"timeout,omitempty"`       // Per-turn timeout in seconds (default: 60)
}

// ServerConfig represents server-side configuration for the advisord daemon.
type ServerConfig struct {
	// Server settings
	Server struct {
		Listen string `yaml:"listen,omitempty"` // HTTP listen address (default: ":8000")
	} `yaml:"server,omitempty"`

	// LLM provider configurations
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`

	// Ordered provider preference for chat and summarization
	LLMProviders []string `yaml:"llm_providers,omitempty"`

	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch,omitempty"`
	Chat          ChatConfig          `yaml:"chat,omitempty"`
	Refresh       RefreshConfig       `yaml:"refresh,omitempty"`

	// File paths
	SettingsPath string `yaml:"settings_path,omitempty"` // MCP server settings document (default: "mcp_servers.json")
	DatabasePath string `yaml:"database_path,omitempty"` // SQLite conversation log (default: "advisor_chat.db")
}

// GetServerConfigPath returns the default server config file path.
// Can be overridden via ADVISORD_CONFIG environment variable.
func GetServerConfigPath() string {
	if envPath := os.Getenv("ADVISORD_CONFIG"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.advisord/config.yaml"
	}
	return filepath.Join(homeDir, ".advisord", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// SaveServerConfig saves the server configuration to the specified path.
func SaveServerConfig(cfg *ServerConfig, path string) error {
	expandedPath := expandPath(path)

	// Ensure directory exists
	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write file
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadServerConfig loads server-side configuration, merging the config file
// (if present) over built-in defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	// Step 1: Set defaults
	defaults := ServerConfig{
		LLMProviders: []string{"openai"},
		Anthropic: AnthropicConfig{
			APIKey: "",
		},
		Ollama: OllamaConfig{
			Host:    "http://localhost:11434",
			Model:   "llama3.2:3b",
			Timeout: 60,
		},
		OpenAI: OpenAIConfig{
			APIKey:       "",
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o",
			Organization: "",
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: []string{"http://localhost:9200"},
		},
		Chat: ChatConfig{
			MaxTurns: 5,
			Timeout:  60,
		},
		Refresh: RefreshConfig{
			Schedule: "@every 5m",
		},
		SettingsPath: "mcp_servers.json",
		DatabasePath: "advisor_chat.db",
	}
	defaults.Server.Listen = ":8000"

	// Step 2: Merge config file onto defaults (if it exists)
	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}

		var fileConfig ServerConfig
		if err := yaml.Unmarshal(configYAML, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		if err := mergo.Merge(&defaults, fileConfig, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	// Step 3: Environment overrides for the Elasticsearch connection
	if envURL := os.Getenv("ELASTICSEARCH_URL"); envURL != "" {
		defaults.Elasticsearch.Addresses = strings.Split(envURL, ",")
	}
	if envKey := os.Getenv("ELASTICSEARCH_API_KEY"); envKey != "" {
		defaults.Elasticsearch.APIKey = envKey
	}

	if len(defaults.LLMProviders) == 0 {
		defaults.LLMProviders = []string{"openai"}
	}
	if defaults.Chat.MaxTurns <= 0 {
		defaults.Chat.MaxTurns = 5
	}
	if defaults.Chat.Timeout <= 0 {
		defaults.Chat.Timeout = 60
	}

	return &defaults, nil
}

package llm

import (
	"fmt"
	"os"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
}

// ProviderConfig holds the configuration needed for provider registry.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry resolves which LLM provider serves a request based on the
// server's ordered preference list. Client creation and caching is handled by
// the caller to avoid import cycles.
type ProviderRegistry struct {
	mu          sync.RWMutex
	preferences []string
	config      *ProviderConfig
}

// NewProviderRegistry creates a registry with the given config and ordered
// provider preferences.
func NewProviderRegistry(providerConfig *ProviderConfig, preferences []string) *ProviderRegistry {
	if len(preferences) == 0 {
		preferences = []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama}
	}
	return &ProviderRegistry{
		preferences: preferences,
		config:      providerConfig,
	}
}

// IsProviderConfigured checks if a provider has the required configuration
// (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first configured provider in the
// preference order. An optional model override takes precedence over the
// provider's configured default.
func (r *ProviderRegistry) Resolve(modelOverride string) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var attempted []string
	for _, provider := range r.preferences {
		attempted = append(attempted, provider)
		if !r.isProviderConfiguredUnlocked(provider) {
			continue
		}
		key, err := r.resolveProviderConfig(provider, modelOverride)
		if err != nil {
			continue
		}
		return key, nil
	}
	return nil, fmt.Errorf("no available provider from preferences %v", attempted)
}

// isProviderConfiguredUnlocked is the unlocked version of IsProviderConfigured.
// Must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return apiKey != ""
	case ProviderOllama:
		// Ollama doesn't require API key, just needs host (which has a default)
		return true
	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return apiKey != ""
	default:
		return false
	}
}

// resolveProviderConfig resolves provider-specific configuration and returns a ClientKey.
func (r *ProviderRegistry) resolveProviderConfig(provider, modelOverride string) (*ClientKey, error) {
	key := &ClientKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.APIKey = apiKey
		if key.Model == "" {
			key.Model = r.config.AnthropicModel
		}
		if key.Model == "" {
			key.Model = "claude-haiku-4-5"
		}

	case ProviderOllama:
		host := r.config.OllamaHost
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		key.Host = host

		if key.Model == "" {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			key.Model = os.Getenv("OLLAMA_MODEL")
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = apiKey

		baseURL := r.config.OpenAIBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.BaseURL = baseURL

		org := r.config.OpenAIOrg
		if org == "" {
			org = os.Getenv("OPENAI_ORG_ID")
		}
		key.Organization = org

		if key.Model == "" {
			key.Model = r.config.OpenAIModel
		}
		if key.Model == "" {
			key.Model = os.Getenv("OPENAI_MODEL")
		}
		if key.Model == "" {
			key.Model = "gpt-4o"
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}

// Preferences returns the configured preference order.
func (r *ProviderRegistry) Preferences() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.preferences))
	copy(out, r.preferences)
	return out
}

package llm

import "testing"

// clearProviderEnv pins the provider environment variables to empty so tests
// see only the explicit configuration.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"ANTHROPIC_API_KEY", "OLLAMA_HOST", "OLLAMA_MODEL",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_ORG_ID",
	} {
		t.Setenv(name, "")
	}
}

func TestIsProviderConfigured(t *testing.T) {
	clearProviderEnv(t)

	tests := []struct {
		name     string
		config   *ProviderConfig
		provider string
		expected bool
	}{
		{
			name:     "anthropic with key",
			config:   &ProviderConfig{AnthropicAPIKey: "sk-test"},
			provider: ProviderAnthropic,
			expected: true,
		},
		{
			name:     "anthropic without key",
			config:   &ProviderConfig{},
			provider: ProviderAnthropic,
			expected: false,
		},
		{
			name:     "ollama needs no key",
			config:   &ProviderConfig{},
			provider: ProviderOllama,
			expected: true,
		},
		{
			name:     "openai with key",
			config:   &ProviderConfig{OpenAIAPIKey: "sk-test"},
			provider: ProviderOpenAI,
			expected: true,
		},
		{
			name:     "unknown provider",
			config:   &ProviderConfig{},
			provider: "mystery",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewProviderRegistry(tt.config, nil)
			if got := registry.IsProviderConfigured(tt.provider); got != tt.expected {
				t.Errorf("IsProviderConfigured(%q) = %v, want %v", tt.provider, got, tt.expected)
			}
		})
	}
}

func TestResolveFollowsPreferenceOrder(t *testing.T) {
	clearProviderEnv(t)

	config := &ProviderConfig{
		AnthropicAPIKey: "sk-anthropic",
		AnthropicModel:  "claude-sonnet-4-5",
		OpenAIAPIKey:    "sk-openai",
	}
	registry := NewProviderRegistry(config, []string{ProviderAnthropic, ProviderOpenAI})

	key, err := registry.Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if key.Provider != ProviderAnthropic {
		t.Errorf("provider = %q, want the first configured preference", key.Provider)
	}
	if key.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q, want the configured default", key.Model)
	}
	if key.APIKey != "sk-anthropic" {
		t.Errorf("api key = %q", key.APIKey)
	}
}

func TestResolveSkipsUnconfiguredProviders(t *testing.T) {
	clearProviderEnv(t)

	config := &ProviderConfig{OpenAIAPIKey: "sk-openai"}
	registry := NewProviderRegistry(config, []string{ProviderAnthropic, ProviderOpenAI})

	key, err := registry.Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if key.Provider != ProviderOpenAI {
		t.Errorf("provider = %q, want the fallback", key.Provider)
	}
	if key.Model != "gpt-4o" {
		t.Errorf("model = %q, want the built-in default", key.Model)
	}
}

func TestResolveModelOverride(t *testing.T) {
	clearProviderEnv(t)

	config := &ProviderConfig{AnthropicAPIKey: "sk-test", AnthropicModel: "claude-haiku-4-5"}
	registry := NewProviderRegistry(config, []string{ProviderAnthropic})

	key, err := registry.Resolve("claude-opus-4-5")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if key.Model != "claude-opus-4-5" {
		t.Errorf("model = %q, want the override", key.Model)
	}
}

func TestResolveOllamaRequiresModel(t *testing.T) {
	clearProviderEnv(t)

	registry := NewProviderRegistry(&ProviderConfig{}, []string{ProviderOllama})
	if _, err := registry.Resolve(""); err == nil {
		t.Error("ollama without a model should not resolve")
	}

	registry = NewProviderRegistry(&ProviderConfig{OllamaModel: "llama3.2:3b"}, []string{ProviderOllama})
	key, err := registry.Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if key.Host != "http://localhost:11434" {
		t.Errorf("host = %q, want the default", key.Host)
	}
}

func TestResolveNoProviders(t *testing.T) {
	clearProviderEnv(t)

	registry := NewProviderRegistry(&ProviderConfig{}, []string{ProviderAnthropic, ProviderOpenAI})
	if _, err := registry.Resolve(""); err == nil {
		t.Error("expected an error when nothing is configured")
	}
}

func TestDefaultPreferences(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{}, nil)
	prefs := registry.Preferences()
	if len(prefs) != 3 {
		t.Fatalf("default preferences = %v", prefs)
	}
	if prefs[0] != ProviderOpenAI {
		t.Errorf("first default preference = %q", prefs[0])
	}
}

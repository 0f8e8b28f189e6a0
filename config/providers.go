package config

import (
	"os"

	"github.com/advisordesk/advisord/llm"
)

// LoadProviderConfig flattens the per-provider sections of the server config
// into the settings the LLM registry consumes. Environment variables override
// file values so deployments can inject credentials without editing YAML.
func LoadProviderConfig(cfg *ServerConfig) *llm.ProviderConfig {
	pc := &llm.ProviderConfig{}
	if cfg != nil {
		pc.AnthropicAPIKey = cfg.Anthropic.APIKey
		pc.AnthropicModel = cfg.Anthropic.Model
		pc.OllamaHost = cfg.Ollama.Host
		pc.OllamaModel = cfg.Ollama.Model
		pc.OpenAIAPIKey = cfg.OpenAI.APIKey
		pc.OpenAIBaseURL = cfg.OpenAI.BaseURL
		pc.OpenAIModel = cfg.OpenAI.Model
		pc.OpenAIOrg = cfg.OpenAI.Organization
	}

	overrideFromEnv(&pc.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	overrideFromEnv(&pc.AnthropicModel, "ANTHROPIC_MODEL")
	overrideFromEnv(&pc.OllamaHost, "OLLAMA_HOST")
	overrideFromEnv(&pc.OllamaModel, "OLLAMA_MODEL")
	overrideFromEnv(&pc.OpenAIAPIKey, "OPENAI_API_KEY")
	overrideFromEnv(&pc.OpenAIBaseURL, "OPENAI_BASE_URL")
	overrideFromEnv(&pc.OpenAIModel, "OPENAI_MODEL")
	overrideFromEnv(&pc.OpenAIOrg, "OPENAI_ORG_ID")

	if pc.OllamaHost == "" {
		pc.OllamaHost = "http://localhost:11434"
	}

	return pc
}

func overrideFromEnv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

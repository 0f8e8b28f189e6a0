package agent

import (
	"fmt"
	"sync"

	"github.com/advisordesk/advisord/llm"
	llmanthropic "github.com/advisordesk/advisord/llm/anthropic"
	llmollama "github.com/advisordesk/advisord/llm/ollama"
	llmopenai "github.com/advisordesk/advisord/llm/openai"
	"github.com/rs/zerolog"
)

// ClientSource resolves an LLM client for a request. The second return is the
// concrete model the client was resolved to.
type ClientSource interface {
	ClientFor(modelOverride string) (llm.Client, string, error)
}

// Gateway builds and caches LLM clients from the provider registry's
// preference order. Clients are cached by configuration so repeated turns
// reuse connections.
type Gateway struct {
	registry *llm.ProviderRegistry
	logger   zerolog.Logger

	mu    sync.Mutex
	cache map[llm.ClientKey]llm.Client
}

// NewGateway creates a gateway over the provider registry.
func NewGateway(registry *llm.ProviderRegistry, logger zerolog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		logger:   logger.With().Str("component", "llmGateway").Logger(),
		cache:    make(map[llm.ClientKey]llm.Client),
	}
}

// ClientFor resolves the first configured provider and returns a retry-wrapped
// client for it.
func (g *Gateway) ClientFor(modelOverride string) (llm.Client, string, error) {
	key, err := g.registry.Resolve(modelOverride)
	if err != nil {
		return nil, "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if client, ok := g.cache[*key]; ok {
		return client, key.Model, nil
	}

	var base llm.Client
	switch key.Provider {
	case llm.ProviderAnthropic:
		base, err = llmanthropic.New(key.APIKey, g.logger)
	case llm.ProviderOllama:
		base, err = llmollama.New(key.Host, key.Model)
	case llm.ProviderOpenAI:
		base, err = llmopenai.New(key.APIKey, key.BaseURL, key.Model, key.Organization)
	default:
		return nil, "", fmt.Errorf("unknown provider: %s", key.Provider)
	}
	if err != nil {
		return nil, "", fmt.Errorf("create %s client: %w", key.Provider, err)
	}

	client := llm.WrapWithRetry(base, g.logger)
	g.cache[*key] = client
	g.logger.Info().Str("provider", key.Provider).Str("model", key.Model).Msg("Resolved LLM client")
	return client, key.Model, nil
}

var _ ClientSource = (*Gateway)(nil)

package llmutil

import (
	"fmt"

	"github.com/efebarandurmaz/hrrag/internal/config"
	"github.com/efebarandurmaz/hrrag/internal/llm"
)

// Providers holds the generative and embedding providers built from config.
// Either may be nil when not configured.
type Providers struct {
	Answer llm.Provider
	Embed  llm.Provider
}

// NewProviders builds both providers from the llm and embedding sections.
// The answer provider makes a single attempt bounded by llm.timeout; the
// embedding provider retries with backoff.
func NewProviders(cfg *config.Config) (*Providers, error) {
	factory := llm.NewFactory()
	RegisterDefaultProviders(factory)

	answer, err := factory.Create(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("answer provider: %w", err)
	}
	if answer != nil && cfg.LLM.RequestsPerMinute > 0 {
		rl := llm.DefaultRateLimitConfig()
		rl.RequestsPerMinute = cfg.LLM.RequestsPerMinute
		answer = llm.WithRateLimit(answer, rl)
	}

	embedProvider := cfg.LLM.Provider
	if embedProvider == "anthropic" {
		// Anthropic has no embeddings endpoint; the key is expected to be an OpenAI one.
		embedProvider = "openai"
	}
	embed, err := factory.Create(llm.ProviderConfig{
		Provider:   embedProvider,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    embedBaseURL(cfg),
		EmbedModel: cfg.Embedding.Model,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	return &Providers{Answer: answer, Embed: embed}, nil
}

func embedBaseURL(cfg *config.Config) string {
	if cfg.LLM.Provider == "anthropic" {
		return ""
	}
	return cfg.LLM.BaseURL
}

package llmutil

import (
	"testing"
	"time"

	"github.com/efebarandurmaz/hrrag/internal/config"
	"github.com/efebarandurmaz/hrrag/internal/llm"
)

func TestRegisterDefaultProviders(t *testing.T) {
	f := llm.NewFactory()
	RegisterDefaultProviders(f)

	want := []string{"anthropic", "custom", "deepseek", "groq", "ollama", "openai", "together"}
	got := f.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
}

func TestNewProviders_NoKey(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = ""

	p, err := NewProviders(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Answer != nil || p.Embed != nil {
		t.Fatalf("expected no providers without a key, got %+v", p)
	}
}

func TestNewProviders_OpenAI(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.Timeout = 30 * time.Second
	cfg.LLM.RequestsPerMinute = 0

	p, err := NewProviders(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Answer == nil || p.Embed == nil {
		t.Fatalf("expected both providers, got %+v", p)
	}
	if _, ok := p.Answer.(*llm.RetryProvider); !ok {
		t.Errorf("answer provider should carry the timeout wrapper, got %T", p.Answer)
	}
	if p.Embed.Name() != "openai" {
		t.Errorf("expected openai embedder, got %s", p.Embed.Name())
	}
}

func TestNewProviders_AnthropicEmbedsWithOpenAI(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = "key"
	cfg.LLM.RequestsPerMinute = 10

	p, err := NewProviders(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Answer.Name() != "anthropic" {
		t.Errorf("expected anthropic answer provider, got %s", p.Answer.Name())
	}
	if _, ok := p.Answer.(*llm.RateLimitProvider); !ok {
		t.Errorf("expected rate-limited answer provider, got %T", p.Answer)
	}
	if p.Embed.Name() != "openai" {
		t.Errorf("expected openai embedder, got %s", p.Embed.Name())
	}
}

func TestNewProviders_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "mystery"
	cfg.LLM.APIKey = "key"
	if _, err := NewProviders(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(context.Context, *Prompt, *RequestOptions) (*Response, error) {
	return &Response{Content: "ok"}, nil
}

func (s *stubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func TestFactoryCreate_NotConfigured(t *testing.T) {
	f := NewFactory()
	f.Register("openai", func(cfg ProviderConfig) (Provider, error) {
		t.Fatal("constructor must not be called")
		return nil, nil
	})

	tests := []struct {
		name string
		cfg  ProviderConfig
	}{
		{"empty", ProviderConfig{}},
		{"none", ProviderConfig{Provider: "none"}},
		{"missing key", ProviderConfig{Provider: "openai"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.Create(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p != nil {
				t.Fatalf("expected nil provider, got %T", p)
			}
		})
	}
}

func TestFactoryCreate_LocalProviderWithoutKey(t *testing.T) {
	f := NewFactory()
	f.Register("ollama", func(cfg ProviderConfig) (Provider, error) {
		return &stubProvider{name: "ollama"}, nil
	})

	p, err := f.Create(ProviderConfig{Provider: "ollama"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.Name() != "ollama" {
		t.Fatalf("expected ollama provider, got %v", p)
	}
	if _, ok := p.(*RetryProvider); ok {
		t.Error("provider without timeout/retries should not be wrapped")
	}
}

func TestFactoryCreate_Unknown(t *testing.T) {
	f := NewFactory()
	f.Register("openai", func(cfg ProviderConfig) (Provider, error) { return &stubProvider{}, nil })

	_, err := f.Create(ProviderConfig{Provider: "mystery", APIKey: "k"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "mystery") || !strings.Contains(err.Error(), "openai") {
		t.Errorf("error should name the provider and the registered ones: %v", err)
	}
}

func TestFactoryCreate_ConstructorError(t *testing.T) {
	f := NewFactory()
	boom := errors.New("boom")
	f.Register("openai", func(cfg ProviderConfig) (Provider, error) { return nil, boom })

	_, err := f.Create(ProviderConfig{Provider: "openai", APIKey: "k"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped constructor error, got %v", err)
	}
}

func TestFactoryCreate_WrapsWithRetry(t *testing.T) {
	f := NewFactory()
	var got ProviderConfig
	f.Register("openai", func(cfg ProviderConfig) (Provider, error) {
		got = cfg
		return &stubProvider{name: "openai"}, nil
	})

	p, err := f.Create(ProviderConfig{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "gpt-4o-mini",
		Timeout:  30 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	retry, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected *RetryProvider, got %T", p)
	}
	if retry.config.MaxRetries != 0 {
		t.Errorf("expected 0 retries, got %d", retry.config.MaxRetries)
	}
	if retry.config.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", retry.config.Timeout)
	}
	if got.APIKey != "sk-test" || got.Model != "gpt-4o-mini" {
		t.Errorf("config not passed through: %+v", got)
	}
}

func TestFactoryNames_Sorted(t *testing.T) {
	f := NewFactory()
	for _, n := range []string{"openai", "anthropic", "groq"} {
		f.Register(n, nil)
	}
	names := f.Names()
	want := []string{"anthropic", "groq", "openai"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %s", cfg.Model)
	}
	if cfg.EmbedModel != "text-embedding-3-small" {
		t.Errorf("expected text-embedding-3-small, got %s", cfg.EmbedModel)
	}
}

func TestNewPrompt(t *testing.T) {
	p := NewPrompt("sys", "hello")
	if p.SystemPrompt != "sys" {
		t.Errorf("expected system prompt 'sys', got %q", p.SystemPrompt)
	}
	if len(p.Messages) != 1 || p.Messages[0].Role != RoleUser || p.Messages[0].Content != "hello" {
		t.Errorf("unexpected messages %+v", p.Messages)
	}
}

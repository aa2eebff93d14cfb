package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fastRetry(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("expected 2 minute timeout, got %v", cfg.Timeout)
	}
}

func TestNewRetryProvider_NilConfig(t *testing.T) {
	retry := NewRetryProvider(&mockRetryProvider{name: "test"}, nil)
	if retry.config == nil || retry.config.MaxRetries != 3 {
		t.Fatalf("expected default config, got %+v", retry.config)
	}
	if retry.Name() != "test" {
		t.Errorf("expected name 'test', got %s", retry.Name())
	}
}

func TestRetryProvider_Complete_SucceedsFirstTry(t *testing.T) {
	inner := &mockRetryProvider{responses: []*Response{{Content: "success"}}}
	retry := NewRetryProvider(inner, fastRetry(3))

	resp, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "success" {
		t.Errorf("expected 'success', got %q", resp.Content)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_RetriesServerErrors(t *testing.T) {
	inner := &mockRetryProvider{
		errors:    []error{errors.New("openai: 503 Service Unavailable: busy"), errors.New("openai: 502 Bad Gateway")},
		responses: []*Response{{Content: "third time"}},
	}
	retry := NewRetryProvider(inner, fastRetry(3))

	resp, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "third time" {
		t.Errorf("expected 'third time', got %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_NonRetryable(t *testing.T) {
	inner := &mockRetryProvider{errors: []error{errors.New("openai: 401 Unauthorized: bad key")}}
	retry := NewRetryProvider(inner, fastRetry(3))

	_, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("expected non-retryable error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_MaxRetriesExceeded(t *testing.T) {
	boom := errors.New("openai: 500 Internal Server Error")
	inner := &mockRetryProvider{errors: []error{boom, boom, boom}}
	retry := NewRetryProvider(inner, fastRetry(2))

	_, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err == nil || !strings.Contains(err.Error(), "max retries (2) exceeded") {
		t.Fatalf("expected max retries error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected wrapped original error")
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryProvider_TimeoutOnly_SingleAttempt(t *testing.T) {
	boom := errors.New("openai: 503 Service Unavailable")
	inner := &mockRetryProvider{errors: []error{boom, boom}}
	retry := NewRetryProvider(inner, TimeoutOnly(time.Second))

	_, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_AttemptTimeout(t *testing.T) {
	inner := &blockingProvider{}
	retry := NewRetryProvider(inner, TimeoutOnly(20*time.Millisecond))

	start := time.Now()
	_, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
}

func TestRetryProvider_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &blockingProvider{}
	retry := NewRetryProvider(inner, fastRetry(3))

	_, err := retry.Embed(ctx, []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryProvider_Embed_Retries(t *testing.T) {
	inner := &mockRetryProvider{
		embedErrors:    []error{errors.New("openai: 429 Too Many Requests")},
		embedResponses: [][][]float32{{{1, 2}}},
	}
	retry := NewRetryProvider(inner, fastRetry(2))

	out, err := retry.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0][1] != 2 {
		t.Errorf("unexpected embeddings %v", out)
	}
	if inner.embedCalls != 2 {
		t.Errorf("expected 2 embed calls, got %d", inner.embedCalls)
	}
}

func TestCalculateBackoff(t *testing.T) {
	r := NewRetryProvider(&mockRetryProvider{}, &RetryConfig{
		RetryDelay: 100 * time.Millisecond,
		MaxDelay:   time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := r.calculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"rate limited", errors.New("openai: 429 Too Many Requests"), true},
		{"daily quota", errors.New("429: tokens per day limit reached"), false},
		{"insufficient quota", errors.New("openai: 429: insufficient_quota"), false},
		{"server error", errors.New("openai: 500 Internal Server Error"), true},
		{"gateway", errors.New("bad gateway: 502"), true},
		{"bad request", errors.New("openai: 400 Bad Request"), false},
		{"unauthorized", errors.New("openai: 401 Unauthorized"), false},
		{"unknown", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapWithRetry(t *testing.T) {
	if WrapWithRetry(nil, ProviderConfig{}) != nil {
		t.Fatal("expected nil for nil provider")
	}

	wrapped := WrapWithRetry(&mockRetryProvider{name: "x"}, ProviderConfig{MaxRetries: 5})
	retry, ok := wrapped.(*RetryProvider)
	if !ok {
		t.Fatalf("expected *RetryProvider, got %T", wrapped)
	}
	if retry.config.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", retry.config.MaxRetries)
	}
	if retry.config.Timeout != 2*time.Minute {
		t.Errorf("expected default timeout, got %v", retry.config.Timeout)
	}
	if retry.Unwrap().Name() != "x" {
		t.Error("Unwrap should return inner provider")
	}
}

// mockRetryProvider fails with the queued errors first, then returns the queued responses.
type mockRetryProvider struct {
	name           string
	responses      []*Response
	errors         []error
	embedResponses [][][]float32
	embedErrors    []error
	calls          int
	embedCalls     int
}

func (m *mockRetryProvider) Name() string { return m.name }

func (m *mockRetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	m.calls++
	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		return nil, err
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	return nil, fmt.Errorf("mock: no more responses configured")
}

func (m *mockRetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.embedCalls++
	if len(m.embedErrors) > 0 {
		err := m.embedErrors[0]
		m.embedErrors = m.embedErrors[1:]
		return nil, err
	}
	if len(m.embedResponses) > 0 {
		resp := m.embedResponses[0]
		m.embedResponses = m.embedResponses[1:]
		return resp, nil
	}
	return nil, fmt.Errorf("mock: no more embed responses configured")
}

// blockingProvider blocks until its context is done.
type blockingProvider struct{}

func (blockingProvider) Name() string { return "blocking" }

func (blockingProvider) Complete(ctx context.Context, _ *Prompt, _ *RequestOptions) (*Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) Embed(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

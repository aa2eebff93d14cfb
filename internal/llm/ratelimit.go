package llm

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures rate limiting for providers.
type RateLimitConfig struct {
	// RequestsPerMinute limits API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// TokensPerMinute limits completion tokens per minute (0 = unlimited).
	TokensPerMinute int
	// BurstSize allows short bursts above the request rate.
	BurstSize int
}

// DefaultRateLimitConfig returns defaults that fit entry-level API tiers.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 60,
		TokensPerMinute:   60000,
		BurstSize:         5,
	}
}

// RateLimitProvider wraps a provider with request and token budgets.
type RateLimitProvider struct {
	inner    Provider
	requests *rate.Limiter
	tokens   *rate.Limiter

	requestCount atomic.Int64
	tokenCount   atomic.Int64
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	r := &RateLimitProvider{inner: inner}

	if config.RequestsPerMinute > 0 {
		burst := config.BurstSize
		if burst <= 0 {
			burst = 1
		}
		r.requests = rate.NewLimiter(perMinute(config.RequestsPerMinute), burst)
	}
	if config.TokensPerMinute > 0 {
		r.tokens = rate.NewLimiter(perMinute(config.TokensPerMinute), config.TokensPerMinute)
	}
	return r
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete waits for capacity, delegates, then charges the tokens used.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.charge(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed waits for request capacity and delegates.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	if r.requests != nil {
		if err := r.requests.Wait(ctx); err != nil {
			return err
		}
	}
	// A spent token budget shows up as a delayed reservation here.
	if r.tokens != nil {
		if err := r.tokens.Wait(ctx); err != nil {
			return err
		}
	}
	r.requestCount.Add(1)
	return nil
}

func (r *RateLimitProvider) charge(n int) {
	if n <= 0 {
		return
	}
	r.tokenCount.Add(int64(n))
	if r.tokens == nil {
		return
	}
	if b := r.tokens.Burst(); n > b {
		n = b
	}
	r.tokens.ReserveN(time.Now(), n)
}

// RateLimitStats contains cumulative rate limiting statistics.
type RateLimitStats struct {
	Requests        int64
	Tokens          int64
	AvailableTokens float64 // Current token budget (may be negative while in debt)
}

// Stats returns cumulative request/token counts.
func (r *RateLimitProvider) Stats() RateLimitStats {
	s := RateLimitStats{
		Requests: r.requestCount.Load(),
		Tokens:   r.tokenCount.Load(),
	}
	if r.tokens != nil {
		s.AvailableTokens = r.tokens.Tokens()
	}
	return s
}

// WithRateLimit wraps a provider with rate limiting. A nil provider stays nil.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}

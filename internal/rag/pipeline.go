// Package rag answers questions against the indexed policy document:
// cache lookup, vector search, hybrid rerank and answer synthesis.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efebarandurmaz/hrrag/internal/answer"
	"github.com/efebarandurmaz/hrrag/internal/cache"
	"github.com/efebarandurmaz/hrrag/internal/observability"
	"github.com/efebarandurmaz/hrrag/internal/rerank"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

const (
	DefaultTopK    = 5
	DefaultSearchK = 20

	NotFoundAnswer = "I could not find relevant policy text in the document."
)

var errDegraded = errors.New("degraded answer")

// Embedder embeds a single query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes retrieval. Zero values take the defaults.
type Config struct {
	TopK    int
	SearchK int
	Alpha   float64
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithMetrics records query outcomes and stage latencies.
func WithMetrics(m *observability.RAGMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithAudit writes every answered question to the audit log.
func WithAudit(a *observability.AuditLogger) Option {
	return func(p *Pipeline) { p.audit = a }
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline sequences one question through the retrieval stages. It is safe
// for concurrent use; each query runs its stages sequentially.
type Pipeline struct {
	cfg      Config
	embedder Embedder
	index    vector.Index
	synth    *answer.Synthesizer
	cache    *cache.QueryCache[QueryResponse]

	metrics *observability.RAGMetrics
	audit   *observability.AuditLogger
	now     func() time.Time
}

// NewCache builds a response cache that stores and returns deep copies.
func NewCache(capacity int, opts ...cache.Option) *cache.QueryCache[QueryResponse] {
	return cache.New(capacity, QueryResponse.Clone, opts...)
}

// New creates a Pipeline. index may be nil when no index is loaded; queries
// then fail with ErrIndexUnavailable. A nil cache gets a default one.
func New(cfg Config, embedder Embedder, index vector.Index, synth *answer.Synthesizer, c *cache.QueryCache[QueryResponse], opts ...Option) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.SearchK <= 0 {
		cfg.SearchK = DefaultSearchK
	}
	if synth == nil {
		synth = answer.New(nil, answer.Options{})
	}
	if c == nil {
		c = NewCache(0)
	}
	p := &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		index:    index,
		synth:    synth,
		cache:    c,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache exposes the response cache for stats reporting.
func (p *Pipeline) Cache() *cache.QueryCache[QueryResponse] { return p.cache }

// IndexSize reports the number of indexed chunks, 0 when unavailable.
func (p *Pipeline) IndexSize(ctx context.Context) int {
	if p.index == nil {
		return 0
	}
	n, err := p.index.Size(ctx)
	if err != nil {
		slog.Debug("index size unavailable", "error", err)
		return 0
	}
	if p.metrics != nil {
		p.metrics.IndexSize.Set(float64(n))
	}
	return n
}

// Query answers q using at most topK sources (topK <= 0 selects the default).
func (p *Pipeline) Query(ctx context.Context, q string, topK int) (QueryResponse, error) {
	start := p.now()
	q = strings.TrimSpace(q)
	if q == "" {
		return QueryResponse{}, ErrInvalidInput
	}
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	ctx, span := observability.StartQuerySpan(ctx, topK)
	defer span.End()

	resp, degraded, err := p.query(ctx, q, topK)
	if err != nil {
		observability.RecordError(span, err)
		p.record(q, resp, start, false, false, err)
		return QueryResponse{}, err
	}
	observability.RecordQueryResult(span, resp.Meta.Cached, degraded, len(resp.Sources), resp.Score)
	p.record(q, resp, start, degraded, len(resp.Sources) == 0 && !resp.Meta.Cached, nil)
	return resp, nil
}

// query runs the cache lookup and, on a miss, the retrieval path. Latency is
// measured from the start of the miss path.
func (p *Pipeline) query(ctx context.Context, q string, topK int) (QueryResponse, bool, error) {
	if hit, ok := p.cache.Get(q); ok {
		hit.Meta.Cached = true
		return hit, false, nil
	}

	start := p.now()
	if p.index == nil {
		return QueryResponse{}, false, ErrIndexUnavailable
	}

	qEmb, err := p.embed(ctx, q)
	if err != nil {
		return QueryResponse{}, false, err
	}

	cands, err := p.search(ctx, qEmb)
	if err != nil {
		return QueryResponse{}, false, err
	}

	if len(cands) == 0 {
		resp := QueryResponse{
			Answer:  NotFoundAnswer,
			Sources: []Source{},
			Meta:    Meta{LatencyMS: p.now().Sub(start).Milliseconds()},
		}
		p.store(ctx, q, resp, false)
		return resp, false, nil
	}

	ranked := p.rerank(ctx, q, cands, qEmb, topK)
	res := p.synthesize(ctx, q, ranked)

	sources := make([]Source, len(ranked))
	var total float64
	for i, r := range ranked {
		sources[i] = Source{ID: r.ChunkID, Page: r.Page, Text: r.Text, Score: r.CombinedScore}
		total += r.CombinedScore
	}
	var score float64
	if len(ranked) > 0 {
		score = total / float64(len(ranked))
	}

	resp := QueryResponse{
		Answer:  res.Answer,
		Sources: sources,
		Score:   score,
		Meta:    Meta{LatencyMS: p.now().Sub(start).Milliseconds()},
	}
	if !res.Canceled {
		p.store(ctx, q, resp, res.Degraded)
	}
	return resp, res.Degraded, nil
}

func (p *Pipeline) embed(ctx context.Context, q string) ([]float32, error) {
	backend := "unknown"
	if b, ok := p.embedder.(interface{ Backend() string }); ok {
		backend = b.Backend()
	}
	ctx, span := observability.StartEmbedSpan(ctx, backend, 1)
	defer span.End()
	t0 := p.now()

	if p.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrBackendUnavailable)
	}
	v, err := p.embedder.Embed(ctx, q)
	p.observe(observability.StageEmbed, t0)
	if err != nil {
		observability.RecordError(span, err)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed query: %w", ctx.Err())
		}
		if errors.Is(err, ErrBackendUnavailable) {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return nil, fmt.Errorf("%w: embed query: %w", ErrBackendUnavailable, err)
	}
	return v, nil
}

func (p *Pipeline) search(ctx context.Context, qEmb []float32) ([]vector.Candidate, error) {
	ctx, span := observability.StartSearchSpan(ctx, p.cfg.SearchK)
	defer span.End()
	t0 := p.now()

	cands, err := p.index.Search(ctx, qEmb, p.cfg.SearchK)
	p.observe(observability.StageSearch, t0)
	if err != nil {
		observability.RecordError(span, err)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("search: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	observability.RecordSearchResult(span, len(cands))
	return cands, nil
}

func (p *Pipeline) rerank(ctx context.Context, q string, cands []vector.Candidate, qEmb []float32, topK int) []rerank.Ranked {
	_, span := observability.StartRerankSpan(ctx, len(cands), topK, p.cfg.Alpha)
	defer span.End()
	t0 := p.now()
	ranked := rerank.Rerank(q, cands, qEmb, topK, p.cfg.Alpha)
	p.observe(observability.StageRerank, t0)
	return ranked
}

func (p *Pipeline) synthesize(ctx context.Context, q string, ranked []rerank.Ranked) answer.Result {
	if !p.synth.UsesLLM() {
		return p.synth.Synthesize(ctx, q, ranked)
	}
	ctx, span := observability.StartLLMSpan(ctx, p.synth.Provider())
	defer span.End()
	t0 := p.now()
	res := p.synth.Synthesize(ctx, q, ranked)
	d := p.now().Sub(t0)
	observability.RecordLLMResult(span, res.Degraded, d)
	if p.metrics != nil {
		var err error
		if res.Degraded {
			err = errDegraded
		}
		p.metrics.RecordLLMRequest(d, res.Tokens, err)
	}
	return res
}

// store writes resp to the cache unless the request was cancelled.
func (p *Pipeline) store(ctx context.Context, q string, resp QueryResponse, degraded bool) {
	if ctx.Err() != nil {
		return
	}
	if degraded {
		p.cache.SetDegraded(q, resp)
		return
	}
	p.cache.Set(q, resp)
}

func (p *Pipeline) observe(stage string, t0 time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, p.now().Sub(t0))
	}
}

func (p *Pipeline) record(q string, resp QueryResponse, start time.Time, degraded, notFound bool, err error) {
	d := p.now().Sub(start)
	if p.metrics != nil {
		p.metrics.RecordQuery(d, resp.Meta.Cached, degraded, notFound, err)
	}
	if err != nil {
		p.audit.LogQueryError(q, err)
		return
	}
	p.audit.LogQuery(observability.QueryRecord{
		Question: q,
		Sources:  resp.SourceIDs(),
		Score:    resp.Score,
		Cached:   resp.Meta.Cached,
		Degraded: degraded,
		Duration: d,
	})
}

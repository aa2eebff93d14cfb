// Package observability provides OpenTelemetry tracing, a Prometheus text
// metrics registry, structured logging setup and the query audit log.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the instrumentation scope of every hrrag span.
	TracerName = "github.com/efebarandurmaz/hrrag"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	OTLPEndpoint string
	Insecure     bool

	// SampleRate is the trace sampling rate (0.0 to 1.0).
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "hrrag",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded in the hrrag.span.kind attribute.
const (
	SpanKindQuery  = "query"
	SpanKindEmbed  = "embed"
	SpanKindSearch = "search"
	SpanKindRerank = "rerank"
	SpanKindLLM    = "llm"
	SpanKindIngest = "ingest"
)

func start(ctx context.Context, name, kind string, spanKind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("hrrag.span.kind", kind))
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(spanKind),
		trace.WithAttributes(attrs...),
	)
}

// StartQuerySpan starts the root span of a question.
func StartQuerySpan(ctx context.Context, topK int) (context.Context, trace.Span) {
	return start(ctx, "rag.query", SpanKindQuery, trace.SpanKindServer, attribute.Int("rag.top_k", topK))
}

// RecordQueryResult annotates the query span with its outcome.
func RecordQueryResult(span trace.Span, cached, degraded bool, sources int, score float64) {
	span.SetAttributes(
		attribute.Bool("rag.cached", cached),
		attribute.Bool("rag.degraded", degraded),
		attribute.Int("rag.sources", sources),
		attribute.Float64("rag.score", score),
	)
}

// StartEmbedSpan starts a span for an embedding call.
func StartEmbedSpan(ctx context.Context, backend string, texts int) (context.Context, trace.Span) {
	return start(ctx, "embedding.embed", SpanKindEmbed, trace.SpanKindClient,
		attribute.String("embedding.backend", backend),
		attribute.Int("embedding.texts", texts),
	)
}

// StartSearchSpan starts a span for a vector index search.
func StartSearchSpan(ctx context.Context, k int) (context.Context, trace.Span) {
	return start(ctx, "vector.search", SpanKindSearch, trace.SpanKindClient, attribute.Int("vector.k", k))
}

// RecordSearchResult records the number of candidates found.
func RecordSearchResult(span trace.Span, hits int) {
	span.SetAttributes(attribute.Int("vector.hits", hits))
}

// StartRerankSpan starts a span for hybrid reranking.
func StartRerankSpan(ctx context.Context, candidates, topK int, alpha float64) (context.Context, trace.Span) {
	return start(ctx, "rerank.hybrid", SpanKindRerank, trace.SpanKindInternal,
		attribute.Int("rerank.candidates", candidates),
		attribute.Int("rerank.top_k", topK),
		attribute.Float64("rerank.alpha", alpha),
	)
}

// StartLLMSpan starts a span for an answer generation call.
func StartLLMSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return start(ctx, "llm.complete", SpanKindLLM, trace.SpanKindClient, attribute.String("llm.provider", provider))
}

// RecordLLMResult records the generation outcome on a span.
func RecordLLMResult(span trace.Span, degraded bool, duration time.Duration) {
	span.SetAttributes(
		attribute.Bool("llm.degraded", degraded),
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
	)
	if degraded {
		span.SetStatus(codes.Error, "answer degraded")
	}
}

// StartIngestSpan starts a span for one ingestion stage.
func StartIngestSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return start(ctx, "ingest."+stage, SpanKindIngest, trace.SpanKindInternal, attribute.String("ingest.stage", stage))
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

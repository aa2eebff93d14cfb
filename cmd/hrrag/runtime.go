package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/hrrag/internal/answer"
	"github.com/efebarandurmaz/hrrag/internal/app"
	"github.com/efebarandurmaz/hrrag/internal/cache"
	"github.com/efebarandurmaz/hrrag/internal/config"
	"github.com/efebarandurmaz/hrrag/internal/graph"
	"github.com/efebarandurmaz/hrrag/internal/observability"
	"github.com/efebarandurmaz/hrrag/internal/rag"
	"github.com/efebarandurmaz/hrrag/internal/server"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

// runtime is everything a query-serving command needs.
type runtime struct {
	cfg      *config.Config
	backends *app.Backends
	index    vector.Store // nil until an index is built
	lineage  graph.Repository
	audit    *observability.AuditLogger
	metrics  *observability.RAGMetrics
	tracing  *observability.TracerProvider
	synth    *answer.Synthesizer
	pipeline *rag.Pipeline
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, metrics: observability.NewRAGMetrics()}

	var err error
	if rt.tracing, err = app.InitTracing(ctx, cfg); err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	if rt.audit, err = app.OpenAudit(cfg); err != nil {
		return nil, err
	}
	if rt.backends, err = app.OpenBackends(ctx, cfg); err != nil {
		return nil, err
	}

	rt.index, err = app.OpenIndex(ctx, cfg)
	switch {
	case errors.Is(err, app.ErrIndexMissing):
		slog.Warn("search index not built yet; run `hrrag index` or `hrrag build`", "dir", cfg.Vector.IndexDir)
	case err != nil:
		slog.Error("search index unavailable", "backend", cfg.Vector.Backend, "error", err)
	}
	rt.lineage = app.OpenLineage(ctx, cfg)

	rt.synth = answer.New(rt.backends.Providers.Answer, answer.Options{
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	var index vector.Index
	if rt.index != nil {
		index = rt.index
	}
	rt.pipeline = rag.New(
		rag.Config{TopK: cfg.Rerank.TopK, SearchK: cfg.Vector.SearchK, Alpha: cfg.Rerank.Alpha},
		rt.backends.QueryEmbedder(),
		index,
		rt.synth,
		rag.NewCache(cfg.Cache.Size, cache.WithDegradedTTL(cfg.Cache.DegradedTTL)),
		rag.WithMetrics(rt.metrics),
		rag.WithAudit(rt.audit),
	)
	rt.pipeline.IndexSize(ctx)
	return rt, nil
}

// hooks returns shutdown hooks for every resource the runtime opened.
func (rt *runtime) hooks() []server.ShutdownHook {
	hooks := []server.ShutdownHook{
		server.EmbedderShutdownHook(rt.backends.Close),
		server.TracingShutdownHook(rt.tracing.Shutdown),
		server.StoreShutdownHook("lineage", rt.lineage.Close),
		server.AuditLoggerShutdownHook(rt.audit.Close),
	}
	if rt.index != nil {
		hooks = append(hooks, server.StoreShutdownHook("index", func(context.Context) error {
			return rt.index.Close()
		}))
	}
	return hooks
}

// close runs the shutdown hooks in priority order for short-lived commands.
func (rt *runtime) close() {
	sh := server.NewShutdownHandler(nil)
	for _, h := range rt.hooks() {
		sh.AddHook(h)
	}
	sh.Start()
	sh.Shutdown()
	sh.Wait()
}

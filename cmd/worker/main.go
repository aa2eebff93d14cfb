package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/hrrag/internal/app"
	"github.com/efebarandurmaz/hrrag/internal/server"
	temporalmod "github.com/efebarandurmaz/hrrag/internal/temporal"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

func main() {
	configPath := "configs/hrrag.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := app.Setup(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	tracing, err := app.InitTracing(ctx, cfg)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	audit, err := app.OpenAudit(cfg)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	backends, err := app.OpenBackends(ctx, cfg)
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	if backends.Embedder == nil {
		log.Fatalf("embedding: %v", backends.EmbedErr)
	}

	store, writer, err := app.OpenWriter(ctx, cfg)
	if err != nil {
		log.Fatalf("vector store: %v", err)
	}
	lineage := app.OpenLineage(ctx, cfg)

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Indexer:  vector.NewIndexer(backends.Embedder, writer, cfg.Embedding.BatchSize),
		Store:    store,
		IndexDir: cfg.Vector.IndexDir,
		Lineage:  lineage,
		Audit:    audit,
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	slog.Info("worker started",
		"task_queue", cfg.Temporal.TaskQueue,
		"embedding", backends.Embedder.Backend(),
		"vector_backend", cfg.Vector.Backend,
	)

	sh := server.NewShutdownHandler(nil)
	sh.AddHook(server.TemporalWorkerShutdownHook(func() {
		w.Stop()
		c.Close()
	}))
	sh.AddHook(server.EmbedderShutdownHook(backends.Close))
	sh.AddHook(server.TracingShutdownHook(tracing.Shutdown))
	sh.AddHook(server.StoreShutdownHook("index", func(context.Context) error { return store.Close() }))
	sh.AddHook(server.StoreShutdownHook("lineage", lineage.Close))
	sh.AddHook(server.AuditLoggerShutdownHook(audit.Close))
	sh.Start()
	sh.Wait()

	slog.Info("worker stopped")
}

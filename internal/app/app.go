// Package app wires configuration into the concrete backends shared by the
// CLI and the ingestion worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/efebarandurmaz/hrrag/internal/config"
	"github.com/efebarandurmaz/hrrag/internal/embedding"
	"github.com/efebarandurmaz/hrrag/internal/graph"
	"github.com/efebarandurmaz/hrrag/internal/graph/neo4j"
	"github.com/efebarandurmaz/hrrag/internal/llmutil"
	"github.com/efebarandurmaz/hrrag/internal/observability"
	"github.com/efebarandurmaz/hrrag/internal/rag"
	"github.com/efebarandurmaz/hrrag/internal/redact"
	"github.com/efebarandurmaz/hrrag/internal/secrets"
	"github.com/efebarandurmaz/hrrag/internal/vector"
	"github.com/efebarandurmaz/hrrag/internal/vector/memory"
	"github.com/efebarandurmaz/hrrag/internal/vector/pgvector"
	"github.com/efebarandurmaz/hrrag/internal/vector/qdrant"
)

// Version is reported by health checks and traces.
const Version = "0.1.0"

// Setup loads configuration, resolves credential references and installs the
// configured slog default.
func Setup(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format))
	if err := ResolveSecrets(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveSecrets replaces env:, file: and vault: references in credential
// fields with the values they point to. Vault is registered only when an
// address and token are configured.
func ResolveSecrets(ctx context.Context, cfg *config.Config) error {
	providers := []secrets.Provider{secrets.EnvProvider{}, secrets.FileProvider{Dir: cfg.Secrets.Dir}}
	if cfg.Secrets.VaultAddress != "" && cfg.Secrets.VaultToken != "" {
		vp, err := secrets.NewVaultProvider(secrets.VaultConfig{
			Address:   cfg.Secrets.VaultAddress,
			Token:     cfg.Secrets.VaultToken,
			MountPath: cfg.Secrets.VaultMount,
		})
		if err != nil {
			return err
		}
		providers = append(providers, vp)
	}
	m := secrets.NewManager(providers...)
	if err := m.ResolveAll(ctx, &cfg.LLM.APIKey, &cfg.Vector.PostgresDSN, &cfg.Graph.Password); err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}
	return nil
}

// OpenIndex opens the configured backend for querying. For the memory backend
// a missing artifact directory is reported as ErrIndexMissing so callers can
// still start and answer health checks.
func OpenIndex(ctx context.Context, cfg *config.Config) (vector.Store, error) {
	switch cfg.Vector.Backend {
	case "", "memory":
		ix, err := memory.Load(cfg.Vector.IndexDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %v", ErrIndexMissing, err)
			}
			return nil, err
		}
		return ix, nil
	case "qdrant":
		repo, err := qdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "pgvector":
		repo, err := pgvector.New(ctx, cfg.Vector.PostgresDSN, cfg.Vector.Collection)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

// ErrIndexMissing means no index has been built yet.
var ErrIndexMissing = errors.New("index not built")

// OpenWriter opens the configured backend for ingestion. The returned writer
// creates the collection or table on first use; store is the raw backend,
// for Save and Close.
func OpenWriter(ctx context.Context, cfg *config.Config) (store vector.Store, w vector.Writer, err error) {
	switch cfg.Vector.Backend {
	case "", "memory":
		ix := memory.New()
		return ix, ix, nil
	case "qdrant":
		repo, err := qdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			return nil, nil, err
		}
		return repo, vector.NewPreparingWriter(repo, repo.EnsureCollection), nil
	case "pgvector":
		repo, err := pgvector.New(ctx, cfg.Vector.PostgresDSN, cfg.Vector.Collection)
		if err != nil {
			return nil, nil, err
		}
		return repo, vector.NewPreparingWriter(repo, repo.Migrate), nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

// OpenLineage connects to Neo4j when graph.uri is set. Lineage is optional,
// so a connection failure falls back to the in-memory store.
func OpenLineage(ctx context.Context, cfg *config.Config) graph.Repository {
	if cfg.Graph.URI == "" {
		return graph.NewMemory()
	}
	repo, err := neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		slog.Warn("neo4j unavailable, keeping lineage in memory", "uri", cfg.Graph.URI, "error", err)
		return graph.NewMemory()
	}
	return repo
}

// Backends bundles the model-facing components built from config.
type Backends struct {
	Providers *llmutil.Providers
	// Embedder is nil when no embedding backend could be selected; EmbedErr says why.
	Embedder *embedding.Provider
	EmbedErr error
}

// OpenBackends builds the LLM providers and selects the embedding backend.
func OpenBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	providers, err := llmutil.NewProviders(cfg)
	if err != nil {
		return nil, err
	}
	b := &Backends{Providers: providers}
	b.Embedder, b.EmbedErr = embedding.Select(ctx, embedding.Options{
		Remote:      providers.Embed,
		Local:       cfg.Embedding.Local,
		LocalModel:  cfg.Embedding.LocalModel,
		ModelDir:    cfg.Embedding.ModelDir,
		Concurrency: cfg.Embedding.Concurrency,
	})
	if b.EmbedErr != nil {
		slog.Warn("no embedding backend", "error", b.EmbedErr)
	}
	return b, nil
}

// QueryEmbedder returns the selected embedder, or one that fails every call
// with EmbedErr so queries report the backend as unavailable.
func (b *Backends) QueryEmbedder() rag.Embedder {
	if b.Embedder != nil {
		return b.Embedder
	}
	return unavailableEmbedder{err: b.EmbedErr}
}

type unavailableEmbedder struct{ err error }

func (u unavailableEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, u.err
}

// Close releases the embedding backend.
func (b *Backends) Close() error {
	if b.Embedder == nil {
		return nil
	}
	return b.Embedder.Close()
}

// InitTracing starts the OTLP exporter when tracing is enabled.
func InitTracing(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	tc := observability.DefaultTracingConfig()
	tc.ServiceVersion = Version
	if cfg.Tracing.ServiceName != "" {
		tc.ServiceName = cfg.Tracing.ServiceName
	}
	if cfg.Tracing.Enabled {
		tc.OTLPEndpoint = cfg.Tracing.Endpoint
	}
	tc.Insecure = cfg.Tracing.Insecure
	tc.SampleRate = cfg.Tracing.SampleRate
	return observability.InitTracing(ctx, tc)
}

// OpenAudit opens the JSONL audit log; an empty path gives a disabled logger.
func OpenAudit(cfg *config.Config) (*observability.AuditLogger, error) {
	ac := observability.AuditConfig{
		Enabled:    cfg.Audit.Path != "",
		OutputPath: cfg.Audit.Path,
	}
	if cfg.Audit.RedactPII {
		style, err := redact.ParseStyle(cfg.Audit.MaskingStyle)
		if err != nil {
			return nil, err
		}
		ac.Masker = redact.New(redact.Options{Style: style})
	}
	return observability.NewAuditLogger(ac)
}

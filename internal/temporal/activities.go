package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
	"github.com/efebarandurmaz/hrrag/internal/extract"
	"github.com/efebarandurmaz/hrrag/internal/graph"
	"github.com/efebarandurmaz/hrrag/internal/observability"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

// ErrTypeInvalidInput marks failures that retrying cannot fix.
const ErrTypeInvalidInput = "InvalidInput"

const (
	pagesFile  = "pages.json"
	chunksFile = "chunks.json"
)

type ExtractResult struct {
	PagesPath string
	Pages     int
}

type ChunkResult struct {
	ChunksPath string
	Chunks     int
}

type IndexResult struct {
	Indexed  int
	IndexDir string
}

// Saver persists an in-process index to disk.
type Saver interface {
	Save(dir string) error
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Indexer *vector.Indexer
	// Store is saved to IndexDir after indexing when it implements Saver.
	Store    vector.Writer
	IndexDir string
	Lineage  graph.Repository
	Audit    *observability.AuditLogger
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

func invalidInput(msg string, err error) error {
	return temporal.NewNonRetryableApplicationError(msg, ErrTypeInvalidInput, err)
}

func ExtractActivity(ctx context.Context, input IngestionInput) (ExtractResult, error) {
	ctx, span := observability.StartIngestSpan(ctx, "extract")
	defer span.End()

	if deps != nil {
		deps.Audit.LogIngestStart(activity.GetInfo(ctx).WorkflowExecution.ID, input.PDFPath)
	}

	pages, err := extract.PDF(input.PDFPath)
	if err != nil {
		observability.RecordError(span, err)
		if errors.Is(err, os.ErrNotExist) {
			return ExtractResult{}, invalidInput("pdf not found", err)
		}
		return ExtractResult{}, invalidInput("unreadable pdf", err)
	}
	if err := os.MkdirAll(input.workDir(), 0o755); err != nil {
		return ExtractResult{}, fmt.Errorf("create work dir: %w", err)
	}
	path := filepath.Join(input.workDir(), pagesFile)
	if err := extract.WritePages(path, pages); err != nil {
		return ExtractResult{}, err
	}
	slog.Info("extracted pdf", "pdf", input.PDFPath, "pages", len(pages), "out", path)
	return ExtractResult{PagesPath: path, Pages: len(pages)}, nil
}

func ChunkActivity(ctx context.Context, input IngestionInput, pagesPath string) (ChunkResult, error) {
	_, span := observability.StartIngestSpan(ctx, "chunk")
	defer span.End()

	pages, err := extract.ReadPages(pagesPath)
	if err != nil {
		observability.RecordError(span, err)
		return ChunkResult{}, err
	}

	maxChars, overlap := input.MaxChars, input.Overlap
	if maxChars == 0 {
		maxChars, overlap = chunker.DefaultMaxChars, chunker.DefaultOverlap
	}
	chunks, err := chunker.ChunkPages(pages, maxChars, overlap)
	if err != nil {
		observability.RecordError(span, err)
		return ChunkResult{}, invalidInput("bad chunking parameters", err)
	}

	path := filepath.Join(input.workDir(), chunksFile)
	if err := extract.WriteChunks(path, chunks); err != nil {
		return ChunkResult{}, err
	}
	slog.Info("chunked pages", "pages", len(pages), "chunks", len(chunks), "out", path)
	return ChunkResult{ChunksPath: path, Chunks: len(chunks)}, nil
}

func IndexActivity(ctx context.Context, input IngestionInput, chunksPath string) (IndexResult, error) {
	ctx, span := observability.StartIngestSpan(ctx, "index")
	defer span.End()
	start := time.Now()

	res, err := indexChunks(ctx, input, chunksPath)
	if err != nil {
		observability.RecordError(span, err)
	}
	if deps != nil {
		deps.Audit.LogIngestEnd(activity.GetInfo(ctx).WorkflowExecution.ID, res.Indexed, time.Since(start), err)
	}
	return res, err
}

func indexChunks(ctx context.Context, input IngestionInput, chunksPath string) (IndexResult, error) {
	if deps == nil || deps.Indexer == nil {
		return IndexResult{}, errors.New("index activity: dependencies not configured")
	}
	chunks, err := extract.ReadChunks(chunksPath)
	if err != nil {
		return IndexResult{}, err
	}

	n, err := deps.Indexer.IndexChunks(ctx, chunks)
	if err != nil {
		return IndexResult{}, err
	}

	var res IndexResult
	res.Indexed = n
	if s, ok := deps.Store.(Saver); ok && deps.IndexDir != "" {
		if err := s.Save(deps.IndexDir); err != nil {
			return IndexResult{}, fmt.Errorf("save index: %w", err)
		}
		res.IndexDir = deps.IndexDir
	}

	if deps.Lineage != nil {
		if err := deps.Lineage.StoreChunks(ctx, input.document(), chunks); err != nil {
			return IndexResult{}, fmt.Errorf("store lineage: %w", err)
		}
	}
	return res, nil
}

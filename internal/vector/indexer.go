package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
)

// BatchEmbedder produces one vector per text, in input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Indexer embeds chunks and writes them to a backend.
type Indexer struct {
	embedder  BatchEmbedder
	writer    Writer
	batchSize int
}

// NewIndexer creates an Indexer. batchSize <= 0 uses 32, the size the
// index build has always used.
func NewIndexer(embedder BatchEmbedder, writer Writer, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Indexer{embedder: embedder, writer: writer, batchSize: batchSize}
}

// IndexChunks embeds every chunk and upserts the normalized vectors.
// It returns the number of chunks written.
func (ix *Indexer) IndexChunks(ctx context.Context, chunks []chunker.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts, ix.batchSize)
	if err != nil {
		return 0, fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}

	items := make([]Item, len(chunks))
	for i := range chunks {
		items[i] = Item{Chunk: chunks[i], Embedding: Normalize(vectors[i])}
	}
	if err := ix.writer.Upsert(ctx, items); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	slog.Info("indexed chunks", "count", len(items), "dim", len(items[0].Embedding))
	return len(items), nil
}

// PreparingWriter creates backend schema on the first upsert, once the
// embedding dimension is known. A failed prepare is retried on the next call.
type PreparingWriter struct {
	writer  Writer
	prepare func(ctx context.Context, dim int) error

	mu       sync.Mutex
	prepared bool
}

func NewPreparingWriter(w Writer, prepare func(ctx context.Context, dim int) error) *PreparingWriter {
	return &PreparingWriter{writer: w, prepare: prepare}
}

func (p *PreparingWriter) Upsert(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	p.mu.Lock()
	if !p.prepared {
		if err := p.prepare(ctx, len(items[0].Embedding)); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("prepare backend: %w", err)
		}
		p.prepared = true
	}
	p.mu.Unlock()
	return p.writer.Upsert(ctx, items)
}

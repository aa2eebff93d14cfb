// Package memory is a flat inner-product index held in memory and persisted
// as meta.json plus embeddings.npy. It is the default backend: the policy
// corpus is a few hundred chunks, so brute force is exact and fast enough.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

const (
	MetaFile       = "meta.json"
	EmbeddingsFile = "embeddings.npy"
)

// Index implements vector.Store. Row i of vectors belongs to chunks[i].
type Index struct {
	mu      sync.RWMutex
	chunks  []chunker.Chunk
	vectors [][]float32
	byID    map[string]int
}

// New returns an empty index.
func New() *Index {
	return &Index{byID: make(map[string]int)}
}

// Load reads meta.json and embeddings.npy from dir.
func Load(dir string) (*Index, error) {
	metaPath := filepath.Join(dir, MetaFile)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", metaPath, err)
	}
	var chunks []chunker.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", metaPath, err)
	}

	embPath := filepath.Join(dir, EmbeddingsFile)
	f, err := os.Open(embPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", embPath, err)
	}
	defer f.Close()
	rows, err := readNPY(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", embPath, err)
	}
	if len(rows) != len(chunks) {
		return nil, fmt.Errorf("%s has %d rows but %s has %d records", embPath, len(rows), metaPath, len(chunks))
	}

	ix := New()
	for i := range chunks {
		ix.put(chunks[i], rows[i])
	}
	return ix, nil
}

// Save writes the index to dir, creating it if needed.
func (ix *Index) Save(dir string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	meta, err := json.Marshal(ix.chunks)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), meta, 0o644); err != nil {
		return err
	}

	dim := 0
	if len(ix.vectors) > 0 {
		dim = len(ix.vectors[0])
	}
	f, err := os.Create(filepath.Join(dir, EmbeddingsFile))
	if err != nil {
		return err
	}
	if err := writeNPY(f, ix.vectors, dim); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", EmbeddingsFile, err)
	}
	return f.Close()
}

// Upsert adds or replaces chunks by chunk id. Vectors are stored normalized.
func (ix *Index) Upsert(_ context.Context, items []vector.Item) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, it := range items {
		if len(ix.vectors) > 0 && len(it.Embedding) != len(ix.vectors[0]) {
			return fmt.Errorf("chunk %s: dimension %d, index has %d", it.Chunk.ChunkID, len(it.Embedding), len(ix.vectors[0]))
		}
		ix.put(it.Chunk, vector.Normalize(it.Embedding))
	}
	return nil
}

func (ix *Index) put(c chunker.Chunk, v []float32) {
	if i, ok := ix.byID[c.ChunkID]; ok {
		ix.chunks[i] = c
		ix.vectors[i] = v
		return
	}
	ix.byID[c.ChunkID] = len(ix.chunks)
	ix.chunks = append(ix.chunks, c)
	ix.vectors = append(ix.vectors, v)
}

// Search scores every row against the normalized query and returns the k best.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]vector.Candidate, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.chunks) == 0 || k <= 0 {
		return []vector.Candidate{}, nil
	}
	if dim := len(ix.vectors[0]); len(query) != dim {
		return nil, fmt.Errorf("query dimension %d, index has %d", len(query), dim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := vector.Normalize(query)
	type scored struct {
		idx   int
		score float64
	}
	all := make([]scored, len(ix.vectors))
	for i, row := range ix.vectors {
		all[i] = scored{idx: i, score: vector.Dot(q, row)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })
	if k > len(all) {
		k = len(all)
	}

	out := make([]vector.Candidate, k)
	for i := 0; i < k; i++ {
		s := all[i]
		c := ix.chunks[s.idx]
		out[i] = vector.Candidate{
			ChunkID:   c.ChunkID,
			Text:      c.Text,
			Embedding: append([]float32(nil), ix.vectors[s.idx]...),
			Page:      c.Page,
			Score:     s.score,
			Idx:       s.idx,
		}
	}
	return out, nil
}

// Size returns the number of indexed chunks.
func (ix *Index) Size(context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks), nil
}

// Chunks returns a copy of the indexed chunk records in row order.
func (ix *Index) Chunks() []chunker.Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]chunker.Chunk(nil), ix.chunks...)
}

func (ix *Index) Close() error { return nil }

var _ vector.Store = (*Index)(nil)

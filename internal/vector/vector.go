// Package vector defines the similarity index used at query time and the
// writer side used by ingestion. Backends live in subpackages.
package vector

import (
	"context"
	"math"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
)

// Candidate is one search hit. Idx is the position of the chunk in the
// backend (row number for the memory index).
type Candidate struct {
	ChunkID   string
	Text      string
	Embedding []float32
	Page      int
	Score     float64
	Idx       int
}

// Item is a chunk with its embedding, ready to be written.
type Item struct {
	Chunk     chunker.Chunk
	Embedding []float32
}

// Index is the read side: top-k inner-product search over normalized vectors.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]Candidate, error)
	Size(ctx context.Context) (int, error)
}

// Writer is the ingestion side.
type Writer interface {
	Upsert(ctx context.Context, items []Item) error
}

// Store is a backend that can be both searched and written.
type Store interface {
	Index
	Writer
	Close() error
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot returns the inner product of a and b over their common length.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Package graph stores chunk lineage: which document and page a chunk came
// from and which chunks precede and follow it in reading order.
package graph

import (
	"context"
	"errors"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
)

// ErrNotFound is returned for an unknown chunk id.
var ErrNotFound = errors.New("chunk not found")

// Lineage is a chunk together with its place in the source document.
// Prev and Next are empty at the document boundaries.
type Lineage struct {
	chunker.Chunk
	Document string `json:"document"`
	Prev     string `json:"prev,omitempty"`
	Next     string `json:"next,omitempty"`
}

// Repository provides lineage storage for indexed chunks.
type Repository interface {
	// StoreChunks records chunks of document in reading order, linking
	// consecutive chunks. Storing the same document again replaces its links.
	StoreChunks(ctx context.Context, document string, chunks []chunker.Chunk) error
	// GetChunk returns the lineage of one chunk or ErrNotFound.
	GetChunk(ctx context.Context, chunkID string) (*Lineage, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

package graph

import (
	"context"
	"sync"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
)

// Memory keeps lineage in process. It backs the HTTP chunk lookup when no
// Neo4j URI is configured.
type Memory struct {
	mu     sync.RWMutex
	chunks map[string]*Lineage
	docs   map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		chunks: make(map[string]*Lineage),
		docs:   make(map[string][]string),
	}
}

func (m *Memory) StoreChunks(_ context.Context, document string, chunks []chunker.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.docs[document] {
		delete(m.chunks, id)
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
		l := &Lineage{Chunk: c, Document: document}
		if i > 0 {
			l.Prev = chunks[i-1].ChunkID
		}
		if i < len(chunks)-1 {
			l.Next = chunks[i+1].ChunkID
		}
		m.chunks[c.ChunkID] = l
	}
	m.docs[document] = ids
	return nil
}

func (m *Memory) GetChunk(_ context.Context, chunkID string) (*Lineage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.chunks[chunkID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) Close(context.Context) error { return nil }

var _ Repository = (*Memory)(nil)

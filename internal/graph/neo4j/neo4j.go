package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
	"github.com/efebarandurmaz/hrrag/internal/graph"
)

// Repository implements graph.Repository using Neo4j.
//
// Model: (:Document {name})-[:HAS_PAGE]->(:Page {document, number})-[:CONTAINS]->(:Chunk {chunk_id, page, start_pos, end_pos, text})
// with (:Chunk)-[:NEXT]->(:Chunk) in reading order.
type Repository struct {
	driver neo4j.DriverWithContext
}

// New creates a Neo4j-backed repository.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

const storeChunksCypher = `
MERGE (d:Document {name: $document})
WITH d
OPTIONAL MATCH (d)-[:HAS_PAGE]->(:Page)-[:CONTAINS]->(old:Chunk)
DETACH DELETE old
WITH DISTINCT d
UNWIND $chunks AS c
MERGE (p:Page {document: $document, number: c.page})
MERGE (d)-[:HAS_PAGE]->(p)
MERGE (ch:Chunk {chunk_id: c.chunk_id})
SET ch.page = c.page, ch.start_pos = c.start_pos, ch.end_pos = c.end_pos, ch.text = c.text
MERGE (p)-[:CONTAINS]->(ch)`

const linkChunksCypher = `
UNWIND $pairs AS pair
MATCH (a:Chunk {chunk_id: pair.from}), (b:Chunk {chunk_id: pair.to})
MERGE (a)-[:NEXT]->(b)`

func (r *Repository) StoreChunks(ctx context.Context, document string, chunks []chunker.Chunk) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	rows := make([]map[string]any, len(chunks))
	pairs := make([]map[string]any, 0, len(chunks))
	for i, c := range chunks {
		rows[i] = map[string]any{
			"chunk_id":  c.ChunkID,
			"page":      int64(c.Page),
			"start_pos": int64(c.Start),
			"end_pos":   int64(c.End),
			"text":      c.Text,
		}
		if i > 0 {
			pairs = append(pairs, map[string]any{"from": chunks[i-1].ChunkID, "to": c.ChunkID})
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, storeChunksCypher, map[string]any{"document": document, "chunks": rows}); err != nil {
			return nil, err
		}
		if len(pairs) > 0 {
			if _, err := tx.Run(ctx, linkChunksCypher, map[string]any{"pairs": pairs}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store chunks of %s: %w", document, err)
	}
	return nil
}

const getChunkCypher = `
MATCH (c:Chunk {chunk_id: $id})
OPTIONAL MATCH (d:Document)-[:HAS_PAGE]->(:Page)-[:CONTAINS]->(c)
OPTIONAL MATCH (prev:Chunk)-[:NEXT]->(c)
OPTIONAL MATCH (c)-[:NEXT]->(next:Chunk)
RETURN c.chunk_id AS id, c.page AS page, c.start_pos AS start_pos, c.end_pos AS end_pos, c.text AS text,
       d.name AS document, prev.chunk_id AS prev, next.chunk_id AS next
LIMIT 1`

func (r *Repository) GetChunk(ctx context.Context, chunkID string) (*graph.Lineage, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, getChunkCypher, map[string]any{"id": chunkID})
		if err != nil {
			return nil, err
		}
		if !records.Next(ctx) {
			if err := records.Err(); err != nil {
				return nil, err
			}
			return nil, graph.ErrNotFound
		}
		return lineageFrom(records.Record().AsMap()), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*graph.Lineage), nil
}

func lineageFrom(row map[string]any) *graph.Lineage {
	return &graph.Lineage{
		Chunk: chunker.Chunk{
			ChunkID: asString(row["id"]),
			Page:    asInt(row["page"]),
			Start:   asInt(row["start_pos"]),
			End:     asInt(row["end_pos"]),
			Text:    asString(row["text"]),
		},
		Document: asString(row["document"]),
		Prev:     asString(row["prev"]),
		Next:     asString(row["next"]),
	}
}

// Optional matches come back as nil.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	n, _ := v.(int64)
	return int(n)
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Repository)(nil)

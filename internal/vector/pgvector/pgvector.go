// Package pgvector implements vector.Store on PostgreSQL with the pgvector
// extension, for deployments that already run Postgres.
package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/efebarandurmaz/hrrag/internal/vector"
)

// Repository stores one row per chunk in a single table.
type Repository struct {
	pool  *pgxpool.Pool
	name  string
	table string // sanitized identifier
}

// New connects to dsn. table is the chunk table name (created by Migrate).
func New(ctx context.Context, dsn, table string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}
	return &Repository{pool: pool, name: table, table: pgx.Identifier{table}.Sanitize()}, nil
}

// Migrate creates the extension and the chunk table for vectors of size dim.
func (r *Repository) Migrate(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			chunk_id  TEXT PRIMARY KEY,
			page      INTEGER NOT NULL,
			start_pos INTEGER NOT NULL,
			end_pos   INTEGER NOT NULL,
			text      TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, r.table, dim),
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("pgvector migrate: %w", err)
		}
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, items []vector.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.Migrate(ctx, len(items[0].Embedding)); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (chunk_id, page, start_pos, end_pos, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6::vector)
		ON CONFLICT (chunk_id) DO UPDATE SET
			page = EXCLUDED.page, start_pos = EXCLUDED.start_pos, end_pos = EXCLUDED.end_pos,
			text = EXCLUDED.text, embedding = EXCLUDED.embedding`, r.table)

	batch := &pgx.Batch{}
	for _, it := range items {
		c := it.Chunk
		batch.Queue(query, c.ChunkID, c.Page, c.Start, c.End, c.Text, pgvector.NewVector(it.Embedding))
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector upsert: %w", err)
	}
	return nil
}

// Search orders by cosine distance; score is 1 - distance, which equals the
// inner product for normalized vectors.
func (r *Repository) Search(ctx context.Context, vec []float32, k int) ([]vector.Candidate, error) {
	if k <= 0 {
		return []vector.Candidate{}, nil
	}
	query := fmt.Sprintf(`SELECT chunk_id, page, text, embedding::text, 1 - (embedding <=> $1::vector) AS score
		FROM %s ORDER BY embedding <=> $1::vector LIMIT $2`, r.table)

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(vector.Normalize(vec)), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var out []vector.Candidate
	for rows.Next() {
		var (
			c   vector.Candidate
			emb pgvector.Vector
		)
		if err := rows.Scan(&c.ChunkID, &c.Page, &c.Text, &emb, &c.Score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		c.Embedding = emb.Slice()
		c.Idx = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector rows: %w", err)
	}
	return out, nil
}

// Size counts rows; a missing table counts as empty.
func (r *Repository) Size(ctx context.Context) (int, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = current_schema() AND tablename = $1)`, r.name).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var n int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.table)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

var _ vector.Store = (*Repository)(nil)

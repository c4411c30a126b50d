// Package postgres implements the knowledge store on PostgreSQL with the
// pgvector extension. Chunks live in a single table with an HNSW index for
// approximate nearest-neighbour search by cosine distance.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/alexkroman/aai-agent/internal/knowledge"
)

var _ knowledge.Store = (*Store)(nil)

// Store is a PostgreSQL/pgvector knowledge store. Create instances with
// [NewStore]; the zero value is not usable. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, registers pgvector types on every
// connection, and runs the schema migration.
//
// embeddingDimensions must match the embedding model's output dimension
// (1536 for text-embedding-3-small). Changing it after the first migration
// requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: ping: %w", err)
	}
	if err := migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// migrate installs the pgvector extension and creates the chunks table and
// its HNSW index if they do not exist.
func migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if dims < 1 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS kb_chunks (
    id          TEXT         PRIMARY KEY,
    source_url  TEXT         NOT NULL,
    title       TEXT         NOT NULL DEFAULT '',
    content     TEXT         NOT NULL,
    embedding   vector(%d)   NOT NULL,
    indexed_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
)`, dims),
		`CREATE INDEX IF NOT EXISTS idx_kb_chunks_source_url ON kb_chunks (source_url)`,
		`CREATE INDEX IF NOT EXISTS idx_kb_chunks_embedding
    ON kb_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// UpsertChunks implements [knowledge.Store].
func (s *Store) UpsertChunks(ctx context.Context, chunks []knowledge.Chunk) error {
	const q = `
		INSERT INTO kb_chunks (id, source_url, title, content, embedding, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    source_url = EXCLUDED.source_url,
		    title      = EXCLUDED.title,
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    indexed_at = EXCLUDED.indexed_at`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(q, c.ID, c.SourceURL, c.Title, c.Content,
			pgvector.NewVector(c.Embedding), c.IndexedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("knowledge store: upsert chunk: %w", err)
		}
	}
	return nil
}

// DeleteSource implements [knowledge.Store].
func (s *Store) DeleteSource(ctx context.Context, sourceURL string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kb_chunks WHERE source_url = $1`, sourceURL); err != nil {
		return fmt.Errorf("knowledge store: delete source: %w", err)
	}
	return nil
}

// Search implements [knowledge.Store]. Results come back ordered by ascending
// cosine distance.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]knowledge.Result, error) {
	const q = `
		SELECT id, source_url, title, content, indexed_at,
		       embedding <=> $1 AS distance
		FROM   kb_chunks
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (knowledge.Result, error) {
		var r knowledge.Result
		err := row.Scan(
			&r.Chunk.ID,
			&r.Chunk.SourceURL,
			&r.Chunk.Title,
			&r.Chunk.Content,
			&r.Chunk.IndexedAt,
			&r.Distance,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: collect results: %w", err)
	}
	return results, nil
}

// Count implements [knowledge.Store].
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM kb_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("knowledge store: count: %w", err)
	}
	return n, nil
}

// Ping implements [knowledge.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [knowledge.Store].
func (s *Store) Close() {
	s.pool.Close()
}

// Package knowledge defines the knowledge-base store the indexer writes and
// the knowledge_base tool queries.
package knowledge

import (
	"context"
	"time"
)

// Chunk is one indexed passage of source material with its embedding.
type Chunk struct {
	// ID uniquely identifies the chunk. The indexer derives it from the
	// source URL and chunk ordinal so re-indexing a page replaces its chunks.
	ID string

	// SourceURL is the page the chunk was extracted from.
	SourceURL string

	// Title is the nearest heading above the chunk, if any.
	Title string

	// Content is the chunk text that gets fed back to the model.
	Content string

	// Embedding is the vector for Content.
	Embedding []float32

	// IndexedAt records when the chunk was (re)indexed.
	IndexedAt time.Time
}

// Result is one search hit.
type Result struct {
	Chunk Chunk

	// Distance is the cosine distance to the query embedding; smaller is
	// more similar.
	Distance float64
}

// Store persists and searches embedded chunks.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// UpsertChunks inserts the chunks, replacing any existing chunks with
	// the same IDs.
	UpsertChunks(ctx context.Context, chunks []Chunk) error

	// DeleteSource removes every chunk indexed from the given source URL.
	DeleteSource(ctx context.Context, sourceURL string) error

	// Search returns the topK chunks nearest to the query embedding,
	// most similar first.
	Search(ctx context.Context, embedding []float32, topK int) ([]Result, error)

	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}

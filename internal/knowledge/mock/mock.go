// Package mock provides an in-memory test double for the knowledge store.
package mock

import (
	"context"
	"sync"

	"github.com/alexkroman/aai-agent/internal/knowledge"
)

// Store is a configurable in-memory [knowledge.Store]. Exported *Err fields
// default to nil (success). Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	// Chunks holds every upserted chunk keyed by ID.
	Chunks map[string]knowledge.Chunk

	// SearchResult is returned by Search when set; otherwise Search returns
	// all stored chunks in insertion-independent order with distance 0.
	SearchResult []knowledge.Result

	UpsertErr error
	DeleteErr error
	SearchErr error
	CountErr  error
	PingErr   error

	// SearchCalls records the topK of every Search invocation.
	SearchCalls []int

	CloseCallCount int
}

func (m *Store) UpsertChunks(ctx context.Context, chunks []knowledge.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if m.Chunks == nil {
		m.Chunks = make(map[string]knowledge.Chunk)
	}
	for _, c := range chunks {
		m.Chunks[c.ID] = c
	}
	return nil
}

func (m *Store) DeleteSource(ctx context.Context, sourceURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	for id, c := range m.Chunks {
		if c.SourceURL == sourceURL {
			delete(m.Chunks, id)
		}
	}
	return nil
}

func (m *Store) Search(ctx context.Context, embedding []float32, topK int) ([]knowledge.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCalls = append(m.SearchCalls, topK)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if m.SearchResult != nil {
		if len(m.SearchResult) > topK {
			return m.SearchResult[:topK], nil
		}
		return m.SearchResult, nil
	}
	results := make([]knowledge.Result, 0, len(m.Chunks))
	for _, c := range m.Chunks {
		if len(results) == topK {
			break
		}
		results = append(results, knowledge.Result{Chunk: c})
	}
	return results, nil
}

func (m *Store) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return len(m.Chunks), nil
}

func (m *Store) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

func (m *Store) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCallCount++
}

var _ knowledge.Store = (*Store)(nil)

// Package indexer builds the pgvector knowledge base from documents. It
// fetches a document (plain text or the multi-page llms-full.txt format),
// cleans and chunks it, embeds every chunk, and replaces the source's rows
// in the chunk store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexkroman/aai-agent/internal/knowledge"
	"github.com/alexkroman/aai-agent/pkg/provider/embeddings"
)

const (
	// DefaultChunkSize is the target characters per chunk.
	DefaultChunkSize = 800

	// DefaultOverlapSentences is the sentence overlap between adjacent chunks.
	DefaultOverlapSentences = 2

	fetchTimeout     = 60 * time.Second
	embedBatchSize   = 64
	embedConcurrency = 4
	upsertBatchSize  = 500
)

// Option is a functional option for configuring an Indexer.
type Option func(*Indexer)

// WithChunkSize overrides the target chunk size in characters.
func WithChunkSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.chunkSize = n
		}
	}
}

// WithOverlapSentences overrides the sentence overlap between chunks.
func WithOverlapSentences(n int) Option {
	return func(ix *Indexer) {
		if n >= 0 {
			ix.overlap = n
		}
	}
}

// WithHTTPClient overrides the fetch client.
func WithHTTPClient(c *http.Client) Option {
	return func(ix *Indexer) {
		if c != nil {
			ix.client = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// Indexer is the fetch/clean/chunk/embed/upsert pipeline.
type Indexer struct {
	store     knowledge.Store
	embedder  embeddings.Provider
	client    *http.Client
	logger    *slog.Logger
	chunkSize int
	overlap   int
}

// New creates an Indexer writing into store with vectors from embedder.
func New(store knowledge.Store, embedder embeddings.Provider, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, errors.New("indexer: store must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("indexer: embedder must not be nil")
	}
	ix := &Indexer{
		store:     store,
		embedder:  embedder,
		client:    &http.Client{Timeout: fetchTimeout},
		logger:    slog.Default(),
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlapSentences,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// IndexURL fetches url and indexes its content under url as the source.
// Returns the number of chunks written.
func (ix *Indexer) IndexURL(ctx context.Context, url string) (int, error) {
	ix.logger.Info("downloading document", "url", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("indexer: build request: %w", err)
	}
	resp, err := ix.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("indexer: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("indexer: fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("indexer: read %s: %w", url, err)
	}
	ix.logger.Info("downloaded document", "url", url, "bytes", len(body))
	return ix.IndexText(ctx, url, string(body))
}

// IndexText chunks, embeds and stores one document, replacing whatever was
// previously indexed under sourceURL. Documents with "***" page separators
// (llms-full.txt format) are chunked page by page with each page's title as
// section context.
func (ix *Indexer) IndexText(ctx context.Context, sourceURL, text string) (int, error) {
	var chunks []chunk
	if strings.Contains(text, "\n***\n") {
		pages := splitPages(text)
		ix.logger.Info("split document into pages", "pages", len(pages))
		for _, p := range pages {
			chunks = append(chunks, chunkText(p.Body, p.Title, ix.chunkSize, ix.overlap)...)
		}
	} else {
		chunks = chunkText(text, "", ix.chunkSize, ix.overlap)
	}
	if len(chunks) == 0 {
		ix.logger.Warn("no chunks produced from document", "source", sourceURL)
		return 0, nil
	}

	vectors, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rows := make([]knowledge.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = knowledge.Chunk{
			ID:        fmt.Sprintf("%s#%d", sourceURL, i),
			SourceURL: sourceURL,
			Title:     c.Section,
			Content:   c.Text,
			Embedding: vectors[i],
			IndexedAt: now,
		}
	}

	if err := ix.store.DeleteSource(ctx, sourceURL); err != nil {
		return 0, fmt.Errorf("indexer: clear previous index: %w", err)
	}
	for start := 0; start < len(rows); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(rows))
		if err := ix.store.UpsertChunks(ctx, rows[start:end]); err != nil {
			return 0, fmt.Errorf("indexer: store chunks: %w", err)
		}
		ix.logger.Info("indexed chunks", "from", start, "to", end-1)
	}
	ix.logger.Info("document indexed", "source", sourceURL, "chunks", len(rows))
	return len(rows), nil
}

// embedAll embeds every chunk, batched and fanned out across a bounded
// number of provider calls. vectors[i] corresponds to chunks[i].
func (ix *Indexer) embedAll(ctx context.Context, chunks []chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i, c := range chunks[start:end] {
				texts[i] = c.Text
			}
			vecs, err := ix.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("indexer: embed chunks %d-%d: %w", start, end-1, err)
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

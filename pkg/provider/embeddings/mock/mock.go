// Package mock provides a deterministic test double for embeddings.Provider.
//
// Vectors are derived from the input text so tests can assert that the same
// text embeds to the same vector without a network call.
package mock

import (
	"context"
	"sync"

	"github.com/alexkroman/aai-agent/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Dim is the vector dimensionality. Defaults to 8 if zero.
	Dim int

	// EmbedErr, if non-nil, is returned by Embed and EmbedBatch.
	EmbedErr error

	// Vectors, if non-nil, maps exact input text to a fixed vector,
	// overriding the derived one.
	Vectors map[string][]float32

	// EmbedCalls records every text passed to Embed or EmbedBatch, in order.
	EmbedCalls []string
}

// Embed derives a deterministic vector from text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.vector(text), nil
}

// EmbedBatch derives deterministic vectors for each text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, texts...)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// vector maps text to a fixed-length vector. Callers must hold p.mu.
func (p *Provider) vector(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return v
	}
	dim := p.Dim
	if dim == 0 {
		dim = 8
	}
	v := make([]float32, dim)
	for i, r := range text {
		v[i%dim] += float32(r) / 1000
	}
	return v
}

// Dimensions returns Dim, defaulting to 8.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Dim == 0 {
		return 8
	}
	return p.Dim
}

// ModelID identifies the mock model.
func (p *Provider) ModelID() string { return "mock-embeddings" }

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Package openai implements embeddings.Provider on top of the OpenAI
// embeddings endpoint. One Provider embeds with one fixed model; the
// knowledge-base indexer and the query path share the same instance so
// vectors stay comparable.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/alexkroman/aai-agent/pkg/provider/embeddings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// dims maps a model-name substring to that family's vector width.
var dims = []struct {
	substr string
	n      int
}{
	{"text-embedding-3-large", 3072},
	{"text-embedding-3-small", 1536},
	{"text-embedding-ada-002", 1536},
}

// fallbackDims is assumed for models the table does not know. A wrong guess
// surfaces as a column-width error at the vector store, not as silent
// corruption.
const fallbackDims = 1536

var _ embeddings.Provider = (*Provider)(nil)

// Provider embeds text via the OpenAI API with a fixed model.
type Provider struct {
	client oai.Client
	model  string
}

// Option customizes the underlying HTTP client.
type Option func(*settings)

type settings struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL points the client at a compatible non-default endpoint, such
// as a proxy or an Azure deployment.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithTimeout bounds each embeddings request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// New returns a Provider for the given model, or DefaultModel when model is
// empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	var s settings
	for _, o := range opts {
		o(&s)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Embed returns the vector for one text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	input := oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)}
	vecs, err := p.request(ctx, input, 1)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input := oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}
	vecs, err := p.request(ctx, input, len(texts))
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	return vecs, nil
}

// request runs one embeddings call and reassembles the response into input
// order. Each vector's position comes from its Index field; response
// ordering carries no guarantee.
func (p *Provider) request(ctx context.Context, input oai.EmbeddingNewParamsInputUnion, want int) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: input,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("got %d vectors for %d inputs", len(resp.Data), want)
	}

	out := make([][]float32, want)
	for _, d := range resp.Data {
		if int(d.Index) >= want {
			return nil, fmt.Errorf("vector index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Dimensions reports the vector width of the configured model.
func (p *Provider) Dimensions() int {
	name := strings.ToLower(p.model)
	for _, d := range dims {
		if strings.Contains(name, d.substr) {
			return d.n
		}
	}
	return fallbackDims
}

// ModelID returns the configured model name.
func (p *Provider) ModelID() string { return p.model }

package indexer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alexkroman/aai-agent/internal/knowledge"
	knowledgemock "github.com/alexkroman/aai-agent/internal/knowledge/mock"
	embedmock "github.com/alexkroman/aai-agent/pkg/provider/embeddings/mock"
)

const testDoc = `# Getting Started

AssemblyAI provides speech recognition APIs for developers. The streaming
API accepts raw audio and returns transcripts in real time. Sessions are
authenticated with temporary tokens minted by your backend.
`

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, &embedmock.Provider{}); err == nil {
		t.Error("New(nil store) error = nil, want error")
	}
	if _, err := New(&knowledgemock.Store{}, nil); err == nil {
		t.Error("New(nil embedder) error = nil, want error")
	}
}

func TestIndexTextReplacesSource(t *testing.T) {
	store := &knowledgemock.Store{Chunks: map[string]knowledge.Chunk{
		"stale": {ID: "stale", SourceURL: "https://docs.example.com", Content: "old"},
		"other": {ID: "other", SourceURL: "https://elsewhere.example.com", Content: "keep"},
	}}
	ix, err := New(store, &embedmock.Provider{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	n, err := ix.IndexText(context.Background(), "https://docs.example.com", testDoc)
	if err != nil {
		t.Fatalf("IndexText() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("IndexText() = %d, want 1", n)
	}

	if _, ok := store.Chunks["stale"]; ok {
		t.Error("stale chunk for the source survived reindexing")
	}
	if _, ok := store.Chunks["other"]; !ok {
		t.Error("chunk from another source was deleted")
	}

	c, ok := store.Chunks["https://docs.example.com#0"]
	if !ok {
		t.Fatalf("expected chunk id not found; have %v", keys(store.Chunks))
	}
	if c.SourceURL != "https://docs.example.com" {
		t.Errorf("SourceURL = %q", c.SourceURL)
	}
	if c.Title != "Getting Started" {
		t.Errorf("Title = %q", c.Title)
	}
	if len(c.Embedding) == 0 {
		t.Error("chunk stored without embedding")
	}
	if c.IndexedAt.IsZero() {
		t.Error("IndexedAt is zero")
	}
}

func TestIndexTextEmptyDocument(t *testing.T) {
	store := &knowledgemock.Store{}
	ix, err := New(store, &embedmock.Provider{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	n, err := ix.IndexText(context.Background(), "https://docs.example.com", "   \n")
	if err != nil {
		t.Fatalf("IndexText() error = %v", err)
	}
	if n != 0 {
		t.Errorf("IndexText() = %d, want 0", n)
	}
	if len(store.Chunks) != 0 {
		t.Errorf("store has %d chunks, want 0", len(store.Chunks))
	}
}

func TestIndexTextEmbedFailureLeavesStoreUntouched(t *testing.T) {
	store := &knowledgemock.Store{Chunks: map[string]knowledge.Chunk{
		"stale": {ID: "stale", SourceURL: "https://docs.example.com", Content: "old"},
	}}
	ix, err := New(store, &embedmock.Provider{EmbedErr: errors.New("quota exceeded")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := ix.IndexText(context.Background(), "https://docs.example.com", testDoc); err == nil {
		t.Fatal("IndexText() error = nil, want embed error")
	}
	if _, ok := store.Chunks["stale"]; !ok {
		t.Error("previous index was deleted despite embed failure")
	}
}

func TestIndexTextMultiPage(t *testing.T) {
	doc := testDoc + "\n***\n\n# Billing\n\nUsage is billed per audio hour at the published rate. Invoices arrive monthly by email with a usage breakdown attached.\n"
	store := &knowledgemock.Store{}
	ix, err := New(store, &embedmock.Provider{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	n, err := ix.IndexText(context.Background(), "https://docs.example.com/llms-full.txt", doc)
	if err != nil {
		t.Fatalf("IndexText() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("IndexText() = %d, want 2 chunks across pages: %v", n, keys(store.Chunks))
	}
}

func TestIndexURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testDoc))
	}))
	defer srv.Close()

	store := &knowledgemock.Store{}
	ix, err := New(store, &embedmock.Provider{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	n, err := ix.IndexURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("IndexURL() error = %v", err)
	}
	if n != 1 {
		t.Errorf("IndexURL() = %d, want 1", n)
	}
	for _, c := range store.Chunks {
		if c.SourceURL != srv.URL {
			t.Errorf("SourceURL = %q, want %q", c.SourceURL, srv.URL)
		}
	}
}

func TestIndexURLHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ix, err := New(&knowledgemock.Store{}, &embedmock.Provider{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = ix.IndexURL(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("IndexURL() error = nil, want status error")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("IndexURL() error = %v, want status in message", err)
	}
}

func keys(m map[string]knowledge.Chunk) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

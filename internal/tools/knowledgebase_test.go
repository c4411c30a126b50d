package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alexkroman/aai-agent/internal/knowledge"
	knowmock "github.com/alexkroman/aai-agent/internal/knowledge/mock"
	embmock "github.com/alexkroman/aai-agent/pkg/provider/embeddings/mock"
)

func TestKnowledgeBaseInvoke(t *testing.T) {
	store := &knowmock.Store{
		SearchResult: []knowledge.Result{
			{Chunk: knowledge.Chunk{Title: "Getting started", Content: "Install the SDK."}},
			{Chunk: knowledge.Chunk{Content: "Set your API key."}},
		},
	}
	embedder := &embmock.Provider{}
	tool := NewKnowledgeBase(store, embedder, nil)

	got, err := tool.Invoke(context.Background(), `{"query":"how do I start"}`)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !strings.Contains(got, "Getting started") || !strings.Contains(got, "Install the SDK.") {
		t.Errorf("Invoke() = %q, missing first hit", got)
	}
	if !strings.Contains(got, "Set your API key.") {
		t.Errorf("Invoke() = %q, missing second hit", got)
	}
	if len(embedder.EmbedCalls) != 1 || embedder.EmbedCalls[0] != "how do I start" {
		t.Errorf("embed calls = %v, want the query embedded once", embedder.EmbedCalls)
	}
	if len(store.SearchCalls) != 1 || store.SearchCalls[0] != defaultTopK {
		t.Errorf("search calls = %v, want one call with topK %d", store.SearchCalls, defaultTopK)
	}
}

func TestKnowledgeBaseInvokeNoHits(t *testing.T) {
	tool := NewKnowledgeBase(&knowmock.Store{}, &embmock.Provider{}, nil)
	got, err := tool.Invoke(context.Background(), `{"query":"anything"}`)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !strings.Contains(got, "No relevant passages") {
		t.Errorf("Invoke() = %q, want no-results text", got)
	}
}

func TestKnowledgeBaseInvokeErrors(t *testing.T) {
	tool := NewKnowledgeBase(&knowmock.Store{}, &embmock.Provider{}, nil)
	if _, err := tool.Invoke(context.Background(), `{"query":"  "}`); err == nil {
		t.Error("Invoke(blank query) error = nil, want non-nil")
	}

	tool = NewKnowledgeBase(&knowmock.Store{}, &embmock.Provider{EmbedErr: errors.New("quota")}, nil)
	if _, err := tool.Invoke(context.Background(), `{"query":"q"}`); err == nil {
		t.Error("Invoke() with embed failure error = nil, want non-nil")
	}

	tool = NewKnowledgeBase(&knowmock.Store{SearchErr: errors.New("db down")}, &embmock.Provider{}, nil)
	if _, err := tool.Invoke(context.Background(), `{"query":"q"}`); err == nil {
		t.Error("Invoke() with search failure error = nil, want non-nil")
	}
}

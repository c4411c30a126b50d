package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alexkroman/aai-agent/internal/agent"
	"github.com/alexkroman/aai-agent/internal/knowledge"
	"github.com/alexkroman/aai-agent/pkg/provider/embeddings"
	"github.com/alexkroman/aai-agent/pkg/provider/llm"
)

const defaultTopK = 5

// KnowledgeBase searches the indexed documentation. The query is embedded and
// matched against stored chunks by cosine distance; the nearest chunks come
// back as plain text for the model to draw on.
type KnowledgeBase struct {
	store    knowledge.Store
	embedder embeddings.Provider
	topK     int
	logger   *slog.Logger
}

// NewKnowledgeBase returns the knowledge-base search tool.
func NewKnowledgeBase(store knowledge.Store, embedder embeddings.Provider, logger *slog.Logger) *KnowledgeBase {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeBase{
		store:    store,
		embedder: embedder,
		topK:     defaultTopK,
		logger:   logger,
	}
}

func (k *KnowledgeBase) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        string(KindKnowledgeBase),
		Description: "Search the indexed knowledge base for passages relevant to a query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look up, phrased as a question or topic.",
				},
			},
			"required": []string{"query"},
		},
	}
}

func (k *KnowledgeBase) Invoke(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("tools: knowledge_base: parse arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("tools: knowledge_base: query must not be empty")
	}

	vec, err := k.embedder.Embed(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("tools: knowledge_base: embed query: %w", err)
	}
	results, err := k.store.Search(ctx, vec, k.topK)
	if err != nil {
		return "", fmt.Errorf("tools: knowledge_base: search: %w", err)
	}
	if len(results) == 0 {
		return "No relevant passages found in the knowledge base.", nil
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		if r.Chunk.Title != "" {
			sb.WriteString(r.Chunk.Title)
			sb.WriteString("\n")
		}
		sb.WriteString(r.Chunk.Content)
	}
	k.logger.Debug("knowledge base search", "query", args.Query, "hits", len(results))
	return sb.String(), nil
}

var _ agent.Tool = (*KnowledgeBase)(nil)

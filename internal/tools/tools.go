// Package tools provides the agent tool implementations and the closed set
// of tool kinds the config may name.
//
// Tool kinds are resolved to constructors once at startup. A config naming an
// unknown kind fails at load time, not on the first call mid-conversation.
package tools

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alexkroman/aai-agent/internal/agent"
	"github.com/alexkroman/aai-agent/internal/knowledge"
	"github.com/alexkroman/aai-agent/pkg/provider/embeddings"
)

// Kind identifies one built-in tool.
type Kind string

// The closed set of built-in tool kinds.
const (
	KindGetWeather    Kind = "get_weather"
	KindVisitURL      Kind = "visit_url"
	KindKnowledgeBase Kind = "knowledge_base"
)

// ParseKind maps a config name onto a known tool kind.
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindGetWeather, KindVisitURL, KindKnowledgeBase:
		return Kind(name), nil
	}
	return "", fmt.Errorf("tools: unknown tool %q", name)
}

// Deps carries the shared dependencies tool constructors may need. Kinds that
// need a missing dependency fail at Build time.
type Deps struct {
	// HTTPClient is used by network-touching tools. Nil means each tool
	// builds its own client with its default timeout.
	HTTPClient *http.Client

	// Knowledge and Embedder back the knowledge_base tool.
	Knowledge knowledge.Store
	Embedder  embeddings.Provider

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Build resolves the named tool kinds into ready agent tools. Unknown names
// and unsatisfiable kinds are reported as errors; nothing is partially built.
func Build(names []string, deps Deps) ([]agent.Tool, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	built := make([]agent.Tool, 0, len(names))
	for _, name := range names {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindGetWeather:
			built = append(built, NewGetWeather())
		case KindVisitURL:
			built = append(built, NewVisitURL(deps.HTTPClient))
		case KindKnowledgeBase:
			if deps.Knowledge == nil || deps.Embedder == nil {
				return nil, fmt.Errorf("tools: %s requires a knowledge store and an embeddings provider", kind)
			}
			built = append(built, NewKnowledgeBase(deps.Knowledge, deps.Embedder, deps.Logger))
		}
	}
	return built, nil
}

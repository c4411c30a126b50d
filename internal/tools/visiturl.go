package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/alexkroman/aai-agent/internal/agent"
	"github.com/alexkroman/aai-agent/pkg/provider/llm"
)

const (
	visitTimeout   = 15 * time.Second
	visitMaxChars  = 8000
	visitUserAgent = "aai-agent/0.1"
)

// VisitURL fetches a web page and returns its text content. HTML pages are
// reduced to their visible text; anything else is returned verbatim. Output
// is capped so a single page cannot flood the model's context.
type VisitURL struct {
	client *http.Client
}

// NewVisitURL returns the page-fetching tool. A nil client gets a default
// with the standard 15 second timeout.
func NewVisitURL(client *http.Client) *VisitURL {
	if client == nil {
		client = &http.Client{Timeout: visitTimeout}
	}
	return &VisitURL{client: client}
}

func (v *VisitURL) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        string(KindVisitURL),
		Description: "Fetch a web page and return its text content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": `The full URL to visit, e.g. "https://example.com".`,
				},
			},
			"required": []string{"url"},
		},
	}
}

func (v *VisitURL) Invoke(ctx context.Context, arguments string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("tools: visit_url: parse arguments: %w", err)
	}
	if args.URL == "" {
		return "", fmt.Errorf("tools: visit_url: url must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return "", fmt.Errorf("tools: visit_url: build request: %w", err)
	}
	req.Header.Set("User-Agent", visitUserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tools: visit_url: fetch %s: %w", args.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("tools: visit_url: %s returned status %d", args.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("tools: visit_url: read body: %w", err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		if extracted, err := ExtractText(strings.NewReader(text)); err == nil {
			text = extracted
		}
	}

	if len(text) > visitMaxChars {
		text = text[:visitMaxChars] + "\n\n[truncated]"
	}
	return text, nil
}

// ExtractText reduces an HTML document to its visible text. Script, style and
// image subtrees are dropped; block-level boundaries become newlines.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("tools: parse html: %w", err)
	}
	var sb strings.Builder
	walkText(doc, &sb)
	return collapseBlankLines(sb.String()), nil
}

func walkText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "img", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			sb.WriteString(t)
			sb.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb)
	}
	if n.Type == html.ElementNode && isBlockElement(n.Data) {
		sb.WriteByte('\n')
	}
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "tr", "section", "article", "header", "footer",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "table", "blockquote", "pre":
		return true
	}
	return false
}

// collapseBlankLines trims trailing spaces per line and squeezes runs of
// blank lines down to one.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

var _ agent.Tool = (*VisitURL)(nil)

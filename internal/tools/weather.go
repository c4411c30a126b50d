package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexkroman/aai-agent/internal/agent"
	"github.com/alexkroman/aai-agent/pkg/provider/llm"
)

// GetWeather is the scaffold demo tool. It answers with a canned report so a
// freshly generated project has a working tool call before any real
// integrations are wired up.
type GetWeather struct{}

// NewGetWeather returns the demo weather tool.
func NewGetWeather() *GetWeather { return &GetWeather{} }

func (g *GetWeather) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        string(KindGetWeather),
		Description: "Get the current weather for a city.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{
					"type":        "string",
					"description": `The city to get weather for, e.g. "San Francisco".`,
				},
			},
			"required": []string{"city"},
		},
	}
}

func (g *GetWeather) Invoke(ctx context.Context, arguments string) (string, error) {
	var args struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("tools: get_weather: parse arguments: %w", err)
	}
	if args.City == "" {
		return "", fmt.Errorf("tools: get_weather: city must not be empty")
	}
	return fmt.Sprintf("The weather in %s is 72°F and sunny.", args.City), nil
}

var _ agent.Tool = (*GetWeather)(nil)

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexkroman/aai-agent/internal/agent"
	"github.com/alexkroman/aai-agent/pkg/provider/llm"
)

// mcpCallTimeout bounds each tool execution when the caller context carries
// no deadline of its own.
const mcpCallTimeout = 30 * time.Second

// MCPServerConfig describes one external MCP server to connect to.
type MCPServerConfig struct {
	// Name identifies the server in logs and errors. Must be unique.
	Name string

	// Transport is "stdio" or "http".
	Transport string

	// Command is the executable (with arguments, space-separated) for stdio
	// transport.
	Command string

	// URL is the endpoint for http transport.
	URL string

	// Env holds extra environment variables for stdio servers. May be nil.
	Env map[string]string
}

// MCPBridge connects to external MCP servers and exposes their tools as
// agent tools. Create with [ConnectMCP]; Close releases all sessions.
type MCPBridge struct {
	client   *mcpsdk.Client
	sessions []*mcpsdk.ClientSession
	tools    []agent.Tool
}

// ConnectMCP dials every configured server, lists its tools, and wraps each
// one as an [agent.Tool]. Any connection or listing failure aborts the whole
// bridge; already-open sessions are closed before returning.
func ConnectMCP(ctx context.Context, configs []MCPServerConfig) (*MCPBridge, error) {
	b := &MCPBridge{
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "aai-agent", Version: "0.1.0"},
			nil,
		),
	}
	seen := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		if cfg.Name == "" {
			b.Close()
			return nil, errors.New("tools: mcp server config must have a name")
		}
		if _, dup := seen[cfg.Name]; dup {
			b.Close()
			return nil, fmt.Errorf("tools: duplicate mcp server %q", cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
		if err := b.connect(ctx, cfg); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *MCPBridge) connect(ctx context.Context, cfg MCPServerConfig) error {
	var transport mcpsdk.Transport
	switch cfg.Transport {
	case "stdio":
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio mcp server %q requires a command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case "http":
		if cfg.URL == "" {
			return fmt.Errorf("tools: http mcp server %q requires a url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("tools: unknown mcp transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: connect mcp server %q: %w", cfg.Name, err)
	}
	b.sessions = append(b.sessions, session)

	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return fmt.Errorf("tools: list tools for mcp server %q: %w", cfg.Name, err)
		}
		b.tools = append(b.tools, &mcpTool{
			session: session,
			def: llm.ToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaToMap(tool.InputSchema),
			},
		})
	}
	return nil
}

// Tools returns the wrapped tools from all connected servers.
func (b *MCPBridge) Tools() []agent.Tool { return b.tools }

// Close closes every server session. Safe to call more than once.
func (b *MCPBridge) Close() {
	for _, s := range b.sessions {
		_ = s.Close()
	}
	b.sessions = nil
}

// mcpTool routes one remote tool through its server session.
type mcpTool struct {
	session *mcpsdk.ClientSession
	def     llm.ToolDefinition
}

func (t *mcpTool) Definition() llm.ToolDefinition { return t.def }

func (t *mcpTool) Invoke(ctx context.Context, arguments string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mcpCallTimeout)
		defer cancel()
	}

	var argsMap map[string]any
	if arguments != "" && arguments != "{}" {
		if err := json.Unmarshal([]byte(arguments), &argsMap); err != nil {
			return "", fmt.Errorf("tools: invalid arguments for mcp tool %q: %w", t.def.Name, err)
		}
	}

	result, err := t.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return "", fmt.Errorf("tools: mcp tool %q: %w", t.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tools: mcp tool %q: %s", t.def.Name, sb.String())
	}
	return sb.String(), nil
}

// splitCommand splits a command string into executable and arguments.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// schemaToMap converts any schema value into a plain map for the tool
// definition, falling back to an empty object schema.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

var _ agent.Tool = (*mcpTool)(nil)

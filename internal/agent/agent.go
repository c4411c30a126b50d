// Package agent implements the per-session conversational agent.
//
// An Agent owns one conversation history and answers one message at a time
// through a bounded tool-calling loop. The hard requirement is history
// integrity under cancellation: a chat call that is cancelled or fails
// mid-flight must leave the history exactly as it was before the call, and a
// reasoning engine corrupted by an interruption must be rebuilt transparently
// without losing the conversation accumulated so far.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alexkroman/aai-agent/pkg/provider/llm"
)

// DefaultModel is the model used via the LLM gateway when none is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// DefaultGreeting is spoken when the assistant first connects.
const DefaultGreeting = "Hey there! I'm a voice assistant. What can I help you with?"

// DefaultInstructions is the voice-optimized system prompt.
const DefaultInstructions = `You are a helpful voice assistant. Your goal is to provide accurate, research-backed answers using your available tools.

Voice-First Rules:
- Optimize for natural speech. Avoid jargon unless central to the answer. Use short, punchy sentences.
- Never mention "search results," "sources," or "the provided text." Speak as if the knowledge is your own.
- No visual formatting. Do not say "bullet point," "bold," or "bracketed one." If you need to list items, say "First," "Next," and "Finally."
- Start with the most important information. No introductory filler.
- Be concise. For complex topics, provide a high-level summary.
- Be confident. Avoid hedging phrases like "It seems that" or "I believe."
- If you don't have enough information, say so directly rather than guessing.`

// VoiceRules is appended to the instructions to keep answers speakable.
const VoiceRules = "\n\nCRITICAL: When you produce your final answer, it will be spoken aloud by a TTS system. " +
	"Write your answer exactly as you would say it out loud to a friend. " +
	"One to two sentences max. No markdown, no bullet points, no numbered lists, no code. " +
	"Sound like a human talking, not a document."

// fallbackText is spoken when a chat call fails for any non-cancellation
// reason.
const fallbackText = "Sorry, something went wrong. Could you say that again?"

const defaultMaxSteps = 3

// Tool is one capability the agent may invoke during its reasoning loop.
// Implementations must be safe for concurrent use across sessions.
type Tool interface {
	// Definition describes the tool to the model.
	Definition() llm.ToolDefinition

	// Invoke runs the tool with the model-supplied JSON arguments and
	// returns the text result fed back into the conversation.
	Invoke(ctx context.Context, arguments string) (string, error)
}

// FallbackPrompt is the template for the last-resort answer produced when
// the step budget runs out before the model reaches a final answer.
type FallbackPrompt struct {
	// Pre is prepended to the conversation as a system-level instruction.
	Pre string

	// Post is appended as the closing user message demanding an answer now.
	Post string
}

// DefaultFallbackPrompt asks the model to wrap up with whatever it has.
var DefaultFallbackPrompt = FallbackPrompt{
	Pre:  "You ran out of tool-use budget while answering the user.",
	Post: "Answer the user's question now, in one or two spoken sentences, using only what you already know from this conversation. Do not call any tools.",
}

// Option is a functional option for configuring an Agent.
type Option func(*Agent)

// WithGreeting overrides the greeting text. An empty string disables it.
func WithGreeting(greeting string) Option {
	return func(a *Agent) {
		a.greeting = greeting
	}
}

// WithInstructions overrides the system prompt.
func WithInstructions(instructions string) Option {
	return func(a *Agent) {
		a.instructions = instructions
	}
}

// WithVoiceRules overrides the voice-rules suffix. An empty string disables it.
func WithVoiceRules(rules string) Option {
	return func(a *Agent) {
		a.voiceRules = rules
	}
}

// WithMaxSteps sets the reasoning step budget per chat call.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		a.maxSteps = n
	}
}

// WithTools sets the tools offered to the model.
func WithTools(tools []Tool) Option {
	return func(a *Agent) {
		a.tools = tools
	}
}

// WithFallbackPrompt overrides the step-budget fallback template.
func WithFallbackPrompt(p FallbackPrompt) Option {
	return func(a *Agent) {
		a.fallback = p
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// Agent is a per-session conversational agent. Safe for concurrent use; at
// most one Chat call makes progress at a time, a second call cancels the
// first.
type Agent struct {
	greeting     string
	instructions string
	voiceRules   string
	maxSteps     int
	tools        []Tool
	toolsByName  map[string]Tool
	toolDefs     []llm.ToolDefinition
	fallback     FallbackPrompt
	logger       *slog.Logger

	newEngine func() *engine

	mu      sync.Mutex
	eng     *engine
	history []llm.Message
	// cancelRun points at the in-flight call's cancel func. The pointer
	// gives each call an identity, so a finished call clears only its own
	// registration and never a successor's.
	cancelRun *context.CancelFunc
}

// New creates an Agent backed by the given LLM provider.
func New(provider llm.Provider, opts ...Option) (*Agent, error) {
	if provider == nil {
		return nil, errors.New("agent: provider must not be nil")
	}
	a := &Agent{
		greeting:     DefaultGreeting,
		instructions: DefaultInstructions,
		voiceRules:   VoiceRules,
		maxSteps:     defaultMaxSteps,
		fallback:     DefaultFallbackPrompt,
		logger:       slog.Default(),
		newEngine:    func() *engine { return newEngine(provider) },
	}
	for _, o := range opts {
		o(a)
	}
	if a.maxSteps < 1 {
		return nil, errors.New("agent: max steps must be at least 1")
	}
	a.toolsByName = make(map[string]Tool, len(a.tools))
	for _, t := range a.tools {
		def := t.Definition()
		if _, dup := a.toolsByName[def.Name]; dup {
			return nil, fmt.Errorf("agent: duplicate tool %q", def.Name)
		}
		a.toolsByName[def.Name] = t
		a.toolDefs = append(a.toolDefs, def)
	}
	a.eng = a.newEngine()
	return a, nil
}

// Greeting returns the static greeting text.
func (a *Agent) Greeting() string { return a.greeting }

// HistoryLen reports the number of committed history messages.
func (a *Agent) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// Cancel aborts any in-flight Chat call. The aborted call observes a
// context cancellation and leaves the history untouched. Safe to call when
// nothing is in flight.
func (a *Agent) Cancel() {
	a.mu.Lock()
	cancel := a.cancelRun
	a.cancelRun = nil
	a.mu.Unlock()
	if cancel != nil {
		(*cancel)()
	}
}

// Reset cancels any in-flight call and clears the conversation history.
func (a *Agent) Reset() {
	a.Cancel()
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

// Chat sends one user message through the reasoning loop and returns the
// assistant's answer plus a human-readable trace of the tool steps taken.
//
// History is committed only when the call runs to completion: cancellation
// (via ctx or Cancel) and errors leave the history exactly as it was. A
// non-cancellation failure returns a spoken-appropriate fallback text and a
// nil error; the session should keep going.
func (a *Agent) Chat(ctx context.Context, message string, reset bool) (string, []string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", nil, errors.New("agent: message must not be empty")
	}

	// A new message supersedes whatever is still running.
	a.Cancel()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	if reset {
		a.history = nil
	}
	if !a.eng.isValid() {
		a.logger.Warn("rebuilding reasoning engine after abnormal interruption")
		a.eng = a.newEngine()
	}
	eng := a.eng
	snapshot := make([]llm.Message, len(a.history))
	copy(snapshot, a.history)
	a.cancelRun = &cancel
	a.mu.Unlock()

	working := append(snapshot, llm.Message{Role: "user", Content: message})
	trace := &Trace{}
	text, final, err := a.run(runCtx, eng, working, trace)

	switch {
	case err == nil:
		// Commit only if no cancel raced the completion.
		a.mu.Lock()
		if runCtx.Err() == nil {
			a.history = final
			if a.cancelRun == &cancel {
				a.cancelRun = nil
			}
			a.mu.Unlock()
			return text, trace.Steps(), nil
		}
		a.mu.Unlock()
		return "", nil, context.Canceled

	case runCtx.Err() != nil:
		return "", nil, context.Cause(runCtx)

	default:
		// The engine may be mid-exchange in an unknown state; rebuild it
		// before the next call rather than trusting it.
		eng.markInvalid()
		a.logger.Error("agent run failed", "error", err)
		a.mu.Lock()
		// A newer call may already own the slot; clear only our own.
		if a.cancelRun == &cancel {
			a.cancelRun = nil
		}
		a.mu.Unlock()
		return fallbackText, nil, nil
	}
}

// run executes the bounded tool loop. It returns the answer text and the
// full message list to commit as the new history. Steps are recorded on the
// supplied trace; the trace travels with the call, never through shared
// state.
func (a *Agent) run(ctx context.Context, eng *engine, msgs []llm.Message, trace *Trace) (string, []llm.Message, error) {
	for step := 0; step < a.maxSteps; step++ {
		resp, err := eng.complete(ctx, llm.CompletionRequest{
			Messages:     msgs,
			Tools:        a.toolDefs,
			SystemPrompt: a.instructions + a.voiceRules,
		})
		if err != nil {
			return "", nil, fmt.Errorf("agent: step %d: %w", step+1, err)
		}

		if len(resp.ToolCalls) == 0 {
			msgs = append(msgs, llm.Message{Role: "assistant", Content: resp.Content})
			return resp.Content, msgs, nil
		}

		msgs = append(msgs, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			trace.Add("Using " + call.Name)
			result := a.invokeTool(ctx, call)
			if err := ctx.Err(); err != nil {
				return "", nil, err
			}
			msgs = append(msgs, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	// Step budget exhausted: one last completion with tools withheld so the
	// model must answer with what it has.
	text, err := a.fallbackAnswer(ctx, eng, msgs)
	if err != nil {
		return "", nil, err
	}
	msgs = append(msgs, llm.Message{Role: "assistant", Content: text})
	return text, msgs, nil
}

// invokeTool runs one tool call, turning failures into model-readable text
// so the loop can carry on.
func (a *Agent) invokeTool(ctx context.Context, call llm.ToolCall) string {
	tool, ok := a.toolsByName[call.Name]
	if !ok {
		a.logger.Warn("model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}
	result, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		a.logger.Warn("tool invocation failed", "tool", call.Name, "error", err)
		return "error: " + err.Error()
	}
	return result
}

// fallbackAnswer asks the model to wrap up without tools after the step
// budget ran out.
func (a *Agent) fallbackAnswer(ctx context.Context, eng *engine, msgs []llm.Message) (string, error) {
	final := make([]llm.Message, 0, len(msgs)+1)
	final = append(final, msgs...)
	final = append(final, llm.Message{Role: "user", Content: a.fallback.Post})

	resp, err := eng.complete(ctx, llm.CompletionRequest{
		Messages:     final,
		SystemPrompt: a.instructions + a.voiceRules + "\n\n" + a.fallback.Pre,
	})
	if err != nil {
		return "", fmt.Errorf("agent: fallback answer: %w", err)
	}
	return resp.Content, nil
}

// Trace collects the human-readable step descriptions for one chat call.
// It is owned by that call; methods are not synchronized.
type Trace struct {
	steps []string
}

// Add appends one step description.
func (t *Trace) Add(step string) {
	t.steps = append(t.steps, step)
}

// Steps returns the recorded steps in order.
func (t *Trace) Steps() []string {
	return t.steps
}

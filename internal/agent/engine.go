package agent

import (
	"context"
	"sync/atomic"

	"github.com/alexkroman/aai-agent/pkg/provider/llm"
)

// engine wraps the LLM provider exchange for one agent. An interrupted or
// failed exchange can leave provider-side state half-consumed, so the engine
// carries an explicit validity flag: it is set false on every abnormal exit
// path and checked before the engine is reused. A rebuilt engine starts
// clean; the conversation history lives on the Agent and survives the swap.
type engine struct {
	provider llm.Provider
	valid    atomic.Bool
}

func newEngine(provider llm.Provider) *engine {
	e := &engine{provider: provider}
	e.valid.Store(true)
	return e
}

// isValid reports whether the engine is safe to reuse.
func (e *engine) isValid() bool { return e.valid.Load() }

// markInvalid flags the engine for rebuild before the next chat call.
func (e *engine) markInvalid() { e.valid.Store(false) }

// complete forwards one completion to the provider.
func (e *engine) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return e.provider.Complete(ctx, req)
}

// Package mock provides test doubles for the llm package interfaces.
//
// Use Provider with a Responses queue to script a multi-step tool-calling
// exchange, or with CompleteFn for full control per call.
package mock

import (
	"context"
	"sync"

	"github.com/alexkroman/aai-agent/pkg/provider/llm"
)

// CompleteCall records a single invocation of Provider.Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the request passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses is a queue of responses returned by successive Complete
	// calls. When exhausted, Complete returns the last response again.
	Responses []*llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from every Complete
	// call instead of a response.
	CompleteErr error

	// CompleteFn, if non-nil, overrides the queue entirely.
	CompleteFn func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Caps is returned by Capabilities. Zero value means tool calling on
	// with default windows.
	Caps llm.Capabilities

	// CompleteCalls records every call to Complete.
	CompleteCalls []CompleteCall

	next int
}

// Complete records the call and returns the next scripted response.
// It honours ctx cancellation before producing a response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFn
	if fn != nil {
		p.mu.Unlock()
		return fn(ctx, req)
	}
	if p.CompleteErr != nil {
		err := p.CompleteErr
		p.mu.Unlock()
		return nil, err
	}
	if len(p.Responses) == 0 {
		p.mu.Unlock()
		return &llm.CompletionResponse{Content: "ok"}, nil
	}
	i := p.next
	if i >= len(p.Responses) {
		i = len(p.Responses) - 1
	}
	p.next++
	resp := p.Responses[i]
	p.mu.Unlock()
	return resp, nil
}

// Capabilities returns Caps, defaulting to tool calling enabled.
func (p *Provider) Capabilities() llm.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Caps == (llm.Capabilities{}) {
		return llm.Capabilities{SupportsToolCalling: true, ContextWindow: 128_000, MaxOutputTokens: 4_096}
	}
	return p.Caps
}

// CompleteCallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CompleteCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Reset clears recorded calls and rewinds the response queue. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Package mock provides test doubles for the tts package interfaces.
//
// Use Provider to verify that the caller synthesizes the expected text. Each
// Synthesize call returns a fresh Stream whose audio is fed from Chunks, so
// tests can model partial delivery and abandonment.
package mock

import (
	"context"
	"sync"

	"github.com/alexkroman/aai-agent/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are the PCM chunks each returned Stream delivers before its
	// audio channel closes.
	Chunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// StreamErr, if non-nil, is reported by each returned Stream's Err after
	// its chunks are delivered.
	StreamErr error

	// Rate is returned by SampleRate. Defaults to 24000 if zero.
	Rate int

	// Block, if non-nil, makes each returned Stream hold its audio channel
	// open until Block is closed. Used to test abandonment mid-stream.
	Block chan struct{}

	// SynthesizeCalls records every call to Synthesize.
	SynthesizeCalls []SynthesizeCall

	// Streams records every Stream handed out, in order.
	Streams []*Stream
}

// Synthesize records the call and returns a fresh Stream fed from Chunks.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Stream, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text})
	if p.SynthesizeErr != nil {
		p.mu.Unlock()
		return nil, p.SynthesizeErr
	}
	s := &Stream{
		audio:   make(chan []byte, len(p.Chunks)+1),
		done:    make(chan struct{}),
		wantErr: p.StreamErr,
	}
	p.Streams = append(p.Streams, s)
	chunks := p.Chunks
	block := p.Block
	p.mu.Unlock()

	go s.feed(ctx, chunks, block)
	return s, nil
}

// SampleRate returns Rate, defaulting to 24000.
func (p *Provider) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Rate == 0 {
		return 24000
	}
	return p.Rate
}

// SynthesizeCallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls and streams. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.Streams = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Stream is the mock tts.Stream handed out by Provider.
type Stream struct {
	audio   chan []byte
	done    chan struct{}
	once    sync.Once
	wantErr error

	mu             sync.Mutex
	closed         bool
	CloseCallCount int
	err            error
}

func (s *Stream) feed(ctx context.Context, chunks [][]byte, block chan struct{}) {
	defer close(s.audio)
	for _, c := range chunks {
		cp := make([]byte, len(c))
		copy(cp, c)
		select {
		case s.audio <- cp:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
	if s.wantErr != nil {
		s.mu.Lock()
		s.err = s.wantErr
		s.mu.Unlock()
	}
}

// Audio returns the stream's chunk channel.
func (s *Stream) Audio() <-chan []byte { return s.audio }

// Close abandons the stream. Idempotent; records call count.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

// Closed reports whether Close was called. Thread-safe.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Err reports the stream's terminal error.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Ensure Stream implements tts.Stream at compile time.
var _ tts.Stream = (*Stream)(nil)

// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller opens streams with the expected
// StreamConfig. Use Stream to feed controlled Event values and inspect which
// audio chunks were delivered.
//
// Example:
//
//	st := &mock.Stream{EventsCh: make(chan stt.Event, 4)}
//	p := &mock.Provider{Stream: st}
//	s, _ := p.OpenStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/alexkroman/aai-agent/pkg/provider/stt"
)

// OpenStreamCall records a single invocation of Provider.OpenStream.
type OpenStreamCall struct {
	// Ctx is the context passed to OpenStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to OpenStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Stream is the Stream returned by OpenStream. If nil, OpenStream returns
	// a new default Stream with a buffered event channel.
	Stream stt.Stream

	// OpenStreamErr, if non-nil, is returned as the error from OpenStream.
	OpenStreamErr error

	// OpenStreamCalls records every call to OpenStream.
	OpenStreamCalls []OpenStreamCall
}

// OpenStream records the call and returns Stream, OpenStreamErr.
func (p *Provider) OpenStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenStreamCalls = append(p.OpenStreamCalls, OpenStreamCall{Ctx: ctx, Cfg: cfg})
	if p.OpenStreamErr != nil {
		return nil, p.OpenStreamErr
	}
	if p.Stream != nil {
		return p.Stream, nil
	}
	return &Stream{EventsCh: make(chan stt.Event, 16)}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Stream.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Stream is a mock implementation of stt.Stream.
// Callers should pre-populate EventsCh with the Event values they want the
// consumer to receive, then close it when done.
type Stream struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). Callers own this channel
	// and are responsible for sending to and closing it in tests.
	EventsCh chan stt.Event

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// ClearErr, if non-nil, is returned by every Clear call.
	ClearErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// StreamErr is returned by Err.
	StreamErr error

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// ClearCallCount is the number of times Clear was called.
	ClearCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records the call and returns SendAudioErr.
func (s *Stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Events returns EventsCh. The caller must have initialised EventsCh before
// calling this method.
func (s *Stream) Events() <-chan stt.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// Clear records the call and returns ClearErr.
func (s *Stream) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClearCallCount++
	return s.ClearErr
}

// Close records the call and returns CloseErr.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Err returns StreamErr.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StreamErr
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Stream) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Stream) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.ClearCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Stream implements stt.Stream at compile time.
var _ stt.Stream = (*Stream)(nil)

// Package stt defines the Provider interface for streaming speech-to-text
// backends.
//
// An STT provider opens one streaming session per client connection, accepts
// raw PCM audio frames, and emits transcript events as the upstream service
// produces them. A Stream is typically driven by two goroutines at once, one
// writing audio and one reading events; implementations must be safe for that.
package stt

import (
	"context"
	"time"
)

// Event is a single transcript event from the upstream recogniser.
//
// An event with EndOfTurn false is an interim transcript and may be superseded
// by later events. An event with EndOfTurn true marks a turn boundary; when
// formatted turns are enabled the upstream first delivers the boundary with
// Formatted false and then re-delivers the same turn with Formatted true and
// final punctuation. Only the formatted event should be treated as a complete
// user utterance.
type Event struct {
	// Text is the transcript accumulated for the current turn.
	Text string

	// EndOfTurn reports whether the upstream judged the utterance complete.
	EndOfTurn bool

	// Formatted reports whether Text carries final punctuation and casing.
	// Only meaningful when EndOfTurn is true.
	Formatted bool
}

// StreamConfig carries the per-session parameters for opening a stream.
type StreamConfig struct {
	// SampleRate is the PCM sample rate of the audio that will be sent, in Hz.
	SampleRate int

	// SpeechModel selects the upstream recognition model.
	SpeechModel string

	// FormatTurns requests formatted (punctuated, cased) turn events in
	// addition to the raw end-of-turn events.
	FormatTurns bool

	// MinEndOfTurnSilence is how long the upstream waits before ending a turn
	// when it is confident the utterance is complete.
	MinEndOfTurnSilence time.Duration

	// MaxTurnSilence is the hard silence ceiling after which a turn is ended
	// regardless of confidence.
	MaxTurnSilence time.Duration
}

// Stream is a live streaming transcription session.
type Stream interface {
	// SendAudio forwards one raw PCM frame upstream. Calling it on a closed
	// or failed stream returns a non-nil error and drops the frame; it never
	// panics or blocks indefinitely.
	SendAudio(chunk []byte) error

	// Events returns the stream's event sequence. The channel preserves
	// upstream ordering of interim and end-of-turn events and is closed when
	// the upstream connection ends for any reason; consult Err afterwards.
	Events() <-chan Event

	// Clear asks the upstream to discard its buffered audio so the next
	// utterance is not contaminated by audio from an abandoned turn.
	Clear(ctx context.Context) error

	// Close tears down the upstream connection. It is idempotent.
	Close() error

	// Err reports why the event channel closed. It returns nil after a clean
	// shutdown initiated by Close.
	Err() error
}

// Provider opens streaming transcription sessions.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// OpenStream establishes one upstream streaming connection. ctx bounds
	// connection establishment (credential fetch and dial) only; the returned
	// Stream outlives it and is shut down via Close.
	OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

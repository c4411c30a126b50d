// Package tts defines the Provider interface for streaming text-to-speech
// backends.
//
// A TTS provider converts one utterance of text into a stream of raw PCM
// audio chunks. Each Synthesize call is an independent upstream connection:
// abandoning one stream mid-flight must never affect a later call.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Stream is one in-flight synthesis. Audio chunks arrive on Audio until the
// upstream has delivered the full utterance or the stream is abandoned.
type Stream interface {
	// Audio returns the stream's PCM chunk sequence. The channel is closed
	// when synthesis completes, fails, or the stream is closed; consult Err
	// afterwards. Chunks already received remain valid either way.
	Audio() <-chan []byte

	// Close abandons the synthesis. Audio not yet read is discarded and the
	// upstream connection is torn down. Idempotent.
	Close() error

	// Err reports why the audio channel closed. It returns nil after normal
	// completion or a local Close.
	Err() error
}

// Provider synthesizes speech from text.
type Provider interface {
	// Synthesize opens a fresh upstream connection and streams audio for the
	// given text. ctx governs the whole synthesis; cancelling it abandons the
	// stream.
	Synthesize(ctx context.Context, text string) (Stream, error)

	// SampleRate returns the PCM sample rate of produced audio, in Hz.
	SampleRate() int
}

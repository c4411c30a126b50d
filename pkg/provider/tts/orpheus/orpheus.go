// Package orpheus provides an Orpheus-backed TTS provider using the Orpheus
// streaming WebSocket API. It implements the tts.Provider interface.
//
// Each Synthesize call dials a fresh connection, sends one JSON config frame,
// the utterance text, and an end-of-input sentinel, then relays binary PCM
// frames until the server closes the connection.
package orpheus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alexkroman/aai-agent/pkg/provider/tts"
	"github.com/coder/websocket"
)

const (
	streamEndpoint = "wss://streaming.assemblyai.com/v3/tts"

	defaultVoice      = "tara"
	defaultSampleRate = 24000

	connectTimeout = 10 * time.Second
)

// Option is a functional option for configuring the Orpheus Provider.
type Option func(*Provider)

// WithVoice sets the voice name (e.g., "tara", "leo").
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithSampleRate sets the output PCM sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the streaming WebSocket URL. Used by tests.
func WithEndpoint(u string) Option {
	return func(p *Provider) {
		p.endpoint = u
	}
}

// Provider implements tts.Provider backed by the Orpheus streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	voice      string
	sampleRate int
}

// New creates a new Orpheus Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("orpheus: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   streamEndpoint,
		voice:      defaultVoice,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// SampleRate returns the PCM sample rate of synthesized audio.
func (p *Provider) SampleRate() int { return p.sampleRate }

// ---- WebSocket message types ----

// configMessage is the first frame on every synthesis connection.
type configMessage struct {
	Type       string `json:"type"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

// textMessage carries the utterance text.
type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// eosMessage is the end-of-input sentinel. After it the server streams the
// remaining audio and closes the connection.
type eosMessage struct {
	Type string `json:"type"`
}

// Synthesize opens a fresh connection and streams PCM audio for text.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Stream, error) {
	if text == "" {
		return nil, errors.New("orpheus: text must not be empty")
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", p.apiKey)

	conn, _, err := websocket.Dial(dialCtx, p.endpoint, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("orpheus: dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	streamCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s := &stream{
		conn:  conn,
		audio: make(chan []byte, 256),
		stop:  stop,
	}

	frames := [][]byte{
		mustJSON(configMessage{Type: "config", Voice: p.voice, SampleRate: p.sampleRate, Encoding: "pcm_s16le"}),
		mustJSON(textMessage{Type: "text", Text: text}),
		mustJSON(eosMessage{Type: "eos"}),
	}
	for _, f := range frames {
		if err := conn.Write(dialCtx, websocket.MessageText, f); err != nil {
			stop()
			conn.Close(websocket.StatusInternalError, "write failed")
			return nil, fmt.Errorf("orpheus: send: %w", err)
		}
	}

	// Abandon the stream if the caller's context ends first.
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-streamCtx.Done():
		}
	}()

	go s.readLoop(streamCtx)
	return s, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// ---- stream ----

// stream is one in-flight Orpheus synthesis. It implements tts.Stream.
type stream struct {
	conn  *websocket.Conn
	audio chan []byte
	stop  context.CancelFunc
	once  sync.Once

	errMu sync.Mutex
	err   error
}

// Audio returns the PCM chunk channel.
func (s *stream) Audio() <-chan []byte { return s.audio }

// Close abandons the synthesis mid-stream. Safe to call more than once.
func (s *stream) Close() error {
	s.once.Do(func() {
		s.stop()
		s.conn.Close(websocket.StatusNormalClosure, "abandoned")
	})
	return nil
}

// Err reports why the audio channel closed.
func (s *stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *stream) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// readLoop relays binary audio frames until the server closes the connection
// or the stream is abandoned.
func (s *stream) readLoop(ctx context.Context) {
	defer close(s.audio)
	defer s.Close()

	for {
		typ, msg, err := s.conn.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				// Abandoned locally; partial audio already delivered stands.
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
				// Upstream finished the utterance.
			default:
				s.setErr(fmt.Errorf("orpheus: read: %w", err))
			}
			return
		}
		if typ != websocket.MessageBinary {
			// Text frames mid-stream carry error details.
			if msg := parseErrorMessage(msg); msg != "" {
				s.setErr(fmt.Errorf("orpheus: upstream: %s", msg))
				return
			}
			continue
		}
		select {
		case s.audio <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// errorMessage is the JSON shape of an upstream error frame.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// parseErrorMessage returns the error text carried by a text frame, or ""
// if the frame is not an error.
func parseErrorMessage(data []byte) string {
	var m errorMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	if m.Type != "error" {
		return ""
	}
	return m.Message
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Package assemblyai provides an AssemblyAI-backed STT provider using the
// AssemblyAI v3 streaming WebSocket API. It implements the stt.Provider
// interface.
//
// Authentication is two-step: a short-lived streaming token is fetched over
// HTTPS just before each dial, then passed as a query parameter on the
// WebSocket URL. Tokens expire within minutes, so they are never cached
// across streams.
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/alexkroman/aai-agent/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	streamEndpoint = "wss://streaming.assemblyai.com/v3/ws"
	tokenEndpoint  = "https://streaming.assemblyai.com/v3/token"

	defaultModel      = "u3-pro"
	defaultSampleRate = 16000

	// tokenExpiresIn is the lifetime requested for each streaming token.
	// Long enough to cover the dial, short enough to be harmless if leaked.
	tokenExpiresIn = 480 * time.Second

	connectTimeout = 10 * time.Second
)

// Option is a functional option for configuring the AssemblyAI Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for token fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTokenEndpoint overrides the token endpoint URL. Used by tests.
func WithTokenEndpoint(u string) Option {
	return func(p *Provider) {
		p.tokenURL = u
	}
}

// WithStreamEndpoint overrides the streaming WebSocket base URL. Used by tests.
func WithStreamEndpoint(u string) Option {
	return func(p *Provider) {
		p.streamURL = u
	}
}

// Provider implements stt.Provider backed by the AssemblyAI v3 streaming API.
type Provider struct {
	apiKey     string
	tokenURL   string
	streamURL  string
	httpClient *http.Client
}

// New creates a new AssemblyAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		tokenURL:   tokenEndpoint,
		streamURL:  streamEndpoint,
		httpClient: &http.Client{Timeout: connectTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// tokenResponse is the JSON body returned by the token endpoint.
type tokenResponse struct {
	Token string `json:"token"`
}

// fetchToken requests a fresh short-lived streaming token.
func (p *Provider) fetchToken(ctx context.Context) (string, error) {
	u, err := url.Parse(p.tokenURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("expires_in_seconds", strconv.Itoa(int(tokenExpiresIn.Seconds())))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if tr.Token == "" {
		return "", errors.New("empty token in response")
	}
	return tr.Token, nil
}

// OpenStream fetches a streaming token and opens a transcription session.
// ctx bounds the token fetch and dial only; reads and writes on the returned
// stream are governed by Close.
func (p *Provider) OpenStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	token, err := p.fetchToken(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: fetch token: %w", err)
	}

	wsURL, err := buildStreamURL(p.streamURL, token, cfg)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: build URL: %w", err)
	}

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: dial: %w", err)
	}
	// Audio frames can be large at 16 kHz.
	conn.SetReadLimit(1 << 20)

	s := &stream{
		conn:   conn,
		events: make(chan stt.Event, 64),
		audio:  make(chan []byte, 256),
		done:   make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	return s, nil
}

// buildStreamURL constructs the streaming endpoint URL for the given config.
func buildStreamURL(base, token string, cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	model := cfg.SpeechModel
	if model == "" {
		model = defaultModel
	}

	q := u.Query()
	q.Set("token", token)
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("speech_model", model)
	q.Set("encoding", "pcm_s16le")
	if cfg.FormatTurns {
		q.Set("format_turns", "true")
	}
	if cfg.MinEndOfTurnSilence > 0 {
		q.Set("min_end_of_turn_silence_when_confident", strconv.Itoa(int(cfg.MinEndOfTurnSilence.Milliseconds())))
	}
	if cfg.MaxTurnSilence > 0 {
		q.Set("max_turn_silence", strconv.Itoa(int(cfg.MaxTurnSilence.Milliseconds())))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- stream ----

// turnMessage is the JSON structure of a Turn event from AssemblyAI.
type turnMessage struct {
	Type            string `json:"type"`
	Transcript      string `json:"transcript"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
}

// stream is a live AssemblyAI streaming session. It implements stt.Stream.
type stream struct {
	conn   *websocket.Conn
	events chan stt.Event
	audio  chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// SendAudio queues a PCM audio chunk for delivery to AssemblyAI.
func (s *stream) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("assemblyai: stream is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("assemblyai: stream is closed")
	}
}

// Events returns the ordered transcript event channel.
func (s *stream) Events() <-chan stt.Event { return s.events }

// Clear tells AssemblyAI to discard buffered, not-yet-transcribed audio.
func (s *stream) Clear(ctx context.Context) error {
	select {
	case <-s.done:
		return errors.New("assemblyai: stream is closed")
	default:
	}
	if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ClearBuffer"}`)); err != nil {
		return fmt.Errorf("assemblyai: clear buffer: %w", err)
	}
	return nil
}

// Close terminates the stream cleanly. Safe to call more than once.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Terminate"}`))
		cancel()
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.wg.Wait()
	})
	return nil
}

// Err reports why the event channel closed.
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

// writeLoop reads from the audio channel and sends binary messages upstream.
func (s *stream) writeLoop() {
	defer s.wg.Done()
	ctx := context.Background()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop receives JSON messages from AssemblyAI and forwards transcript
// events in upstream order.
func (s *stream) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	ctx := context.Background()
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Close initiated locally; not an error.
			default:
				s.setErr(fmt.Errorf("assemblyai: read: %w", err))
			}
			return
		}

		ev, ok := parseTurnMessage(msg)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// parseTurnMessage parses a raw WebSocket message into an Event. Returns
// (zero, false) for non-Turn messages, which are ignored.
func parseTurnMessage(data []byte) (stt.Event, bool) {
	var m turnMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return stt.Event{}, false
	}
	if m.Type != "Turn" {
		return stt.Event{}, false
	}
	return stt.Event{
		Text:      m.Transcript,
		EndOfTurn: m.EndOfTurn,
		Formatted: m.TurnIsFormatted,
	}, true
}

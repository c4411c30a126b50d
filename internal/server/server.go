// Package server exposes the voice assistant over HTTP: the websocket
// session endpoint, health probes, Prometheus metrics, and the optional
// static client frontend.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alexkroman/aai-agent/internal/health"
	"github.com/alexkroman/aai-agent/internal/observe"
	"github.com/alexkroman/aai-agent/internal/session"
	"github.com/alexkroman/aai-agent/pkg/provider/stt"
	"github.com/alexkroman/aai-agent/pkg/provider/tts"
)

const shutdownTimeout = 10 * time.Second

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithTTS enables speech synthesis for sessions.
func WithTTS(provider tts.Provider) Option {
	return func(s *Server) {
		s.tts = provider
	}
}

// WithNormalizer sets the text cleanup applied before synthesis.
func WithNormalizer(normalize func(string) string) Option {
	return func(s *Server) {
		s.normalize = normalize
	}
}

// WithCorrector sets the keyword correction applied to final transcripts.
func WithCorrector(correct func(string) string) Option {
	return func(s *Server) {
		s.correct = correct
	}
}

// WithStaticDir serves client assets from dir at /.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithHealth sets the probe handler mounted at /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithMetrics enables the /metrics endpoint, HTTP timing, and session
// gauges.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTTSSampleRate overrides the synthesis sample rate advertised in the
// ready frame. Defaults to the TTS provider's rate, or 24000 without one.
func WithTTSSampleRate(rate int) Option {
	return func(s *Server) {
		s.ttsRate = rate
	}
}

// Server serves the session websocket and the operational HTTP surface.
type Server struct {
	addr     string
	registry *session.Registry
	stt      stt.Provider
	sttCfg   stt.StreamConfig

	tts       tts.Provider
	normalize func(string) string
	correct   func(string) string
	staticDir string
	health    *health.Handler
	metrics   *observe.Metrics
	logger    *slog.Logger
	ttsRate   int
}

// New wires a Server. The registry's factory must produce [*AgentSession]
// values; sttCfg parameterises every session's upstream stream.
func New(addr string, registry *session.Registry, sttProvider stt.Provider, sttCfg stt.StreamConfig, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, errors.New("server: registry must not be nil")
	}
	if sttProvider == nil {
		return nil, errors.New("server: stt provider must not be nil")
	}
	s := &Server{
		addr:     addr,
		registry: registry,
		stt:      sttProvider,
		sttCfg:   sttCfg,
		health:   health.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttsRate == 0 {
		if s.tts != nil {
			s.ttsRate = s.tts.SampleRate()
		} else {
			s.ttsRate = 24000
		}
	}
	return s, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleSession)
	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
	if s.metrics != nil {
		return observe.Middleware(s.metrics, s.logger)(mux)
	}
	return mux
}

// Run serves until ctx is cancelled, then drains connections gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

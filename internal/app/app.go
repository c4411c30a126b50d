// Package app wires all subsystems into a running voice assistant.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem from the config, Run serves until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock providers via the Providers struct and functional
// options. When a slot is nil, New creates the real implementation from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/alexkroman/aai-agent/internal/agent"
	"github.com/alexkroman/aai-agent/internal/config"
	"github.com/alexkroman/aai-agent/internal/health"
	"github.com/alexkroman/aai-agent/internal/knowledge"
	knowledgepg "github.com/alexkroman/aai-agent/internal/knowledge/postgres"
	"github.com/alexkroman/aai-agent/internal/observe"
	"github.com/alexkroman/aai-agent/internal/server"
	"github.com/alexkroman/aai-agent/internal/session"
	"github.com/alexkroman/aai-agent/internal/tools"
	"github.com/alexkroman/aai-agent/internal/transcript"
	"github.com/alexkroman/aai-agent/internal/voicetext"
	"github.com/alexkroman/aai-agent/pkg/provider/embeddings"
	openaiembed "github.com/alexkroman/aai-agent/pkg/provider/embeddings/openai"
	"github.com/alexkroman/aai-agent/pkg/provider/llm"
	"github.com/alexkroman/aai-agent/pkg/provider/llm/anyllm"
	"github.com/alexkroman/aai-agent/pkg/provider/stt"
	"github.com/alexkroman/aai-agent/pkg/provider/stt/assemblyai"
	"github.com/alexkroman/aai-agent/pkg/provider/tts"
	"github.com/alexkroman/aai-agent/pkg/provider/tts/orpheus"
)

// Providers holds one interface value per provider slot. Nil means New builds
// the real implementation from the config; tests inject mocks here.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKnowledgeStore injects a chunk store instead of connecting to Postgres.
func WithKnowledgeStore(s knowledge.Store) Option {
	return func(a *App) { a.knowledge = s }
}

// WithMetrics injects a metrics instance and skips telemetry provider setup.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// App owns all subsystem lifetimes for one assistant process.
type App struct {
	cfg       *config.Config
	providers Providers

	knowledge knowledge.Store
	checkers  []health.Checker
	bridge    *tools.MCPBridge
	registry  *session.Registry
	metrics   *observe.Metrics
	srv       *server.Server
	logger    *slog.Logger

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// New wires an App from the config. Providers left nil are built from the
// config; initialisation runs synchronously, so a bad credential or an
// unreachable MCP server fails here rather than on the first session.
func New(ctx context.Context, cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if err := a.initTelemetry(ctx); err != nil {
		return err
	}
	if err := a.initProviders(); err != nil {
		return err
	}
	if err := a.initKnowledge(ctx); err != nil {
		return err
	}
	if err := a.initSessions(ctx); err != nil {
		return err
	}
	return a.initServer()
}

func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return fmt.Errorf("app: init telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)
	a.metrics = observe.DefaultMetrics()
	return nil
}

// initProviders fills the nil provider slots from the config.
func (a *App) initProviders() error {
	if a.providers.STT == nil {
		if a.cfg.STT.APIKey == "" {
			return errors.New("app: stt api key is required (set ASSEMBLYAI_API_KEY)")
		}
		p, err := assemblyai.New(a.cfg.STT.APIKey)
		if err != nil {
			return fmt.Errorf("app: init stt provider: %w", err)
		}
		a.providers.STT = p
	}

	if a.providers.TTS == nil && a.cfg.TTS.APIKey != "" {
		var ttsOpts []orpheus.Option
		if a.cfg.TTS.Voice != "" {
			ttsOpts = append(ttsOpts, orpheus.WithVoice(a.cfg.TTS.Voice))
		}
		if a.cfg.TTS.SampleRate > 0 {
			ttsOpts = append(ttsOpts, orpheus.WithSampleRate(a.cfg.TTS.SampleRate))
		}
		p, err := orpheus.New(a.cfg.TTS.APIKey, ttsOpts...)
		if err != nil {
			return fmt.Errorf("app: init tts provider: %w", err)
		}
		a.providers.TTS = p
	}

	if a.providers.LLM == nil {
		model := a.cfg.LLM.Model
		if model == "" {
			model = agent.DefaultModel
		}
		var (
			p   *anyllm.Provider
			err error
		)
		if a.cfg.LLM.Provider != "" {
			var llmOpts []anyllmlib.Option
			if a.cfg.LLM.APIKey != "" {
				llmOpts = append(llmOpts, anyllmlib.WithAPIKey(a.cfg.LLM.APIKey))
			}
			if a.cfg.LLM.BaseURL != "" {
				llmOpts = append(llmOpts, anyllmlib.WithBaseURL(a.cfg.LLM.BaseURL))
			}
			p, err = anyllm.New(a.cfg.LLM.Provider, model, llmOpts...)
		} else {
			p, err = anyllm.NewGateway(a.cfg.LLM.APIKey, model, a.cfg.LLM.BaseURL)
		}
		if err != nil {
			return fmt.Errorf("app: init llm provider: %w", err)
		}
		a.providers.LLM = p
	}

	if a.providers.Embeddings == nil && a.cfg.Knowledge.PostgresDSN != "" {
		p, err := openaiembed.New(a.cfg.Knowledge.EmbeddingAPIKey, a.cfg.Knowledge.EmbeddingModel)
		if err != nil {
			return fmt.Errorf("app: init embeddings provider: %w", err)
		}
		a.providers.Embeddings = p
	}
	return nil
}

// initKnowledge connects the pgvector chunk store when a DSN is configured.
func (a *App) initKnowledge(ctx context.Context) error {
	if a.knowledge != nil || a.cfg.Knowledge.PostgresDSN == "" {
		return nil
	}
	dims := a.cfg.Knowledge.EmbeddingDimensions
	if dims == 0 {
		dims = config.DefaultEmbeddingDimensions
	}
	store, err := knowledgepg.NewStore(ctx, a.cfg.Knowledge.PostgresDSN, dims)
	if err != nil {
		return fmt.Errorf("app: init knowledge store: %w", err)
	}
	a.knowledge = store
	a.checkers = append(a.checkers, health.Checker{Name: "knowledge_store", Check: store.Ping})
	a.closers = append(a.closers, func(context.Context) error {
		store.Close()
		return nil
	})
	return nil
}

// initSessions builds the tool set and the session registry whose factory
// creates one agent per session id.
func (a *App) initSessions(ctx context.Context) error {
	toolset, err := tools.Build(a.cfg.Tools, tools.Deps{
		HTTPClient: nil,
		Knowledge:  a.knowledge,
		Embedder:   a.providers.Embeddings,
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: build tools: %w", err)
	}

	if len(a.cfg.MCPServers) > 0 {
		configs := make([]tools.MCPServerConfig, 0, len(a.cfg.MCPServers))
		for _, srv := range a.cfg.MCPServers {
			configs = append(configs, tools.MCPServerConfig{
				Name:      srv.Name,
				Transport: srv.Transport,
				Command:   srv.Command,
				URL:       srv.URL,
				Env:       srv.Env,
			})
		}
		bridge, err := tools.ConnectMCP(ctx, configs)
		if err != nil {
			return fmt.Errorf("app: connect mcp servers: %w", err)
		}
		a.bridge = bridge
		a.closers = append(a.closers, func(context.Context) error {
			bridge.Close()
			return nil
		})
		toolset = append(toolset, bridge.Tools()...)
		a.logger.Info("connected mcp servers", "servers", len(a.cfg.MCPServers), "tools", len(bridge.Tools()))
	}

	agentOpts := []agent.Option{
		agent.WithLogger(a.logger),
		agent.WithTools(toolset),
	}
	if a.cfg.Agent.Instructions != "" {
		agentOpts = append(agentOpts, agent.WithInstructions(a.cfg.Agent.Instructions))
	}
	if a.cfg.Agent.MaxSteps > 0 {
		agentOpts = append(agentOpts, agent.WithMaxSteps(a.cfg.Agent.MaxSteps))
	}
	switch a.cfg.Agent.Greeting {
	case "":
	case "none":
		agentOpts = append(agentOpts, agent.WithGreeting(""))
	default:
		agentOpts = append(agentOpts, agent.WithGreeting(a.cfg.Agent.Greeting))
	}

	factory := func(_ context.Context, id string) (session.Session, error) {
		ag, err := agent.New(a.providers.LLM, agentOpts...)
		if err != nil {
			return nil, err
		}
		return server.NewAgentSession(id, ag), nil
	}
	registry, err := session.NewRegistry(factory,
		session.WithTTL(a.cfg.SessionTTL()),
		session.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("app: init registry: %w", err)
	}
	a.registry = registry
	a.closers = append(a.closers, registry.CloseAll)
	return nil
}

func (a *App) initServer() error {
	sampleRate := a.cfg.STT.SampleRate
	if sampleRate == 0 {
		sampleRate = config.DefaultSTTSampleRate
	}
	minSilence := a.cfg.STT.MinEndOfTurnSilenceMs
	if minSilence == 0 {
		minSilence = config.DefaultMinEndOfTurnSilenceMs
	}
	maxSilence := a.cfg.STT.MaxTurnSilenceMs
	if maxSilence == 0 {
		maxSilence = config.DefaultMaxTurnSilenceMs
	}
	sttCfg := stt.StreamConfig{
		SampleRate:          sampleRate,
		SpeechModel:         a.cfg.STT.Model,
		FormatTurns:         true,
		MinEndOfTurnSilence: time.Duration(minSilence) * time.Millisecond,
		MaxTurnSilence:      time.Duration(maxSilence) * time.Millisecond,
	}

	srvOpts := []server.Option{
		server.WithNormalizer(voicetext.Normalize),
		server.WithHealth(health.New(a.checkers...)),
		server.WithMetrics(a.metrics),
		server.WithLogger(a.logger),
	}
	if a.providers.TTS != nil {
		srvOpts = append(srvOpts, server.WithTTS(a.providers.TTS))
	}
	if len(a.cfg.STT.Keywords) > 0 {
		corrector := transcript.New(a.cfg.STT.Keywords)
		srvOpts = append(srvOpts, server.WithCorrector(corrector.Correct))
	}
	if a.cfg.Server.StaticDir != "" {
		srvOpts = append(srvOpts, server.WithStaticDir(a.cfg.Server.StaticDir))
	}
	if a.cfg.TTS.SampleRate > 0 {
		srvOpts = append(srvOpts, server.WithTTSSampleRate(a.cfg.TTS.SampleRate))
	}

	addr := a.cfg.Addr(config.IsProduction())
	srv, err := server.New(addr, a.registry, a.providers.STT, sttCfg, srvOpts...)
	if err != nil {
		return fmt.Errorf("app: init server: %w", err)
	}
	a.srv = srv
	return nil
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.srv.Run(ctx)
}

// Handler exposes the HTTP route table, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Shutdown tears subsystems down in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				a.logger.Warn("closer error", "index", i, "error", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

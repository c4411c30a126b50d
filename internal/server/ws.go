package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alexkroman/aai-agent/internal/orchestrator"
)

// controlFrame is a client JSON frame. Only the type matters.
type controlFrame struct {
	Type string `json:"type"`
}

// handleSession owns one client connection end to end: resolve the session,
// open the upstream STT stream, run the orchestrator and the client read
// loop until either side goes away. Disconnect or any setup failure releases
// the session from the registry along with the connection's resources.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		id = uuid.NewString()
	}
	logger := s.logger.With("session_id", id)

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	ctx := r.Context()
	sink := newWSSink(c)

	sess, err := s.registry.GetOrCreate(ctx, id)
	if err != nil {
		logger.Error("session setup failed", "error", err)
		_ = sink.SendFrame(ctx, orchestrator.NewErrorFrame("The session could not be started."))
		c.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	// Ordered after the orchestrator's deferred Close: in-flight work is
	// cancelled and the STT stream is shut before the session is released.
	defer s.registry.Remove(context.WithoutCancel(ctx), id)

	as, ok := sess.(*AgentSession)
	if !ok {
		logger.Error("registry returned unexpected session type", "got", fmt.Sprintf("%T", sess))
		c.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	stream, err := s.stt.OpenStream(ctx, s.sttCfg)
	if err != nil {
		logger.Error("stt connect failed", "error", err)
		_ = sink.SendFrame(ctx, orchestrator.NewErrorFrame("The speech recognition connection could not be opened."))
		c.Close(websocket.StatusInternalError, "stt unavailable")
		return
	}

	opts := []orchestrator.Option{orchestrator.WithLogger(s.logger)}
	if s.tts != nil {
		opts = append(opts, orchestrator.WithTTS(s.tts))
	}
	if s.normalize != nil {
		opts = append(opts, orchestrator.WithNormalizer(s.normalize))
	}
	if s.correct != nil {
		opts = append(opts, orchestrator.WithCorrector(s.correct))
	}
	if s.metrics != nil {
		opts = append(opts, orchestrator.WithMetrics(s.metrics))
	}
	orch, err := orchestrator.New(id, as.Agent(), stream, sink, opts...)
	if err != nil {
		logger.Error("orchestrator setup failed", "error", err)
		_ = stream.Close()
		c.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	defer orch.Close(context.WithoutCancel(ctx))

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
		defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}

	if err := sink.SendFrame(ctx, orchestrator.NewReadyFrame(s.sttCfg.SampleRate, s.ttsRate)); err != nil {
		logger.Debug("ready frame send failed", "error", err)
		return
	}
	orch.Greet(ctx)
	logger.Info("session connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(gctx)
	})
	g.Go(func() error {
		return s.readLoop(gctx, c, orch)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("session ended with error", "error", err)
	}
	logger.Info("session disconnected")
	c.Close(websocket.StatusNormalClosure, "")
}

// readLoop consumes client frames: binary microphone audio goes to the STT
// stream, JSON control frames drive cancel and reset. Returns nil when the
// client hangs up.
func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, orch *orchestrator.Orchestrator) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) != -1 {
				return nil
			}
			return fmt.Errorf("server: read client frame: %w", err)
		}
		switch typ {
		case websocket.MessageBinary:
			orch.SendAudio(data)
		case websocket.MessageText:
			var ctl controlFrame
			if err := json.Unmarshal(data, &ctl); err != nil {
				s.logger.Debug("malformed control frame", "error", err)
				continue
			}
			switch ctl.Type {
			case "cancel":
				orch.Cancel(ctx)
			case "reset":
				orch.Reset(ctx)
			default:
				s.logger.Debug("unknown control frame", "frame_type", ctl.Type)
			}
		}
	}
}

// Package orchestrator drives one voice session's turn loop.
//
// The orchestrator owns the client's view of a session: it consumes STT
// events, runs the agent on each accepted turn, relays synthesized audio
// back, and enforces the single rule everything else hangs off: at most one
// turn's downstream work is producing output at any time. A new turn, a
// barge-in, a reset or a disconnect all pass through the same barrier,
// cancelAllInflight, which fully stops the previous turn's chat and speech
// tasks before anything new starts.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alexkroman/aai-agent/internal/observe"
	"github.com/alexkroman/aai-agent/pkg/provider/stt"
	"github.com/alexkroman/aai-agent/pkg/provider/tts"
)

// Client-presentable error texts. Raw upstream errors go to the log only.
const (
	errTextAnswer = "Something went wrong answering that."
	errTextAudio  = "Audio playback failed for that answer."
	errTextSpeech = "The speech recognition connection was lost."
)

// Agent is the conversational agent a session drives.
type Agent interface {
	// Chat runs one message through the agent, returning the answer and the
	// tool-step trace. Cancellation must leave history untouched.
	Chat(ctx context.Context, message string, reset bool) (string, []string, error)

	// Cancel aborts any in-flight Chat call.
	Cancel()

	// Reset clears the conversation history.
	Reset()

	// Greeting returns the static opening line. Empty disables the greeting.
	Greeting() string
}

// Sink delivers frames to the connected client.
type Sink interface {
	// SendFrame marshals and sends one JSON control frame.
	SendFrame(ctx context.Context, frame any) error

	// SendAudio sends one binary PCM frame.
	SendAudio(ctx context.Context, pcm []byte) error
}

// task is one in-flight unit of turn work. done is closed when the task's
// goroutine has fully finished, including cleanup; awaiting it is how the
// cancel barrier knows the task is gone.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newTask(cancel context.CancelFunc) *task {
	return &task{cancel: cancel, done: make(chan struct{})}
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithTTS enables speech synthesis. Without it turns complete silently with
// an immediate tts_done.
func WithTTS(provider tts.Provider) Option {
	return func(o *Orchestrator) {
		o.tts = provider
	}
}

// WithNormalizer sets the text cleanup applied before synthesis.
func WithNormalizer(normalize func(string) string) Option {
	return func(o *Orchestrator) {
		o.normalize = normalize
	}
}

// WithCorrector sets the transcript keyword correction applied to accepted
// turns before they reach the agent.
func WithCorrector(correct func(string) string) Option {
	return func(o *Orchestrator) {
		o.correct = correct
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics enables turn latency and outcome metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator is the per-session turn state machine. The state is implicit
// in which task handles are non-nil: neither (idle), chat only (answering),
// tts only (speaking).
type Orchestrator struct {
	id        string
	agent     Agent
	sttStream stt.Stream
	sink      Sink
	tts       tts.Provider
	normalize func(string) string
	correct   func(string) string
	logger    *slog.Logger
	metrics   *observe.Metrics

	// mu guards only the two task handles. It is never held across a cancel,
	// an await, or any network call.
	mu       sync.Mutex
	chatTask *task
	ttsTask  *task

	closeOnce sync.Once
	closeErr  error
}

// New wires an orchestrator for one session. The STT stream must already be
// open; the orchestrator owns it from here and closes it on Close.
func New(id string, ag Agent, sttStream stt.Stream, sink Sink, opts ...Option) (*Orchestrator, error) {
	if ag == nil {
		return nil, errors.New("orchestrator: agent must not be nil")
	}
	if sttStream == nil {
		return nil, errors.New("orchestrator: stt stream must not be nil")
	}
	if sink == nil {
		return nil, errors.New("orchestrator: sink must not be nil")
	}
	o := &Orchestrator{
		id:        id,
		agent:     ag,
		sttStream: sttStream,
		sink:      sink,
		normalize: func(s string) string { return s },
		correct:   func(s string) string { return s },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("session_id", id)
	return o, nil
}

// ID returns the session id.
func (o *Orchestrator) ID() string { return o.id }

// Run consumes STT events until the stream ends or ctx is cancelled. A
// stream failure is fatal to the session: the client gets an error frame and
// Run returns the stream error.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.sttStream.Events():
			if !ok {
				if err := o.sttStream.Err(); err != nil {
					o.logger.Error("stt stream failed", "error", err)
					o.sendFrame(ctx, NewErrorFrame(errTextSpeech))
					return err
				}
				return nil
			}
			o.handleEvent(ctx, ev)
		}
	}
}

// handleEvent routes one STT event. Only a formatted end-of-turn starts a
// new turn; everything else is a live transcript update.
func (o *Orchestrator) handleEvent(ctx context.Context, ev stt.Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	if !ev.EndOfTurn || !ev.Formatted {
		o.sendFrame(ctx, NewTranscriptFrame(text, false))
		return
	}
	corrected := o.correct(text)
	o.sendFrame(ctx, NewTranscriptFrame(corrected, true))
	o.startTurn(ctx, corrected)
}

// startTurn brings the previous turn to a full stop, then spawns the chat
// task for the new utterance. The barrier completes before the turn frame is
// sent, so the client never sees old audio after the new turn announcement.
func (o *Orchestrator) startTurn(ctx context.Context, text string) {
	start := time.Now()
	o.cancelAllInflight()

	o.sendFrame(ctx, NewTurnFrame(text))
	o.sendFrame(ctx, NewThinkingFrame())

	turnCtx, cancel := context.WithCancel(ctx)
	t := newTask(cancel)
	o.mu.Lock()
	o.chatTask = t
	o.mu.Unlock()

	go o.runChat(turnCtx, t, text, start)
}

// runChat executes the agent call for one turn and, on success, hands off to
// the speech task. The handoff checks task identity under the lock: if the
// cancel barrier already snapshotted this task, its results are stale and
// nothing further is emitted.
func (o *Orchestrator) runChat(ctx context.Context, t *task, text string, turnStart time.Time) {
	defer close(t.done)
	defer t.cancel()

	chatStart := time.Now()
	answer, steps, err := o.agent.Chat(ctx, text, false)
	if o.metrics != nil {
		o.metrics.ChatDuration.Record(ctx, time.Since(chatStart).Seconds())
	}

	if err != nil {
		o.clearChatTask(t)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			o.recordTurn(ctx, "cancelled", turnStart)
			return
		}
		o.logger.Error("chat failed", "error", err)
		o.recordTurn(ctx, "error", turnStart)
		o.sendFrame(ctx, NewErrorFrame(errTextAnswer))
		return
	}

	speak := o.tts != nil && strings.TrimSpace(answer) != ""

	var ttsT *task
	var ttsCtx context.Context
	o.mu.Lock()
	if o.chatTask != t {
		// Cancelled between completion and handoff; the barrier owns cleanup.
		o.mu.Unlock()
		return
	}
	o.chatTask = nil
	if speak {
		var cancel context.CancelFunc
		ttsCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		ttsT = newTask(cancel)
		o.ttsTask = ttsT
	}
	o.mu.Unlock()

	o.sendFrame(ctx, NewChatFrame(answer, steps))

	if !speak {
		o.recordTurn(ctx, "completed", turnStart)
		o.sendFrame(ctx, NewTTSDoneFrame())
		return
	}
	go o.runTTS(ttsCtx, ttsT, answer, turnStart)
}

// runTTS synthesizes one answer and relays its audio to the client. Success
// and failure both end in tts_done; cancellation ends silently, the barrier
// caller emits whatever frame fits its reason.
func (o *Orchestrator) runTTS(ctx context.Context, t *task, text string, turnStart time.Time) {
	defer close(t.done)
	defer t.cancel()

	cleaned := o.normalize(text)
	if strings.TrimSpace(cleaned) == "" {
		o.clearTTSTask(t)
		o.recordTurn(ctx, "completed", turnStart)
		o.sendFrame(ctx, NewTTSDoneFrame())
		return
	}

	ttsStart := time.Now()
	stream, err := o.tts.Synthesize(ctx, cleaned)
	if err != nil {
		o.clearTTSTask(t)
		if ctx.Err() != nil {
			o.recordTurn(ctx, "cancelled", turnStart)
			return
		}
		o.logger.Error("tts connect failed", "error", err)
		o.recordTurn(ctx, "error", turnStart)
		o.sendFrame(ctx, NewErrorFrame(errTextAudio))
		o.sendFrame(ctx, NewTTSDoneFrame())
		return
	}

	for chunk := range stream.Audio() {
		if err := o.sink.SendAudio(ctx, chunk); err != nil {
			o.logger.Warn("audio relay failed", "error", err)
			break
		}
	}
	streamErr := stream.Err()
	if cerr := stream.Close(); cerr != nil {
		o.logger.Warn("tts stream close failed", "error", cerr)
	}
	if o.metrics != nil {
		o.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	}

	mine := o.clearTTSTask(t)
	if !mine || ctx.Err() != nil {
		o.recordTurn(ctx, "cancelled", turnStart)
		return
	}
	if streamErr != nil {
		o.logger.Error("tts stream failed", "error", streamErr)
		o.recordTurn(ctx, "error", turnStart)
		o.sendFrame(ctx, NewErrorFrame(errTextAudio))
	} else {
		o.recordTurn(ctx, "completed", turnStart)
	}
	o.sendFrame(ctx, NewTTSDoneFrame())
}

// recordTurn records the end-to-end outcome of one turn. The greeting speech
// path passes a zero start and records nothing.
func (o *Orchestrator) recordTurn(ctx context.Context, status string, start time.Time) {
	if o.metrics == nil || start.IsZero() {
		return
	}
	o.metrics.RecordTurn(ctx, status, time.Since(start))
}

// clearChatTask clears the chat handle if it still belongs to t.
func (o *Orchestrator) clearChatTask(t *task) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.chatTask == t {
		o.chatTask = nil
		return true
	}
	return false
}

// clearTTSTask clears the tts handle if it still belongs to t.
func (o *Orchestrator) clearTTSTask(t *task) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ttsTask == t {
		o.ttsTask = nil
		return true
	}
	return false
}

// cancelAllInflight is the synchronization barrier between turns. It
// snapshots and nulls both task handles in one critical section, then
// cancels and awaits each snapshotted task, plus the agent's own in-flight
// work, outside the lock. Every task is awaited to completion before return:
// callers rely on this as proof the previous turn is fully stopped.
//
// The snapshot-then-cancel split matters: a task's completion handler clears
// only its own handle (identity-checked), so a new turn registered after the
// snapshot can never have its handle wiped by the old turn's cleanup, and a
// task can never end up awaiting itself.
func (o *Orchestrator) cancelAllInflight() {
	o.mu.Lock()
	chat, speech := o.chatTask, o.ttsTask
	o.chatTask, o.ttsTask = nil, nil
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range []*task{chat, speech} {
		if t == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.cancel()
			<-t.done
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.agent.Cancel()
	}()
	wg.Wait()
}

// SendAudio forwards one client audio frame to the STT stream. Send failures
// are logged, not fatal: the stream's own event loop surfaces real breakage.
func (o *Orchestrator) SendAudio(data []byte) {
	if err := o.sttStream.SendAudio(data); err != nil {
		o.logger.Debug("audio frame dropped", "error", err)
	}
}

// Cancel is the barge-in path: stop everything in flight, discard the STT
// provider's half-heard buffer, and acknowledge with a cancelled frame. Safe
// in any state; cancelling an idle session is a no-op that still acks.
func (o *Orchestrator) Cancel(ctx context.Context) {
	o.cancelAllInflight()
	if err := o.sttStream.Clear(ctx); err != nil {
		o.logger.Warn("stt buffer clear failed", "error", err)
	}
	o.sendFrame(ctx, NewCancelledFrame())
}

// Reset stops everything in flight, wipes the conversation history, and
// acknowledges with a reset frame.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.cancelAllInflight()
	o.agent.Reset()
	o.sendFrame(ctx, NewResetFrame())
}

// Greet sends the greeting frame and, when synthesis is configured, speaks
// it. Greeting synthesis failure is not fatal; the session carries on.
func (o *Orchestrator) Greet(ctx context.Context) {
	greeting := o.agent.Greeting()
	if greeting == "" {
		return
	}
	o.sendFrame(ctx, NewGreetingFrame(greeting))
	if o.tts == nil {
		return
	}

	ttsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := newTask(cancel)
	o.mu.Lock()
	o.ttsTask = t
	o.mu.Unlock()
	go o.runTTS(ttsCtx, t, greeting, time.Time{})
}

// Close tears the session down: stop all in-flight work and release the STT
// connection. Idempotent.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.closeOnce.Do(func() {
		o.cancelAllInflight()
		o.closeErr = o.sttStream.Close()
	})
	return o.closeErr
}

// sendFrame delivers one frame, logging delivery failures. A dead client
// connection surfaces through the server's read loop, not here.
func (o *Orchestrator) sendFrame(ctx context.Context, frame any) {
	if err := o.sink.SendFrame(ctx, frame); err != nil {
		o.logger.Debug("frame send failed", "error", err)
	}
}

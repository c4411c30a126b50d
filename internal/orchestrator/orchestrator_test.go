package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alexkroman/aai-agent/pkg/provider/stt"
	sttmock "github.com/alexkroman/aai-agent/pkg/provider/stt/mock"
	ttsmock "github.com/alexkroman/aai-agent/pkg/provider/tts/mock"
)

// audioEntry marks a binary frame in the sink's ordered log.
type audioEntry struct {
	pcm []byte
}

// recordSink captures frames and audio in one ordered log.
type recordSink struct {
	mu  sync.Mutex
	log []any
}

func (s *recordSink) SendFrame(ctx context.Context, frame any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, frame)
	return nil
}

func (s *recordSink) SendAudio(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.log = append(s.log, audioEntry{pcm: cp})
	return nil
}

func (s *recordSink) snapshot() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.log))
	copy(out, s.log)
	return out
}

func (s *recordSink) count(match func(any) bool) int {
	n := 0
	for _, e := range s.snapshot() {
		if match(e) {
			n++
		}
	}
	return n
}

func isType[T any](e any) bool {
	_, ok := e.(T)
	return ok
}

// fakeAgent is a scriptable orchestrator.Agent.
type fakeAgent struct {
	mu          sync.Mutex
	answer      string
	steps       []string
	chatErr     error
	chatFn      func(ctx context.Context, message string) (string, []string, error)
	chatCalls   []string
	cancelCount int
	resetCount  int
	greeting    string
}

func (a *fakeAgent) Chat(ctx context.Context, message string, reset bool) (string, []string, error) {
	a.mu.Lock()
	a.chatCalls = append(a.chatCalls, message)
	fn := a.chatFn
	answer, steps, err := a.answer, a.steps, a.chatErr
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, message)
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return answer, steps, err
}

func (a *fakeAgent) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelCount++
}

func (a *fakeAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetCount++
}

func (a *fakeAgent) Greeting() string { return a.greeting }

func (a *fakeAgent) chatCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chatCalls)
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestNewValidatesDeps(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event)}
	sink := &recordSink{}
	if _, err := New("s", nil, stream, sink); err == nil {
		t.Error("New(nil agent) error = nil, want non-nil")
	}
	if _, err := New("s", &fakeAgent{}, nil, sink); err == nil {
		t.Error("New(nil stream) error = nil, want non-nil")
	}
	if _, err := New("s", &fakeAgent{}, stream, nil); err == nil {
		t.Error("New(nil sink) error = nil, want non-nil")
	}
}

func TestFullTurn(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 8)}
	sink := &recordSink{}
	ag := &fakeAgent{answer: "It is sunny.", steps: []string{"Using get_weather"}}
	ttsProv := &ttsmock.Provider{Chunks: [][]byte{{1, 2}, {3, 4}}}

	o, err := New("s1", ag, stream, sink, WithTTS(ttsProv))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- o.Run(ctx) }()

	stream.EventsCh <- stt.Event{Text: "What"}
	stream.EventsCh <- stt.Event{Text: "What is"}
	stream.EventsCh <- stt.Event{Text: "What is the weather?", EndOfTurn: true, Formatted: true}

	waitFor(t, "tts_done frame", func() bool {
		return sink.count(isType[TTSDoneFrame]) == 1
	})

	log := sink.snapshot()
	var types []string
	var audioFrames int
	for _, e := range log {
		switch f := e.(type) {
		case TranscriptFrame:
			if f.Final {
				types = append(types, "transcript_final")
			} else {
				types = append(types, "transcript")
			}
		case TurnFrame:
			types = append(types, "turn")
			if f.Text != "What is the weather?" {
				t.Errorf("turn text = %q", f.Text)
			}
		case ThinkingFrame:
			types = append(types, "thinking")
		case ChatFrame:
			types = append(types, "chat")
			if f.Text != "It is sunny." || len(f.Steps) != 1 {
				t.Errorf("chat frame = %+v", f)
			}
		case TTSDoneFrame:
			types = append(types, "tts_done")
		case audioEntry:
			audioFrames++
		default:
			t.Errorf("unexpected frame %T", e)
		}
	}
	want := []string{"transcript", "transcript", "transcript_final", "turn", "thinking", "chat", "tts_done"}
	if len(types) != len(want) {
		t.Fatalf("frame sequence = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("frame sequence = %v, want %v", types, want)
		}
	}
	if audioFrames != 2 {
		t.Errorf("audio frames = %d, want 2", audioFrames)
	}

	close(stream.EventsCh)
	if err := <-runDone; err != nil {
		t.Errorf("Run() error = %v, want nil on clean stream end", err)
	}
}

func TestUnformattedFinalDoesNotStartTurn(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 4)}
	sink := &recordSink{}
	ag := &fakeAgent{answer: "never spoken"}

	o, _ := New("s1", ag, stream, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	stream.EventsCh <- stt.Event{Text: "what is the weather", EndOfTurn: true, Formatted: false}

	waitFor(t, "transcript frame", func() bool {
		return sink.count(isType[TranscriptFrame]) == 1
	})
	time.Sleep(50 * time.Millisecond)

	if got := ag.chatCallCount(); got != 0 {
		t.Errorf("chat calls = %d, want 0 for unformatted turn", got)
	}
	for _, e := range sink.snapshot() {
		if f, ok := e.(TranscriptFrame); ok && f.Final {
			t.Error("unformatted turn surfaced with final = true")
		}
		if isType[TurnFrame](e) {
			t.Error("unformatted turn produced a turn frame")
		}
	}
}

func TestCancelWhenIdle(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event)}
	sink := &recordSink{}
	o, _ := New("s1", &fakeAgent{}, stream, sink)

	o.Cancel(context.Background())

	if got := sink.count(isType[CancelledFrame]); got != 1 {
		t.Errorf("cancelled frames = %d, want 1", got)
	}
	if stream.ClearCallCount != 1 {
		t.Errorf("stt clear calls = %d, want 1", stream.ClearCallCount)
	}
}

func TestCancelDuringAnswering(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 4)}
	sink := &recordSink{}
	ttsProv := &ttsmock.Provider{Chunks: [][]byte{{1}}}

	started := make(chan struct{})
	ag := &fakeAgent{}
	ag.chatFn = func(ctx context.Context, message string) (string, []string, error) {
		close(started)
		<-ctx.Done()
		return "", nil, ctx.Err()
	}

	o, _ := New("s1", ag, stream, sink, WithTTS(ttsProv))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	stream.EventsCh <- stt.Event{Text: "long question", EndOfTurn: true, Formatted: true}
	<-started

	o.Cancel(context.Background())

	if got := sink.count(isType[CancelledFrame]); got != 1 {
		t.Errorf("cancelled frames = %d, want 1", got)
	}
	// The cancelled turn must never produce an answer or audio completion.
	time.Sleep(50 * time.Millisecond)
	if got := sink.count(isType[ChatFrame]); got != 0 {
		t.Errorf("chat frames = %d, want 0 after cancel", got)
	}
	if got := sink.count(isType[TTSDoneFrame]); got != 0 {
		t.Errorf("tts_done frames = %d, want 0 after cancel", got)
	}
	if got := ttsProv.SynthesizeCallCount(); got != 0 {
		t.Errorf("synthesize calls = %d, want 0", got)
	}
	if ag.cancelCount == 0 {
		t.Error("agent Cancel never invoked by the barrier")
	}
}

func TestBargeInWhileSpeaking(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 4)}
	sink := &recordSink{}
	// One chunk, then the stream holds open until abandoned.
	ttsProv := &ttsmock.Provider{
		Chunks: [][]byte{{0xAA}},
		Block:  make(chan struct{}),
	}

	ag := &fakeAgent{}
	var sawOldStreamClosed bool
	ag.chatFn = func(ctx context.Context, message string) (string, []string, error) {
		if message == "first question" {
			return "first answer", nil, nil
		}
		// By the time the second turn's chat runs, the barrier must have
		// fully stopped the first turn's speech.
		sawOldStreamClosed = ttsProv.Streams[0].Closed()
		return "", nil, nil
	}

	o, _ := New("s1", ag, stream, sink, WithTTS(ttsProv))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	stream.EventsCh <- stt.Event{Text: "first question", EndOfTurn: true, Formatted: true}
	waitFor(t, "first audio frame", func() bool {
		return sink.count(isType[audioEntry]) == 1
	})

	stream.EventsCh <- stt.Event{Text: "second question", EndOfTurn: true, Formatted: true}
	waitFor(t, "second turn completion", func() bool {
		return sink.count(isType[TTSDoneFrame]) >= 1
	})

	if !sawOldStreamClosed {
		t.Error("second chat ran before the first turn's tts stream was closed")
	}

	// No audio after the second turn frame: the second answer is empty, so
	// any audio there would be a leak from the first turn.
	log := sink.snapshot()
	turns := 0
	for _, e := range log {
		if isType[TurnFrame](e) {
			turns++
			continue
		}
		if turns == 2 && isType[audioEntry](e) {
			t.Fatal("audio frame leaked past the second turn announcement")
		}
	}
	if turns != 2 {
		t.Fatalf("turn frames = %d, want 2", turns)
	}
}

func TestResetCallsAgentAndAcks(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 4)}
	sink := &recordSink{}
	ag := &fakeAgent{answer: "hi"}

	o, _ := New("s1", ag, stream, sink)
	o.Reset(context.Background())

	if ag.resetCount != 1 {
		t.Errorf("agent reset calls = %d, want 1", ag.resetCount)
	}
	if got := sink.count(isType[ResetFrame]); got != 1 {
		t.Errorf("reset frames = %d, want 1", got)
	}
}

func TestTurnWithoutTTS(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 4)}
	sink := &recordSink{}
	ag := &fakeAgent{answer: "text only"}

	o, _ := New("s1", ag, stream, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	stream.EventsCh <- stt.Event{Text: "hello?", EndOfTurn: true, Formatted: true}
	waitFor(t, "tts_done frame", func() bool {
		return sink.count(isType[TTSDoneFrame]) == 1
	})
	if got := sink.count(isType[audioEntry]); got != 0 {
		t.Errorf("audio frames = %d, want 0 without tts", got)
	}
}

func TestTTSFailureEndsTurnNotSession(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 4)}
	sink := &recordSink{}
	ag := &fakeAgent{answer: "doomed answer"}
	ttsProv := &ttsmock.Provider{SynthesizeErr: errors.New("tts down")}

	o, _ := New("s1", ag, stream, sink, WithTTS(ttsProv))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- o.Run(ctx) }()

	stream.EventsCh <- stt.Event{Text: "say something", EndOfTurn: true, Formatted: true}
	waitFor(t, "tts_done after failure", func() bool {
		return sink.count(isType[TTSDoneFrame]) == 1
	})
	if got := sink.count(isType[ErrorFrame]); got != 1 {
		t.Errorf("error frames = %d, want 1", got)
	}

	// The session is still alive for the next turn.
	ttsProv.SynthesizeErr = nil
	stream.EventsCh <- stt.Event{Text: "try again", EndOfTurn: true, Formatted: true}
	waitFor(t, "second turn completion", func() bool {
		return sink.count(isType[TTSDoneFrame]) == 2
	})
	close(stream.EventsCh)
	if err := <-runDone; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestSTTStreamFailureIsFatal(t *testing.T) {
	stream := &sttmock.Stream{
		EventsCh:  make(chan stt.Event),
		StreamErr: errors.New("ws dropped"),
	}
	sink := &recordSink{}
	o, _ := New("s1", &fakeAgent{}, stream, sink)

	runDone := make(chan error, 1)
	go func() { runDone <- o.Run(context.Background()) }()
	close(stream.EventsCh)

	if err := <-runDone; err == nil {
		t.Error("Run() error = nil, want stream error")
	}
	if got := sink.count(isType[ErrorFrame]); got != 1 {
		t.Errorf("error frames = %d, want 1", got)
	}
}

func TestGreet(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event)}
	sink := &recordSink{}
	ag := &fakeAgent{greeting: "Hey there!"}
	ttsProv := &ttsmock.Provider{Chunks: [][]byte{{9}}}

	o, _ := New("s1", ag, stream, sink, WithTTS(ttsProv))
	o.Greet(context.Background())

	waitFor(t, "greeting audio", func() bool {
		return sink.count(isType[TTSDoneFrame]) == 1
	})
	if got := sink.count(isType[GreetingFrame]); got != 1 {
		t.Errorf("greeting frames = %d, want 1", got)
	}
	if got := ttsProv.SynthesizeCallCount(); got != 1 {
		t.Errorf("synthesize calls = %d, want 1", got)
	}
}

func TestNormalizerAppliedBeforeSynthesis(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 4)}
	sink := &recordSink{}
	ag := &fakeAgent{answer: "It costs $5."}
	ttsProv := &ttsmock.Provider{}

	o, _ := New("s1", ag, stream, sink,
		WithTTS(ttsProv),
		WithNormalizer(func(s string) string { return "normalized: " + s }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	stream.EventsCh <- stt.Event{Text: "how much?", EndOfTurn: true, Formatted: true}
	waitFor(t, "synthesize call", func() bool {
		return ttsProv.SynthesizeCallCount() == 1
	})
	if got := ttsProv.SynthesizeCalls[0].Text; got != "normalized: It costs $5." {
		t.Errorf("synthesized text = %q", got)
	}
}

func TestCorrectorAppliedToTurns(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event, 4)}
	sink := &recordSink{}
	ag := &fakeAgent{answer: "ok"}

	o, _ := New("s1", ag, stream, sink,
		WithCorrector(func(s string) string { return "corrected " + s }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	stream.EventsCh <- stt.Event{Text: "assembly eye", EndOfTurn: true, Formatted: true}
	waitFor(t, "chat call", func() bool { return ag.chatCallCount() == 1 })
	ag.mu.Lock()
	got := ag.chatCalls[0]
	ag.mu.Unlock()
	if got != "corrected assembly eye" {
		t.Errorf("agent received %q", got)
	}
}

func TestSendAudioForwards(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event)}
	o, _ := New("s1", &fakeAgent{}, stream, &recordSink{})

	o.SendAudio([]byte{1, 2, 3})
	if got := stream.SendAudioCallCount(); got != 1 {
		t.Errorf("stt SendAudio calls = %d, want 1", got)
	}
}

func TestCloseIdempotent(t *testing.T) {
	stream := &sttmock.Stream{EventsCh: make(chan stt.Event)}
	o, _ := New("s1", &fakeAgent{}, stream, &recordSink{})

	if err := o.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := o.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if stream.CloseCallCount != 1 {
		t.Errorf("stt close calls = %d, want 1", stream.CloseCallCount)
	}
}

package orchestrator

// Server-to-client JSON frames. Binary frames on the same channel carry raw
// little-endian 16-bit PCM audio and have no envelope.

// ReadyFrame is sent once when the session channel opens.
type ReadyFrame struct {
	Type          string `json:"type"`
	SampleRate    int    `json:"sample_rate"`
	TTSSampleRate int    `json:"tts_sample_rate"`
}

// NewReadyFrame returns a ready frame announcing both sample rates.
func NewReadyFrame(sampleRate, ttsSampleRate int) ReadyFrame {
	return ReadyFrame{Type: "ready", SampleRate: sampleRate, TTSSampleRate: ttsSampleRate}
}

// TranscriptFrame carries live transcription text. Final is true only for a
// formatted end-of-turn transcript.
type TranscriptFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// NewTranscriptFrame returns a transcript frame.
func NewTranscriptFrame(text string, final bool) TranscriptFrame {
	return TranscriptFrame{Type: "transcript", Text: text, Final: final}
}

// TurnFrame announces the utterance accepted as a new turn.
type TurnFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTurnFrame returns a turn frame.
func NewTurnFrame(text string) TurnFrame {
	return TurnFrame{Type: "turn", Text: text}
}

// ThinkingFrame signals that the agent has started working on the turn.
type ThinkingFrame struct {
	Type string `json:"type"`
}

// NewThinkingFrame returns a thinking frame.
func NewThinkingFrame() ThinkingFrame {
	return ThinkingFrame{Type: "thinking"}
}

// ChatFrame carries the agent's answer and its tool-step trace.
type ChatFrame struct {
	Type  string   `json:"type"`
	Text  string   `json:"text"`
	Steps []string `json:"steps"`
}

// NewChatFrame returns a chat frame. A nil steps slice becomes empty so the
// client always sees an array.
func NewChatFrame(text string, steps []string) ChatFrame {
	if steps == nil {
		steps = []string{}
	}
	return ChatFrame{Type: "chat", Text: text, Steps: steps}
}

// GreetingFrame carries the assistant's opening line.
type GreetingFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewGreetingFrame returns a greeting frame.
func NewGreetingFrame(text string) GreetingFrame {
	return GreetingFrame{Type: "greeting", Text: text}
}

// TTSDoneFrame marks the end of a turn's audio.
type TTSDoneFrame struct {
	Type string `json:"type"`
}

// NewTTSDoneFrame returns a tts_done frame.
func NewTTSDoneFrame() TTSDoneFrame {
	return TTSDoneFrame{Type: "tts_done"}
}

// CancelledFrame acknowledges a barge-in or explicit cancel.
type CancelledFrame struct {
	Type string `json:"type"`
}

// NewCancelledFrame returns a cancelled frame.
func NewCancelledFrame() CancelledFrame {
	return CancelledFrame{Type: "cancelled"}
}

// ResetFrame acknowledges a conversation reset.
type ResetFrame struct {
	Type string `json:"type"`
}

// NewResetFrame returns a reset frame.
func NewResetFrame() ResetFrame {
	return ResetFrame{Type: "reset"}
}

// ErrorFrame reports a turn or session failure to the client. Message is
// user-presentable, never raw internal error text.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorFrame returns an error frame.
func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: "error", Message: message}
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout caps a single websocket write so a stalled client cannot
// wedge the turn pipeline behind it.
const writeTimeout = 5 * time.Second

// wsSink adapts a websocket connection to the orchestrator's Sink. The
// orchestrator sends frames from several goroutines at once and the
// websocket allows one writer, so every write goes through one mutex.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

// SendFrame marshals and sends one JSON control frame.
func (s *wsSink) SendFrame(ctx context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("server: marshal frame: %w", err)
	}
	return s.write(ctx, websocket.MessageText, data)
}

// SendAudio sends one binary PCM frame.
func (s *wsSink) SendAudio(ctx context.Context, pcm []byte) error {
	return s.write(ctx, websocket.MessageBinary, pcm)
}

func (s *wsSink) write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, typ, data)
}

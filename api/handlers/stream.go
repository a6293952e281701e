package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/BaSui01/ragflow/api"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// eventSink receives the step updates of one streaming run.
type eventSink interface {
	Update(ctx context.Context, ev api.StreamEvent) error
	Done(ctx context.Context, answer string) error
	Fail(ctx context.Context, ev api.StreamEvent) error
}

// =============================================================================
// 📡 SSE
// =============================================================================

type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseSink{w: w, flusher: flusher}, true
}

func (s *sseSink) write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Update(_ context.Context, ev api.StreamEvent) error {
	return s.write("update", ev)
}

func (s *sseSink) Done(_ context.Context, answer string) error {
	return s.write("done", api.AnswerResponse{Answer: answer})
}

func (s *sseSink) Fail(_ context.Context, ev api.StreamEvent) error {
	return s.write("error", ev)
}

// =============================================================================
// 🔌 WebSocket
// =============================================================================

// wsSink writes JSON text frames. Writes are serialized because a WebSocket
// connection does not support concurrent writers.
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type wsFrame struct {
	Type   string           `json:"type"`
	Event  *api.StreamEvent `json:"event,omitempty"`
	Answer string           `json:"answer,omitempty"`
}

func (s *wsSink) write(ctx context.Context, frame wsFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (s *wsSink) Update(ctx context.Context, ev api.StreamEvent) error {
	return s.write(ctx, wsFrame{Type: "update", Event: &ev})
}

func (s *wsSink) Done(ctx context.Context, answer string) error {
	return s.write(ctx, wsFrame{Type: "done", Answer: answer})
}

func (s *wsSink) Fail(ctx context.Context, ev api.StreamEvent) error {
	return s.write(ctx, wsFrame{Type: "error", Event: &ev})
}

// readWSRequest reads one JSON message from the client.
func readWSRequest(ctx context.Context, conn *websocket.Conn, dst any) error {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("websocket read: %w", err)
	}
	if typ != websocket.MessageText {
		return fmt.Errorf("expected a text frame")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal request: %w", err)
	}
	return nil
}

func closeWS(conn *websocket.Conn, code websocket.StatusCode, reason string, logger *zap.Logger) {
	if err := conn.Close(code, reason); err != nil {
		logger.Debug("websocket close", zap.Error(err))
	}
}

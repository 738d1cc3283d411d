package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket writes messages as JSON text frames to one connection.
type WebSocket struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocket wraps conn. writeTimeout bounds each frame (default 5s).
func NewWebSocket(conn *websocket.Conn, writeTimeout time.Duration) *WebSocket {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &WebSocket{conn: conn, writeTimeout: writeTimeout}
}

func (w *WebSocket) Send(_ context.Context, msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(msg)
}

// WriteJSON sends a frame that is not a bridge message, such as a reply.
func (w *WebSocket) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(v)
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

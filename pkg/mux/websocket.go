package mux

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 5 * time.Minute
)

// WebSocket adapts a gorilla WebSocket connection to the Socket
// interface. Each line travels as one text message; the read pump also
// accepts binary messages from peers that do not distinguish.
type WebSocket struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	onData  func(chunk []byte)
	onClose func()
	pump    bool
	closed  bool
}

// DialWebSocket connects to a host endpoint and wraps the connection.
func DialWebSocket(ctx context.Context, url string, logger *slog.Logger) (*WebSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn, logger), nil
}

// NewWebSocket wraps an established connection, typically one accepted
// by an upgrader on the host side.
func NewWebSocket(conn *websocket.Conn, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{conn: conn, logger: logger}
}

// Send writes one line as a single WebSocket message.
func (w *WebSocket) Send(line []byte) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrSocketClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, line)
}

// OnClose registers a callback that fires exactly once when the
// connection ends, whether through Close or through the read pump
// observing a dropped peer. Register before Bind so a racing
// disconnect cannot be missed.
func (w *WebSocket) OnClose(fn func()) {
	w.mu.Lock()
	w.onClose = fn
	w.mu.Unlock()
}

// Bind registers the receive callback and starts the read pump on the
// first call.
func (w *WebSocket) Bind(onData func(chunk []byte)) {
	w.mu.Lock()
	w.onData = onData
	start := !w.pump && !w.closed
	w.pump = true
	w.mu.Unlock()

	if start {
		go w.readPump()
	}
}

func (w *WebSocket) readPump() {
	for {
		w.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				w.logger.Error("websocket read error", "error", err)
			}
			w.Close()
			return
		}

		w.mu.Lock()
		onData := w.onData
		w.mu.Unlock()
		if onData != nil {
			onData(msg)
		}
	}
}

// Close sends a close message on a best-effort basis and tears the
// connection down.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	onClose := w.onClose
	w.mu.Unlock()

	w.writeMu.Lock()
	w.conn.SetWriteDeadline(time.Now().Add(time.Second))
	w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.writeMu.Unlock()

	err := w.conn.Close()
	if onClose != nil {
		onClose()
	}
	return err
}

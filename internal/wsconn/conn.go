// Package wsconn implements the channel adapter (component A): a uniform send/recv/close
// surface over a concrete WebSocket transport, with idempotent close.
package wsconn

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Recv/Send once the connection has been closed.
var ErrClosed = errors.New("wsconn: connection closed")

const writeWait = 2 * time.Second

// Conn adapts a *websocket.Conn to the minimal Recv/Send/Close surface the session layer
// needs, and guards against the double-close panics that raw gorilla/websocket usage is
// prone to (grounded on original_source's FastAPIWebSocketAdapter.close state check).
type Conn struct {
	ws *websocket.Conn

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
}

// New wraps an already-upgraded websocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Recv blocks for the next text message. A normal remote close, a local Close and any
// other read failure return ErrClosed; an abnormal close (protocol error) is returned as
// the underlying close error itself, for which IsUnexpectedClose reports true.
func (c *Conn) Recv() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.markClosed()
		if IsUnexpectedClose(err) {
			return "", err
		}
		return "", ErrClosed
	}
	return string(data), nil
}

// Send writes a text message. Returns ErrClosed if the connection is already closed.
func (c *Conn) Send(text string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.markClosed()
		return err
	}
	return nil
}

// Close closes the underlying connection. Idempotent: repeated calls, and calls after a
// remote disconnect has already been observed via Recv, are no-ops that never return an
// error (SPEC_FULL.md §4.A).
func (c *Conn) Close(code int) error {
	c.closeOnce.Do(func() {
		c.markClosed()
		if code == 0 {
			code = websocket.CloseNormalClosure
		}
		deadline := websocket.FormatCloseMessage(code, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, deadline, time.Now().Add(writeWait))
		c.closeErr = c.ws.Close()
	})
	return nil
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// IsUnexpectedClose reports whether err represents an abnormal close (protocol error)
// rather than a normal remote disconnect.
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

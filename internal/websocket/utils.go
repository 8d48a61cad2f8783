package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// readWait must exceed the client's ping cadence and sample interval.
	readWait = 2 * time.Minute
	// MaxMessageSize bounds one inbound message, frames included.
	MaxMessageSize = 2 << 20
)

// Conn serializes writes to a WebSocket. gorilla connections allow one
// concurrent writer, and session events arrive from the session goroutine
// while replies come from the read loop.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Wrap prepares a freshly upgraded connection.
func Wrap(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(MaxMessageSize)
	return &Conn{ws: ws}
}

// WriteTyped sends a payload as JSON.
func (c *Conn) WriteTyped(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// ReadMessage reads one raw message and extends the read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.ws.Close()
}

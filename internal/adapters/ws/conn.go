// Package ws adapts gorilla/websocket connections to the delivery
// core's Transport interface.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avekas/parley/internal/core"
)

const writeWait = 5 * time.Second

var ErrBackpressure = errors.New("backpressure")

// Conn owns one WebSocket. Writes funnel through the send channel
// because gorilla allows a single concurrent writer; TrySend never
// blocks, it fails fast when the buffer is full.
//
// Close never writes data frames itself: it closes the send channel
// and lets the write pump drain whatever is queued, then the pump
// emits the close frame. Only when no pump is attached (a connection
// refused before the pumps start) does Close shut the socket down
// directly, and then via WriteControl, which gorilla documents as
// safe concurrently with a writer.
type Conn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu          sync.RWMutex
	closed      bool
	pumping     bool
	closeCode   int
	closeReason string
}

func newConn(ws *websocket.Conn, buffer int) *Conn {
	return &Conn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close records the close code, seals the send channel, and hands the
// socket teardown to the write pump so queued frames are flushed ahead
// of the close frame. Idempotent.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	pumping := c.pumping
	close(c.send)
	c.mu.Unlock()

	if !pumping {
		c.shutdown(code, reason)
	}
}

// shutdown emits the close control frame and tears the socket down.
// WriteControl may race an in-flight WriteMessage from the pump.
func (c *Conn) shutdown(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

func (c *Conn) attachPump() {
	c.mu.Lock()
	c.pumping = true
	c.mu.Unlock()
}

// detachPump runs when the write pump exits. If the connection was
// closed, the pump has drained the queue by now and the close frame
// goes out here; otherwise teardown arrives later via Close.
func (c *Conn) detachPump() {
	c.mu.Lock()
	c.pumping = false
	closed, code, reason := c.closed, c.closeCode, c.closeReason
	c.mu.Unlock()
	if closed {
		c.shutdown(code, reason)
	}
}

func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"clinichat/pkg/types"
)

const writeBuffer = 100

// conn wraps one client WebSocket. The identity is fixed at upgrade time and
// a single writer goroutine serializes all outbound frames; senders that find
// the buffer full after the timeout get ErrWriteTimeout and the relay drops
// the frame.
type conn struct {
	ws        *websocket.Conn
	identity  types.Identity
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, identity types.Identity) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:       ws,
		identity: identity,
		writeCh:  make(chan []byte, writeBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
	go c.writeLoop()
	return c
}

func (c *conn) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// send queues a frame for the writer goroutine.
func (c *conn) send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnClosed
	}
}

func (c *conn) read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}

package channel

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the minimal surface the manager needs from an established channel
// connection. Satisfied by the gorilla websocket wrapper below and by in-memory
// fakes in tests.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Transport establishes channel connections. The concrete transport is an
// implementation detail of the channel; the event schema is the contract.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// NewWebSocketTransport returns the production transport backed by
// gorilla/websocket.
func NewWebSocketTransport() Transport {
	return &wsTransport{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

type wsTransport struct {
	dialer *websocket.Dialer
}

func (t *wsTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

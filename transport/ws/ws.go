// Package ws is a handler.Transport backed by a raw gobwas/ws websocket
// connection: one text frame in, one text frame out, matching the CDP wire
// contract of one JSON document per frame.
package ws

import (
	"context"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn is a handler.Transport over a client websocket connection dialed
// with gobwas/ws.
type Conn struct {
	conn net.Conn
}

// Dial connects to the CDP websocket debugger URL (e.g. the
// "webSocketDebuggerUrl" from /json/version or /json/list).
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// ReadMessage reads the next complete text message, reassembling
// fragmented frames and transparently answering pings, per the
// handler.Transport contract.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		data, op, err := wsutil.ReadServerData(c.conn)
		if err != nil {
			return nil, err
		}
		if op == ws.OpText {
			return data, nil
		}
		// Non-text control frames (ping/pong/close) carry no CDP payload.
	}
}

// WriteMessage sends data as a single text frame.
func (c *Conn) WriteMessage(data []byte) error {
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

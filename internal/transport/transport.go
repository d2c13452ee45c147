// Package transport carries framed protocol messages between peers over a
// websocket connection (spec.md §4.9, §5).
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Conn is a bidirectional framed message channel. Implementations need not
// be safe for concurrent Send calls from multiple goroutines;
// protocol.Peer serializes its writes with a mutex, while protocol.Client
// sends without one.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
	RemoteAddr() string
}

const maxFrameSize = 64 << 20 // 64MiB, above the largest whole-file transfer before chunking kicks in.

type wsConn struct {
	ws     *websocket.Conn
	remote string
}

func newWSConn(ws *websocket.Conn, remote string) *wsConn {
	ws.SetReadLimit(maxFrameSize)
	return &wsConn{ws: ws, remote: remote}
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	return c.ws.Write(ctx, websocket.MessageBinary, frame)
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "closing")
}

func (c *wsConn) RemoteAddr() string {
	return c.remote
}

// Dial opens a Conn to a peer's sync endpoint.
func Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", url, err)
	}

	return newWSConn(ws, url), nil
}

// Accept upgrades an incoming HTTP request to a Conn. remote identifies the
// peer for logging, typically r.RemoteAddr or a handshake-derived peer-id.
func Accept(w http.ResponseWriter, r *http.Request, remote string) (Conn, error) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: accepting from %s: %w", remote, err)
	}

	return newWSConn(ws, remote), nil
}

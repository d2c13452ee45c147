package protocol

import (
	"context"
)

// pipeConn is an in-memory transport.Conn for tests, avoiding a real
// websocket round trip.
type pipeConn struct {
	out chan []byte
	in  chan []byte
}

func newPipe() (*pipeConn, *pipeConn) {
	a := make(chan []byte, 16)
	b := make(chan []byte, 16)

	return &pipeConn{out: a, in: b}, &pipeConn{out: b, in: a}
}

func (c *pipeConn) Send(ctx context.Context, frame []byte) error {
	select {
	case c.out <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pipeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-c.in:
		if !ok {
			return nil, context.Canceled
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Close() error {
	close(c.out)
	return nil
}

func (c *pipeConn) RemoteAddr() string { return "pipe" }

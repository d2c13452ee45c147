package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftsync/driftsync/internal/syncerr"
	"github.com/driftsync/driftsync/internal/transport"
)

// RequestHandler answers one request this Peer's remote side sent us.
// Returning an error sends back a Reject carrying the error's message.
type RequestHandler func(ctx context.Context, kind Kind, payload []byte) (Kind, any, error)

// Peer multiplexes outbound requests and inbound requests over a single
// transport.Conn: every peer connection is bidirectional, so either side
// may originate a request at any time (spec.md §4.9, §5 suspension
// points). A frame whose id matches a pending outbound request is
// dispatched as that request's response; any other frame is treated as an
// inbound request and routed to handle.
type Peer struct {
	conn    transport.Conn
	handle  RequestHandler
	logger  *slog.Logger
	sendMu  sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope
	readErr error

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewPeer wraps conn, starting a background read loop that dispatches
// responses to pending requests and inbound requests to handle. Call Close
// to stop the loop.
func NewPeer(conn transport.Conn, handle RequestHandler, logger *slog.Logger) *Peer {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Peer{
		conn:      conn,
		handle:    handle,
		logger:    logger,
		pending:   make(map[string]chan Envelope),
		sleepFunc: sleepCtx,
	}

	go p.readLoop()

	return p
}

func (p *Peer) readLoop() {
	ctx := context.Background()

	for {
		frame, err := p.conn.Receive(ctx)
		if err != nil {
			p.failPending(err)
			return
		}

		env, err := Decode(frame)
		if err != nil {
			p.logger.Warn("dropping malformed frame", slog.String("remote", p.conn.RemoteAddr()), slog.String("error", err.Error()))
			continue
		}

		p.mu.Lock()
		ch, isResponse := p.pending[env.ID]
		if isResponse {
			delete(p.pending, env.ID)
		}
		p.mu.Unlock()

		if isResponse {
			ch <- env
			continue
		}

		go p.serveOne(ctx, env)
	}
}

func (p *Peer) serveOne(ctx context.Context, env Envelope) {
	respKind, respPayload, err := p.handle(ctx, env.Kind, env.Payload)
	if err != nil {
		respKind = KindReject
		respPayload = RejectResponse{Reason: err.Error()}
	}

	out, encErr := Encode(env.ID, respKind, respPayload)
	if encErr != nil {
		p.logger.Warn("dropping unencodable response", slog.String("kind", string(respKind)), slog.String("error", encErr.Error()))
		return
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if err := p.conn.Send(ctx, out); err != nil {
		p.logger.Warn("failed to send response", slog.String("remote", p.conn.RemoteAddr()), slog.String("error", err.Error()))
	}
}

func (p *Peer) failPending(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readErr = err
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
}

// Close closes the underlying connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Request sends a request of kind with the given payload and returns the
// decoded response envelope, retrying on transient transport errors.
func (p *Peer) Request(ctx context.Context, kind Kind, payload any) (Envelope, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := calcBackoff(attempt)
			p.logger.Warn("retrying request", slog.String("kind", string(kind)), slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
			if err := p.sleepFunc(ctx, backoff); err != nil {
				return Envelope{}, err
			}
		}

		env, err := p.requestOnce(ctx, kind, payload)
		if err == nil {
			return env, nil
		}

		lastErr = err
		if !syncerr.IsRetryable(err) {
			return Envelope{}, err
		}
	}

	return Envelope{}, syncerr.Transient("request", "", fmt.Errorf("exhausted retries: %w", lastErr))
}

func (p *Peer) requestOnce(ctx context.Context, kind Kind, payload any) (Envelope, error) {
	id := uuid.NewString()

	frame, err := Encode(id, kind, payload)
	if err != nil {
		return Envelope{}, syncerr.Fatal("encode", "", err)
	}

	ch := make(chan Envelope, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	p.sendMu.Lock()
	sendErr := p.conn.Send(ctx, frame)
	p.sendMu.Unlock()

	if sendErr != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return Envelope{}, syncerr.Transient("send", "", sendErr)
	}

	select {
	case env, ok := <-ch:
		if !ok {
			return Envelope{}, syncerr.Transient("receive", "", fmt.Errorf("connection closed: %w", p.readErr))
		}
		if env.Kind == KindReject {
			var rej RejectResponse
			if decodeErr := DecodePayload(env, &rej); decodeErr == nil {
				return Envelope{}, syncerr.Conflict("request", "", fmt.Errorf("rejected: %s", rej.Reason))
			}
		}
		return env, nil
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return Envelope{}, syncerr.Transient("receive", "", ctx.Err())
	}
}

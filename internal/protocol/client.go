package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftsync/driftsync/internal/syncerr"
	"github.com/driftsync/driftsync/internal/transport"
)

// Retry tuning for request timeouts only; the transport connection itself
// is not re-dialed here (that is the engine's concern, one layer up).
const (
	maxRetries     = 3
	baseBackoff    = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25

	defaultRequestTimeout = 30 * time.Second
)

// Client issues correlated requests over a single transport.Conn and
// dispatches responses back to their callers. One Client per peer
// connection; callers may issue concurrent requests safely.
type Client struct {
	conn   transport.Conn
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan Envelope
	readErr error

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient wraps conn, starting a background read loop that dispatches
// responses to pending requests. Call Close to stop the loop.
func NewClient(conn transport.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		conn:      conn,
		logger:    logger,
		pending:   make(map[string]chan Envelope),
		sleepFunc: sleepCtx,
	}

	go c.readLoop()

	return c
}

func (c *Client) readLoop() {
	for {
		frame, err := c.conn.Receive(context.Background())
		if err != nil {
			c.failPending(err)
			return
		}

		env, err := Decode(frame)
		if err != nil {
			c.logger.Warn("dropping malformed frame", slog.String("remote", c.conn.RemoteAddr()), slog.String("error", err.Error()))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()

		if !ok {
			c.logger.Warn("dropping response with no matching request", slog.String("id", env.ID))
			continue
		}

		ch <- env
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readErr = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Request sends a request of kind with the given payload and returns the
// decoded response envelope, retrying on transient transport errors.
func (c *Client) Request(ctx context.Context, kind Kind, payload any) (Envelope, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := calcBackoff(attempt)
			c.logger.Warn("retrying request", slog.String("kind", string(kind)), slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
			if err := c.sleepFunc(ctx, backoff); err != nil {
				return Envelope{}, err
			}
		}

		env, err := c.requestOnce(ctx, kind, payload)
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

func (c *Client) requestOnce(ctx context.Context, kind Kind, payload any) (Envelope, error) {
	id := uuid.NewString()

	frame, err := Encode(id, kind, payload)
	if err != nil {
		return Envelope{}, syncerr.Fatal("encode", "", err)
	}

	ch := make(chan Envelope, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	if err := c.conn.Send(ctx, frame); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Envelope{}, syncerr.Transient("send", "", err)
	}

	select {
	case env, ok := <-ch:
		if !ok {
			return Envelope{}, syncerr.Transient("receive", "", fmt.Errorf("connection closed: %w", c.readErr))
		}
		if env.Kind == KindReject {
			var rej RejectResponse
			if decodeErr := DecodePayload(env, &rej); decodeErr == nil {
				return Envelope{}, syncerr.Conflict("request", "", fmt.Errorf("rejected: %s", rej.Reason))
			}
		}
		return env, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Envelope{}, syncerr.Transient("receive", "", ctx.Err())
	}
}

func calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1)
	backoff += jitter

	return time.Duration(backoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

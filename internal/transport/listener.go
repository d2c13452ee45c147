package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
)

// Handler processes one accepted peer connection. It owns conn and must
// close it before returning.
type Handler func(ctx context.Context, conn Conn)

// Server accepts incoming peer connections on a single HTTP path and hands
// each upgraded connection to a Handler.
type Server struct {
	addr    string
	handler Handler
	logger  *slog.Logger

	httpServer *http.Server
}

// NewServer constructs a Server listening on addr ("host:port"), upgrading
// every request on path to a websocket connection passed to handler.
func NewServer(addr, path string, handler Handler, logger *slog.Logger) *Server {
	s := &Server{addr: addr, handler: handler, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.serveHTTP)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	return s
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := Accept(w, r, r.RemoteAddr)
	if err != nil {
		s.logger.Warn("rejecting peer connection", slog.String("remote", r.RemoteAddr), slog.String("error", err.Error()))
		return
	}

	s.handler(r.Context(), conn)
}

// ListenAndServe blocks, serving connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listening on %s: %w", s.addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		_ = s.httpServer.Close()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

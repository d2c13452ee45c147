package engine

import (
	"context"
	"log/slog"

	"github.com/driftsync/driftsync/internal/protocol"
	"github.com/driftsync/driftsync/internal/transport"
)

// NewInboundHandler returns a transport.Handler that answers a peer's
// requests on an accepted connection via a Responder. This is the
// accept-side counterpart to DialConnector: a peer that connects to us
// gets served from the same store and block store a session we initiate
// would use (spec.md §4.9).
func NewInboundHandler(e *Engine, lookup FolderLookup, logger *slog.Logger) transport.Handler {
	return func(ctx context.Context, conn transport.Conn) {
		responder := NewResponder(e, lookup)
		peer := protocol.NewPeer(conn, responder.Handle, logger)
		defer peer.Close()

		<-ctx.Done()
	}
}

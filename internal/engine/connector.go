package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftsync/driftsync/internal/peerset"
	"github.com/driftsync/driftsync/internal/protocol"
	"github.com/driftsync/driftsync/internal/transport"
)

// DialConnector is the default PeerConnector: it dials a peer's websocket
// address directly and wraps the connection in a bidirectional
// protocol.Peer whose inbound requests are answered by a Responder bound
// to lookup (spec.md §4.9).
//
// DialConnector needs the Engine it serves in order to build a Responder,
// but the Engine needs a PeerConnector to be constructed first, so the
// link is completed after the fact via AttachEngine rather than threaded
// through the constructor.
type DialConnector struct {
	engine *Engine
	lookup FolderLookup
	logger *slog.Logger
}

// NewDialConnector builds a DialConnector. lookup resolves a sync-id to
// its folder for answering the peer's own requests against this device's
// state and files. Call AttachEngine once the owning Engine exists.
func NewDialConnector(lookup FolderLookup, logger *slog.Logger) *DialConnector {
	return &DialConnector{lookup: lookup, logger: logger}
}

// AttachEngine completes construction by giving the connector access to
// the Engine's store and block store, for answering the peer's requests
// on the same connection.
func (c *DialConnector) AttachEngine(e *Engine) {
	c.engine = e
}

// Connect implements PeerConnector.
func (c *DialConnector) Connect(ctx context.Context, peer peerset.Peer) (*protocol.Peer, error) {
	if peer.Address == "" {
		return nil, fmt.Errorf("engine: peer %s has no known dial address", peer.ID)
	}

	if c.engine == nil {
		return nil, fmt.Errorf("engine: connector used before AttachEngine")
	}

	conn, err := transport.Dial(ctx, peer.Address)
	if err != nil {
		return nil, fmt.Errorf("engine: dialing peer %s: %w", peer.ID, err)
	}

	responder := NewResponder(c.engine, c.lookup)

	return protocol.NewPeer(conn, responder.Handle, c.logger.With(slog.String("peer", peer.ID))), nil
}

package protocol

import (
	"context"
	"log/slog"

	"github.com/driftsync/driftsync/internal/transport"
)

// Handler answers one incoming request, returning the response kind and
// payload to send back. Returning an error sends a Reject with the error's
// message as the reason.
type Handler func(ctx context.Context, kind Kind, payload []byte) (Kind, any, error)

// Serve reads requests from conn in a loop, dispatching each to handle and
// writing back the correlated response, until conn closes or ctx is
// cancelled.
func Serve(ctx context.Context, conn transport.Conn, handle Handler, logger *slog.Logger) {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return
		}

		env, err := Decode(frame)
		if err != nil {
			logger.Warn("dropping malformed frame", slog.String("remote", conn.RemoteAddr()), slog.String("error", err.Error()))
			continue
		}

		respKind, respPayload, err := handle(ctx, env.Kind, env.Payload)
		if err != nil {
			respKind = KindReject
			respPayload = RejectResponse{Reason: err.Error()}
		}

		out, encErr := Encode(env.ID, respKind, respPayload)
		if encErr != nil {
			logger.Warn("dropping unencodable response", slog.String("kind", string(respKind)), slog.String("error", encErr.Error()))
			continue
		}

		if err := conn.Send(ctx, out); err != nil {
			return
		}
	}
}

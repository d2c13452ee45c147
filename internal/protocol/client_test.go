package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RequestResponseRoundTrip(t *testing.T) {
	clientConn, serverConn := newPipe()
	logger := slog.New(slog.DiscardHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Serve(ctx, serverConn, func(ctx context.Context, kind Kind, payload []byte) (Kind, any, error) {
		require.Equal(t, KindGetMST, kind)

		var req GetMSTRequest
		require.NoError(t, json.Unmarshal(payload, &req))
		assert.Equal(t, "project-x", req.SyncID)

		return KindMSTRoot, MSTRootResponse{SyncID: req.SyncID, Hash: "abc123"}, nil
	}, logger)

	client := NewClient(clientConn, logger)
	defer client.Close()

	env, err := client.Request(ctx, KindGetMST, GetMSTRequest{SyncID: "project-x"})
	require.NoError(t, err)
	assert.Equal(t, KindMSTRoot, env.Kind)

	var resp MSTRootResponse
	require.NoError(t, DecodePayload(env, &resp))
	assert.Equal(t, "abc123", resp.Hash)
}

func TestClient_RequestSurfacesReject(t *testing.T) {
	clientConn, serverConn := newPipe()
	logger := slog.New(slog.DiscardHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Serve(ctx, serverConn, func(ctx context.Context, kind Kind, payload []byte) (Kind, any, error) {
		return KindReject, nil, assertError("not authorized")
	}, logger)

	client := NewClient(clientConn, logger)
	defer client.Close()

	_, err := client.Request(ctx, KindGetStates, GetStatesRequest{SyncID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}

func TestClient_RequestTimesOutWithNoResponder(t *testing.T) {
	clientConn, _ := newPipe()
	logger := slog.New(slog.DiscardHandler)

	client := NewClient(clientConn, logger)
	client.sleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := client.Request(ctx, KindGetMST, GetMSTRequest{SyncID: "x"})
	require.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }

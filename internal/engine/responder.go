package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/driftsync/driftsync/internal/chunker"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/decision"
	"github.com/driftsync/driftsync/internal/mst"
	"github.com/driftsync/driftsync/internal/protocol"
	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/transfer"
)

// FolderLookup resolves a sync-id to its configured folder, for answering
// inbound requests naming a sync-id this device also participates in.
type FolderLookup func(syncID string) (config.ResolvedFolder, bool)

// Responder answers inbound protocol requests from a peer on behalf of
// this device's own folders and block store, the mirror image of
// session's outbound requests (spec.md §4.9).
type Responder struct {
	e      *Engine
	lookup FolderLookup
}

// NewResponder builds a Responder bound to e's store and block store.
func NewResponder(e *Engine, lookup FolderLookup) *Responder {
	return &Responder{e: e, lookup: lookup}
}

// Handle implements protocol.RequestHandler.
func (r *Responder) Handle(ctx context.Context, kind protocol.Kind, payload []byte) (protocol.Kind, any, error) {
	switch kind {
	case protocol.KindGetStates:
		return r.handleGetStates(ctx, payload)
	case protocol.KindGetMST:
		return r.handleGetMST(ctx, payload)
	case protocol.KindGetFile:
		return r.handleGetFile(ctx, payload)
	case protocol.KindGetChunk:
		return r.handleGetChunk(ctx, payload)
	case protocol.KindPutFile:
		return r.handlePutFile(ctx, payload)
	case protocol.KindPutChunk:
		return r.handlePutChunk(ctx, payload)
	case protocol.KindDelete:
		return r.handleDelete(ctx, payload)
	default:
		return protocol.KindReject, nil, fmt.Errorf("unsupported request kind %s", kind)
	}
}

func decodeRequest(payload []byte, dest any) error {
	return protocol.DecodePayload(protocol.Envelope{Payload: payload}, dest)
}

func (r *Responder) handleGetStates(ctx context.Context, payload []byte) (protocol.Kind, any, error) {
	var req protocol.GetStatesRequest
	if err := decodeRequest(payload, &req); err != nil {
		return protocol.KindReject, nil, err
	}

	states, err := r.e.store.AllStates(ctx, req.SyncID)
	if err != nil {
		return protocol.KindReject, nil, err
	}

	wire := make(map[string]protocol.WireFileState, len(states))
	for path, fs := range states {
		wire[path] = protocol.FromFileState(fs)
	}

	return protocol.KindStates, protocol.StatesResponse{SyncID: req.SyncID, States: wire}, nil
}

// mstFromStates builds a Merkle Search Tree over a folder's live files,
// keyed by path and valued by content hash, for cheap root-hash diffing
// before a full state exchange (spec.md §4.3, §4.7).
func mstFromStates(states map[string]state.FileState) *mst.Tree {
	tree := mst.New()
	for path, fs := range states {
		if fs.IsDeleted() || fs.Meta == nil {
			continue
		}
		tree.Insert(path, fs.Meta.ContentHash)
	}

	return tree
}

func (r *Responder) handleGetMST(ctx context.Context, payload []byte) (protocol.Kind, any, error) {
	var req protocol.GetMSTRequest
	if err := decodeRequest(payload, &req); err != nil {
		return protocol.KindReject, nil, err
	}

	states, err := r.e.store.AllStates(ctx, req.SyncID)
	if err != nil {
		return protocol.KindReject, nil, err
	}

	tree := mstFromStates(states)

	return protocol.KindMSTRoot, protocol.MSTRootResponse{SyncID: req.SyncID, Hash: tree.RootHash()}, nil
}

func (r *Responder) handleGetFile(ctx context.Context, payload []byte) (protocol.Kind, any, error) {
	var req protocol.GetFileRequest
	if err := decodeRequest(payload, &req); err != nil {
		return protocol.KindReject, nil, err
	}

	folder, ok := r.lookup(req.SyncID)
	if !ok {
		return protocol.KindReject, nil, fmt.Errorf("unknown sync-id %s", req.SyncID)
	}

	fs, ok, err := r.e.store.Get(ctx, req.SyncID, req.Path)
	if err != nil || !ok || fs.Meta == nil {
		return protocol.KindReject, nil, fmt.Errorf("no such file %s", req.Path)
	}

	fsPath := filepath.Join(folder.Path, filepath.FromSlash(req.Path))

	threshold, err := config.ParseSize(folder.Transfer.BlockThreshold)
	if err != nil {
		threshold = 1 << 20
	}

	info, err := os.Stat(fsPath)
	if err != nil {
		return protocol.KindReject, nil, err
	}

	meta := protocol.FromFileState(fs)

	if transfer.ModeFor(info.Size(), threshold) == transfer.ModeWhole {
		data, err := transfer.ReadForTransfer(fsPath)
		if err != nil {
			return protocol.KindReject, nil, err
		}

		return protocol.KindFileWhole, protocol.FileWholeResponse{Bytes: data, Meta: meta}, nil
	}

	f, err := os.Open(fsPath)
	if err != nil {
		return protocol.KindReject, nil, err
	}
	defer f.Close()

	chunks, err := chunker.Split(f, chunker.DefaultParams())
	if err != nil {
		return protocol.KindReject, nil, err
	}

	hashes := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if putErr := r.e.blocks.Put(c.Hash, c.Bytes); putErr != nil {
			return protocol.KindReject, nil, putErr
		}
		hashes = append(hashes, c.Hash)
	}

	return protocol.KindFileChunks, protocol.FileChunksResponse{ChunkHashes: hashes, Meta: meta}, nil
}

func (r *Responder) handleGetChunk(ctx context.Context, payload []byte) (protocol.Kind, any, error) {
	var req protocol.GetChunkRequest
	if err := decodeRequest(payload, &req); err != nil {
		return protocol.KindReject, nil, err
	}

	data, err := r.e.blocks.Get(req.ChunkHash)
	if err != nil {
		return protocol.KindNotFound, nil, nil
	}

	return protocol.KindChunkBytes, protocol.ChunkBytesResponse{Bytes: data}, nil
}

// handlePutFile accepts an inbound write only when our own local state
// still agrees the peer should win (re-deciding against the state we
// actually hold, not the state the peer saw when it decided to upload),
// closing the race where our state changed between the peer's decision
// and this request's arrival.
func (r *Responder) handlePutFile(ctx context.Context, payload []byte) (protocol.Kind, any, error) {
	var req protocol.PutFileRequest
	if err := decodeRequest(payload, &req); err != nil {
		return protocol.KindReject, nil, err
	}

	folder, ok := r.lookup(req.SyncID)
	if !ok {
		return protocol.KindReject, protocol.RejectResponse{Reason: "unknown sync-id"}, nil
	}

	local, hasLocal, err := r.e.store.Get(ctx, req.SyncID, req.Path)
	if err != nil {
		return protocol.KindReject, nil, err
	}

	var localPtr *state.FileState
	if hasLocal {
		localPtr = &local
	}

	remote := req.Meta.ToFileState()

	act := decision.Decide(localPtr, &remote, req.Path)
	if act != decision.Download && act != decision.Skip {
		return protocol.KindReject, protocol.RejectResponse{Reason: "local state has since diverged"}, nil
	}

	fsPath := filepath.Join(folder.Path, filepath.FromSlash(req.Path))
	recv := transfer.NewReceiver(r.e.blocks, folder.Transfer.ChunkFetchConcurrency, r.e.logger)

	if len(req.ChunkHashes) == 0 {
		if err := recv.ReceiveWhole(ctx, fsPath, req.Bytes, req.Meta.ContentHash); err != nil {
			return protocol.KindReject, protocol.RejectResponse{Reason: err.Error()}, nil
		}
	} else {
		fetch := func(ctx context.Context, hash string) ([]byte, error) {
			return r.e.blocks.Get(hash)
		}

		if err := recv.ReceiveChunks(ctx, fsPath, req.ChunkHashes, req.Meta.ContentHash, fetch); err != nil {
			return protocol.KindReject, protocol.RejectResponse{Reason: err.Error()}, nil
		}
	}

	if err := r.e.store.SetExists(ctx, req.SyncID, req.Path, *remote.Meta); err != nil {
		return protocol.KindReject, nil, err
	}

	return protocol.KindAck, protocol.AckResponse{}, nil
}

func (r *Responder) handlePutChunk(ctx context.Context, payload []byte) (protocol.Kind, any, error) {
	var req protocol.PutChunkRequest
	if err := decodeRequest(payload, &req); err != nil {
		return protocol.KindReject, nil, err
	}

	if err := r.e.blocks.Put(req.ChunkHash, req.Bytes); err != nil {
		return protocol.KindReject, protocol.RejectResponse{Reason: err.Error()}, nil
	}

	return protocol.KindAck, protocol.AckResponse{}, nil
}

func (r *Responder) handleDelete(ctx context.Context, payload []byte) (protocol.Kind, any, error) {
	var req protocol.DeleteRequest
	if err := decodeRequest(payload, &req); err != nil {
		return protocol.KindReject, nil, err
	}

	folder, ok := r.lookup(req.SyncID)
	if !ok {
		return protocol.KindReject, protocol.RejectResponse{Reason: "unknown sync-id"}, nil
	}

	rec := req.Deletion.ToFileState()
	if rec.Deletion == nil {
		return protocol.KindReject, protocol.RejectResponse{Reason: "deletion record missing"}, nil
	}

	if err := r.e.store.SetDeleted(ctx, req.SyncID, req.Path, *rec.Deletion); err != nil {
		return protocol.KindReject, nil, err
	}

	fsPath := filepath.Join(folder.Path, filepath.FromSlash(req.Path))
	if err := os.Remove(fsPath); err != nil && !os.IsNotExist(err) {
		return protocol.KindReject, protocol.RejectResponse{Reason: err.Error()}, nil
	}

	return protocol.KindAck, protocol.AckResponse{}, nil
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/driftsync/driftsync/internal/chunker"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/decision"
	"github.com/driftsync/driftsync/internal/peerset"
	"github.com/driftsync/driftsync/internal/protocol"
	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/syncerr"
	"github.com/driftsync/driftsync/internal/transfer"
)

const maxConcurrentTransfers = 3

// session runs one MST-exchange-through-transfer cycle for a single
// (peer, sync-folder) pair (spec.md §4.7).
type session struct {
	engine *Engine
	folder config.ResolvedFolder
	peer   peerset.Peer
	client *protocol.Peer

	blockThresholdBytes int64
	chunkParams         chunker.Params
}

func newSession(e *Engine, folder config.ResolvedFolder, peer peerset.Peer, client *protocol.Peer) (*session, error) {
	threshold, err := config.ParseSize(folder.Transfer.BlockThreshold)
	if err != nil {
		return nil, syncerr.Fatal("session_init", folder.SyncID, err)
	}

	return &session{
		engine:              e,
		folder:              folder,
		peer:                peer,
		client:              client,
		blockThresholdBytes: threshold,
		chunkParams:         chunker.DefaultParams(),
	}, nil
}

// run executes one session: exchange, decide, resolve-uncertain, big-delete
// check, execute. Cooldowns are armed by the caller, not here.
func (s *session) run(ctx context.Context) error {
	sessionTimeout, err := time.ParseDuration(s.folder.Sync.SessionTimeout)
	if err != nil {
		sessionTimeout = 10 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()

	logger := s.engine.logger.With(slog.String("sync_id", s.folder.SyncID), slog.String("peer", s.peer.ID))

	local, remote, err := s.exchangeStates(ctx)
	if err != nil {
		return fmt.Errorf("exchanging states: %w", err)
	}

	s.recordConvergedAcks(ctx, local, remote)

	actions := s.decideAll(local, remote)
	actions, err = s.resolveUncertain(ctx, actions, remote)
	if err != nil {
		return fmt.Errorf("resolving uncertain paths: %w", err)
	}

	if err := s.checkBigDelete(actions, len(local)); err != nil {
		logger.Warn("session aborted by big-delete safety gate", slog.String("error", err.Error()))
		return err
	}

	if err := s.executeAll(ctx, actions, local, remote); err != nil {
		logger.Warn("session completed with errors", slog.String("error", err.Error()))
		return err
	}

	logger.Debug("session completed", slog.Int("paths", len(actions)))

	return nil
}

type pathAction struct {
	path   string
	action decision.Action
}

// exchangeStates fetches the peer's FileState map (spec.md §4.7 step 1,
// preferred stateful form) and returns both sides' maps keyed by path.
func (s *session) exchangeStates(ctx context.Context) (map[string]state.FileState, map[string]protocol.WireFileState, error) {
	local, err := s.engine.store.AllStates(ctx, s.folder.SyncID)
	if err != nil {
		return nil, nil, syncerr.Transient("exchange", s.folder.SyncID, err)
	}

	env, err := s.client.Request(ctx, protocol.KindGetStates, protocol.GetStatesRequest{SyncID: s.folder.SyncID})
	if err != nil {
		return nil, nil, err
	}

	var resp protocol.StatesResponse
	if err := protocol.DecodePayload(env, &resp); err != nil {
		return nil, nil, syncerr.Fatal("exchange", s.folder.SyncID, err)
	}

	return local, resp.States, nil
}

// recordConvergedAcks records the peer's acknowledgment of every local
// tombstone its exchanged state does not show as Exists — either the path
// is entirely absent from the peer's MST or the peer holds the same
// tombstone itself. This is the steady-state convergent case, distinct
// from deleteRemote's ack on an active push: once both sides have
// independently settled on a deletion, every later exchange should still
// count as an acknowledgment so the tombstone becomes eligible for GC
// (spec.md §3 ack rule).
func (s *session) recordConvergedAcks(ctx context.Context, local map[string]state.FileState, remote map[string]protocol.WireFileState) {
	for path, fs := range local {
		if !fs.IsDeleted() {
			continue
		}

		if r, ok := remote[path]; ok && !r.ToFileState().IsDeleted() {
			continue
		}

		if err := s.engine.store.RecordAck(ctx, s.folder.SyncID, path, s.peer.ID); err != nil {
			s.engine.logger.Warn("failed to record tombstone ack", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

func (s *session) decideAll(local map[string]state.FileState, remote map[string]protocol.WireFileState) []pathAction {
	paths := make(map[string]struct{}, len(local)+len(remote))
	for p := range local {
		paths[p] = struct{}{}
	}
	for p := range remote {
		paths[p] = struct{}{}
	}

	actions := make([]pathAction, 0, len(paths))
	for p := range paths {
		var localPtr *state.FileState
		if l, ok := local[p]; ok {
			localPtr = &l
		}

		var remotePtr *state.FileState
		if r, ok := remote[p]; ok {
			rs := r.ToFileState()
			remotePtr = &rs
		}

		act := decision.Decide(localPtr, remotePtr, p)
		if act == decision.Skip {
			continue
		}

		actions = append(actions, pathAction{path: p, action: act})
	}

	return actions
}

// resolveUncertain re-decides every Uncertain path. The stateful GetStates
// exchange already carried full tombstone data, so no further round trip
// is needed before re-deciding (spec.md §4.5.1's follow-up query applies
// to the legacy Files variant, which omits tombstones).
func (s *session) resolveUncertain(ctx context.Context, actions []pathAction, remote map[string]protocol.WireFileState) ([]pathAction, error) {
	out := make([]pathAction, 0, len(actions))

	for _, a := range actions {
		if a.action != decision.Uncertain {
			out = append(out, a)
			continue
		}

		local, _, err := s.engine.store.Get(ctx, s.folder.SyncID, a.path)
		if err != nil {
			return nil, syncerr.Transient("resolve_uncertain", a.path, err)
		}

		var remotePtr *state.FileState
		if r, ok := remote[a.path]; ok {
			rs := r.ToFileState()
			remotePtr = &rs
		}

		resolved := decision.ResolveUncertain(&local, remotePtr, a.path)
		if resolved == decision.Skip {
			continue
		}

		out = append(out, pathAction{path: a.path, action: resolved})
	}

	return out, nil
}

// checkBigDelete aborts a session whose local deletions are suspiciously
// large relative to the known baseline, requiring manual confirmation via
// `driftsync sync --confirm-deletes` instead of deleting unattended
// (supplemented safety gate, not present in spec.md).
func (s *session) checkBigDelete(actions []pathAction, baselineCount int) error {
	deletes := 0
	for _, a := range actions {
		if a.action == decision.DeleteLocal {
			deletes++
		}
	}

	safety := s.folder.Safety
	if deletes < safety.BigDeleteMinItems {
		return nil
	}

	percent := 100.0
	if baselineCount > 0 {
		percent = float64(deletes) / float64(baselineCount) * 100
	}

	if deletes <= safety.BigDeleteMaxCount && percent <= safety.BigDeleteMaxPercent {
		return nil
	}

	return syncerr.Policy("big_delete_gate", s.folder.SyncID,
		fmt.Errorf("session would delete %d of %d known files (%.1f%%), exceeding the configured safety threshold", deletes, baselineCount, percent))
}

func (s *session) executeAll(ctx context.Context, actions []pathAction, local map[string]state.FileState, remote map[string]protocol.WireFileState) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTransfers)

	for _, a := range actions {
		a := a
		g.Go(func() error {
			return s.execute(ctx, a, local[a.path], remote[a.path])
		})
	}

	return g.Wait()
}

func (s *session) execute(ctx context.Context, a pathAction, local state.FileState, remote protocol.WireFileState) error {
	switch a.action {
	case decision.Download:
		return s.download(ctx, a.path)
	case decision.Upload:
		return s.upload(ctx, a.path, local)
	case decision.DeleteLocal:
		return s.deleteLocal(ctx, a.path, local, remote)
	case decision.DeleteRemote:
		return s.deleteRemote(ctx, a.path, local)
	case decision.Conflict:
		return s.conflict(ctx, a.path, local)
	default:
		return nil
	}
}

func (s *session) localFSPath(relPath string) string {
	return filepath.Join(s.folder.Path, filepath.FromSlash(relPath))
}

func (s *session) receiver() *transfer.Receiver {
	return transfer.NewReceiver(s.engine.blocks, s.folder.Transfer.ChunkFetchConcurrency, s.engine.logger)
}

// download fetches path from the peer and applies it locally (spec.md
// §4.8).
func (s *session) download(ctx context.Context, path string) error {
	env, err := s.client.Request(ctx, protocol.KindGetFile, protocol.GetFileRequest{SyncID: s.folder.SyncID, Path: path})
	if err != nil {
		return err
	}

	target := s.localFSPath(path)
	recv := s.receiver()

	switch env.Kind {
	case protocol.KindFileWhole:
		var resp protocol.FileWholeResponse
		if err := protocol.DecodePayload(env, &resp); err != nil {
			return syncerr.Fatal("download", path, err)
		}

		if err := recv.ReceiveWhole(ctx, target, resp.Bytes, resp.Meta.ContentHash); err != nil {
			return err
		}

		return s.applyRemoteState(ctx, path, resp.Meta)
	case protocol.KindFileChunks:
		var resp protocol.FileChunksResponse
		if err := protocol.DecodePayload(env, &resp); err != nil {
			return syncerr.Fatal("download", path, err)
		}

		fetch := func(ctx context.Context, hash string) ([]byte, error) {
			chunkEnv, err := s.client.Request(ctx, protocol.KindGetChunk, protocol.GetChunkRequest{ChunkHash: hash})
			if err != nil {
				return nil, err
			}

			var chunkResp protocol.ChunkBytesResponse
			if err := protocol.DecodePayload(chunkEnv, &chunkResp); err != nil {
				return nil, syncerr.Fatal("download_chunk", hash, err)
			}

			return chunkResp.Bytes, nil
		}

		err := recv.ReceiveChunks(ctx, target, resp.ChunkHashes, resp.Meta.ContentHash, fetch)
		if err != nil {
			// Fall back to whole-file transfer for this path (spec.md §4.8).
			return s.downloadWhole(ctx, path)
		}

		return s.applyRemoteState(ctx, path, resp.Meta)
	default:
		return syncerr.Fatal("download", path, fmt.Errorf("unexpected response kind %s", env.Kind))
	}
}

func (s *session) downloadWhole(ctx context.Context, path string) error {
	env, err := s.client.Request(ctx, protocol.KindGetFile, protocol.GetFileRequest{SyncID: s.folder.SyncID, Path: path})
	if err != nil {
		return err
	}

	var resp protocol.FileWholeResponse
	if err := protocol.DecodePayload(env, &resp); err != nil {
		return syncerr.Fatal("download_whole_fallback", path, err)
	}

	target := s.localFSPath(path)
	if err := s.receiver().ReceiveWhole(ctx, target, resp.Bytes, resp.Meta.ContentHash); err != nil {
		return err
	}

	return s.applyRemoteState(ctx, path, resp.Meta)
}

func (s *session) applyRemoteState(ctx context.Context, path string, meta protocol.WireFileState) error {
	fs := meta.ToFileState()
	if fs.IsDeleted() {
		return s.engine.store.SetDeleted(ctx, s.folder.SyncID, path, *fs.Deletion)
	}

	return s.engine.store.SetExists(ctx, s.folder.SyncID, path, *fs.Meta)
}

// upload pushes the local version of path to the peer (spec.md §4.8).
func (s *session) upload(ctx context.Context, path string, local state.FileState) error {
	if local.Meta == nil {
		return syncerr.Fatal("upload", path, fmt.Errorf("no local metadata for %s", path))
	}

	fsPath := s.localFSPath(path)
	info, err := os.Stat(fsPath)
	if err != nil {
		return syncerr.Transient("upload", path, err)
	}

	meta := protocol.FromFileState(local)

	mode := transfer.ModeFor(info.Size(), s.blockThresholdBytes)
	if mode == transfer.ModeWhole {
		data, err := transfer.ReadForTransfer(fsPath)
		if err != nil {
			return syncerr.Transient("upload", path, err)
		}

		_, err = s.client.Request(ctx, protocol.KindPutFile, protocol.PutFileRequest{
			SyncID: s.folder.SyncID, Path: path, Bytes: data, Meta: meta,
		})

		return err
	}

	chunkHashes, err := s.chunkAndStore(fsPath)
	if err != nil {
		return syncerr.Transient("upload", path, err)
	}

	_, err = s.client.Request(ctx, protocol.KindPutFile, protocol.PutFileRequest{
		SyncID: s.folder.SyncID, Path: path, ChunkHashes: chunkHashes, Meta: meta,
	})

	return err
}

// chunkAndStore splits fsPath with FastCDC and stores each chunk in the
// (global, content-addressed) local block store so it can serve GetChunk
// requests from the peer.
func (s *session) chunkAndStore(fsPath string) ([]string, error) {
	f, err := os.Open(fsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunks, err := chunker.Split(f, s.chunkParams)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if err := s.engine.blocks.Put(c.Hash, c.Bytes); err != nil {
			return nil, err
		}
		hashes = append(hashes, c.Hash)
	}

	return hashes, nil
}

// deleteLocal atomically removes the local file and records the incoming
// tombstone (spec.md §4.7 step 4, §4.8).
func (s *session) deleteLocal(ctx context.Context, path string, local state.FileState, remote protocol.WireFileState) error {
	fsPath := s.localFSPath(path)

	rec := remote.ToFileState()
	if !rec.IsDeleted() {
		return syncerr.Fatal("delete_local", path, fmt.Errorf("remote state is not a tombstone"))
	}

	if err := s.engine.store.SetDeleted(ctx, s.folder.SyncID, path, *rec.Deletion); err != nil {
		return syncerr.Transient("delete_local", path, err)
	}

	if err := os.Remove(fsPath); err != nil && !os.IsNotExist(err) {
		return syncerr.Transient("delete_local", path, err)
	}

	return nil
}

// deleteRemote sends the local tombstone to the peer so it applies the
// deletion via its own decision engine (spec.md §4.7 step 4).
func (s *session) deleteRemote(ctx context.Context, path string, local state.FileState) error {
	if !local.IsDeleted() {
		return syncerr.Fatal("delete_remote", path, fmt.Errorf("local state is not a tombstone"))
	}

	_, err := s.client.Request(ctx, protocol.KindDelete, protocol.DeleteRequest{
		SyncID:   s.folder.SyncID,
		Path:     path,
		Deletion: protocol.FromFileState(local),
	})
	if err != nil {
		return err
	}

	if ackErr := s.engine.store.RecordAck(ctx, s.folder.SyncID, path, s.peer.ID); ackErr != nil {
		s.engine.logger.Warn("failed to record tombstone ack", slog.String("path", path), slog.String("error", ackErr.Error()))
	}

	return nil
}

// conflict writes the remote version as a conflict sibling, leaving the
// local version in place, and records the conflict. When the peer answers
// with a whole-file response, the local version is then uploaded to the
// peer; after a chunked response no upload is made. The conflict sibling
// itself is never uploaded.
func (s *session) conflict(ctx context.Context, path string, local state.FileState) error {
	env, err := s.client.Request(ctx, protocol.KindGetFile, protocol.GetFileRequest{SyncID: s.folder.SyncID, Path: path})
	if err != nil {
		return err
	}

	var data []byte
	var meta protocol.WireFileState

	switch env.Kind {
	case protocol.KindFileWhole:
		var resp protocol.FileWholeResponse
		if err := protocol.DecodePayload(env, &resp); err != nil {
			return syncerr.Fatal("conflict", path, err)
		}
		data, meta = resp.Bytes, resp.Meta
	case protocol.KindFileChunks:
		// Chunked responses are handled separately: the file is requested
		// again and the sibling is reassembled from its chunks.
		return s.conflictViaWholeFallback(ctx, path)
	default:
		return syncerr.Fatal("conflict", path, fmt.Errorf("unexpected response kind %s", env.Kind))
	}

	conflictRel := transfer.ConflictPath(path, s.peer.ID, time.Now())
	conflictPath := s.localFSPath(conflictRel)
	if err := s.receiver().ReceiveWhole(ctx, conflictPath, data, meta.ContentHash); err != nil {
		return err
	}

	s.recordConflict(ctx, path, conflictRel)

	if local.Meta != nil {
		if err := s.upload(ctx, path, local); err != nil {
			s.engine.logger.Warn("conflict: failed to upload local version", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	return nil
}

func (s *session) conflictViaWholeFallback(ctx context.Context, path string) error {
	env, err := s.client.Request(ctx, protocol.KindGetFile, protocol.GetFileRequest{SyncID: s.folder.SyncID, Path: path})
	if err != nil {
		return err
	}

	var resp protocol.FileChunksResponse
	if err := protocol.DecodePayload(env, &resp); err != nil {
		return syncerr.Fatal("conflict", path, err)
	}

	fetch := func(ctx context.Context, hash string) ([]byte, error) {
		chunkEnv, err := s.client.Request(ctx, protocol.KindGetChunk, protocol.GetChunkRequest{ChunkHash: hash})
		if err != nil {
			return nil, err
		}

		var chunkResp protocol.ChunkBytesResponse
		if err := protocol.DecodePayload(chunkEnv, &chunkResp); err != nil {
			return nil, err
		}

		return chunkResp.Bytes, nil
	}

	conflictRel := transfer.ConflictPath(path, s.peer.ID, time.Now())
	conflictPath := s.localFSPath(conflictRel)

	if err := s.receiver().ReceiveChunks(ctx, conflictPath, resp.ChunkHashes, resp.Meta.ContentHash, fetch); err != nil {
		return err
	}

	s.recordConflict(ctx, path, conflictRel)

	return nil
}

// recordConflict appends a best-effort entry to the conflict ledger so
// `driftsync conflicts` can list it; a logging failure here must not fail
// the transfer that already landed on disk.
func (s *session) recordConflict(ctx context.Context, path, conflictRel string) {
	rec := state.ConflictRecord{
		ID:           uuid.NewString(),
		SyncID:       s.folder.SyncID,
		Path:         path,
		ConflictPath: conflictRel,
		PeerID:       s.peer.ID,
		DetectedAt:   time.Now(),
	}

	if err := s.engine.store.RecordConflict(ctx, rec); err != nil {
		s.engine.logger.Warn("failed to record conflict", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Package transfer implements whole-file and chunk-level file transfer,
// conflict sibling naming, and atomic local deletion (spec.md §4.8).
package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/driftsync/driftsync/internal/chunker"
	"github.com/driftsync/driftsync/internal/syncerr"
)

// maxRetries is a retry bound (spec.md §4.8) that nothing in this package
// applies: ReceiveWhole and ReceiveChunks each make a single attempt.
const maxRetries = 3

// ChunkFetcher retrieves one content-addressed chunk's bytes from a peer.
type ChunkFetcher func(ctx context.Context, chunkHash string) ([]byte, error)

// Receiver applies incoming whole-file and chunk-level transfers to the
// local filesystem, staging in a temp file and renaming atomically into
// place.
type Receiver struct {
	blocks *chunker.BlockStore
	logger *slog.Logger

	// chunkConcurrency bounds parallel chunk fetches for one file.
	chunkConcurrency int
}

// NewReceiver constructs a Receiver backed by blocks. chunkConcurrency <= 0
// defaults to 4.
func NewReceiver(blocks *chunker.BlockStore, chunkConcurrency int, logger *slog.Logger) *Receiver {
	if chunkConcurrency <= 0 {
		chunkConcurrency = 4
	}

	return &Receiver{blocks: blocks, chunkConcurrency: chunkConcurrency, logger: logger}
}

// ReceiveWhole writes data to targetPath, verifying it hashes to
// expectedHash before the atomic rename. It makes a single attempt: on a
// hash mismatch it returns an integrity error and leaves targetPath
// untouched, without re-fetching or retrying.
func (r *Receiver) ReceiveWhole(ctx context.Context, targetPath string, data []byte, expectedHash string) error {
	return r.writeAtomic(targetPath, data, expectedHash)
}

// ReceiveChunks fetches any of chunkHashes missing from the local block
// store, then reassembles targetPath by concatenating them in order and
// verifying the result against expectedHash. If any chunk cannot be
// fetched, returns a syncerr.KindIntegrity error so the caller can fall
// back to whole-file transfer (spec.md §4.8).
func (r *Receiver) ReceiveChunks(ctx context.Context, targetPath string, chunkHashes []string, expectedHash string, fetch ChunkFetcher) error {
	if err := r.fetchMissing(ctx, chunkHashes, fetch); err != nil {
		return syncerr.Integrity("receive_chunks", targetPath, err)
	}

	data, err := r.concatenate(chunkHashes)
	if err != nil {
		return syncerr.Integrity("receive_chunks", targetPath, err)
	}

	return r.writeAtomic(targetPath, data, expectedHash)
}

func (r *Receiver) fetchMissing(ctx context.Context, chunkHashes []string, fetch ChunkFetcher) error {
	missing := make([]string, 0, len(chunkHashes))
	for _, h := range chunkHashes {
		exists, err := r.blocks.Exists(h)
		if err != nil {
			return fmt.Errorf("checking chunk %s: %w", h, err)
		}
		if !exists {
			missing = append(missing, h)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.chunkConcurrency)

	for _, h := range missing {
		g.Go(func() error {
			data, err := fetch(ctx, h)
			if err != nil {
				return fmt.Errorf("fetching chunk %s: %w", h, err)
			}

			return r.blocks.Put(h, data)
		})
	}

	return g.Wait()
}

func (r *Receiver) concatenate(chunkHashes []string) ([]byte, error) {
	var buf []byte
	for _, h := range chunkHashes {
		data, err := r.blocks.Get(h)
		if err != nil {
			return nil, fmt.Errorf("reading chunk %s: %w", h, err)
		}

		buf = append(buf, data...)
	}

	return buf, nil
}

// writeAtomic stages data in a sibling temp file, verifies its hash,
// fsyncs, then renames into place (spec.md §4.8).
func (r *Receiver) writeAtomic(targetPath string, data []byte, expectedHash string) error {
	if expectedHash != "" {
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != expectedHash {
			return syncerr.Integrity("write", targetPath, fmt.Errorf("hash mismatch: want %s got %s", expectedHash, got))
		}
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return syncerr.Fatal("write", targetPath, err)
	}

	tmp, err := os.CreateTemp(dir, ".driftsync-*.tmp")
	if err != nil {
		return syncerr.Transient("write", targetPath, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return syncerr.Transient("write", targetPath, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return syncerr.Transient("write", targetPath, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return syncerr.Transient("write", targetPath, err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return syncerr.Transient("write", targetPath, err)
	}

	return nil
}

// ReadForTransfer reads a local file fully, for the sender side of a
// whole-file transfer.
func ReadForTransfer(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return data, nil
}

// DiscardReader drains and discards r, used by callers rejecting an
// over-threshold whole-file body without buffering it.
func DiscardReader(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}

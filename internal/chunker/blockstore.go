package chunker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned by BlockStore.Get when the requested hash is
// absent.
var ErrNotFound = errors.New("chunker: chunk not found")

// defaultCacheSize bounds the number of chunk bodies kept in the in-memory
// LRU cache alongside the on-disk store.
const defaultCacheSize = 1000

// BlockStore is a content-addressed store for chunk bytes, keyed by their
// hex SHA-256 hash, with a two-level fan-out directory layout on disk
// (spec.md §6: blocks/<aa>/<bbbbbb...>) and an in-memory LRU read cache.
type BlockStore struct {
	root   string
	logger *slog.Logger
	cache  *lru.Cache[string, []byte]
}

// NewBlockStore opens (creating if necessary) a block store rooted at dir.
func NewBlockStore(dir string, logger *slog.Logger) (*BlockStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chunker: creating block store root %s: %w", dir, err)
	}

	cache, err := lru.New[string, []byte](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chunker: creating block cache: %w", err)
	}

	return &BlockStore{root: dir, logger: logger, cache: cache}, nil
}

func (s *BlockStore) pathFor(hash string) (string, error) {
	if len(hash) < 3 {
		return "", fmt.Errorf("chunker: malformed chunk hash %q", hash)
	}

	return filepath.Join(s.root, hash[:2], hash[2:]), nil
}

// Put stores bytes under chunkHash, verifying first if the hash already
// exists on disk: a second Put for an existing hash is a no-op once bytes
// are confirmed to match, and an error if they differ (a corrupt or
// colliding write, which must never happen for a correct SHA-256 key).
func (s *BlockStore) Put(chunkHash string, data []byte) error {
	if got := sha256Hex(data); got != chunkHash {
		return fmt.Errorf("chunker: put %s: bytes hash to %s", chunkHash, got)
	}

	dst, err := s.pathFor(chunkHash)
	if err != nil {
		return err
	}

	if existing, err := os.ReadFile(dst); err == nil {
		if !bytes.Equal(existing, data) {
			return fmt.Errorf("chunker: put %s: existing bytes do not match", chunkHash)
		}

		s.cache.Add(chunkHash, data)
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("chunker: reading existing chunk %s: %w", chunkHash, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("chunker: creating fan-out dir for %s: %w", chunkHash, err)
	}

	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("chunker: writing %s: %w", chunkHash, err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chunker: renaming %s into place: %w", chunkHash, err)
	}

	s.cache.Add(chunkHash, data)
	s.logger.Debug("chunk stored", slog.String("hash", chunkHash), slog.Int("bytes", len(data)))

	return nil
}

// Get returns the bytes stored under chunkHash, or ErrNotFound.
func (s *BlockStore) Get(chunkHash string) ([]byte, error) {
	if data, ok := s.cache.Get(chunkHash); ok {
		return data, nil
	}

	src, err := s.pathFor(chunkHash)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chunker: reading %s: %w", chunkHash, err)
	}

	s.cache.Add(chunkHash, data)

	return data, nil
}

// Exists reports whether chunkHash is present, checking the cache before
// touching disk.
func (s *BlockStore) Exists(chunkHash string) (bool, error) {
	if _, ok := s.cache.Get(chunkHash); ok {
		return true, nil
	}

	path, err := s.pathFor(chunkHash)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("chunker: stat %s: %w", chunkHash, err)
	}

	return true, nil
}

// Reader opens a streaming reader for chunkHash without loading the whole
// chunk into memory, used for reassembly of very large chunked files.
func (s *BlockStore) Reader(chunkHash string) (io.ReadCloser, error) {
	if data, ok := s.cache.Get(chunkHash); ok {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	path, err := s.pathFor(chunkHash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chunker: opening %s: %w", chunkHash, err)
	}

	return f, nil
}

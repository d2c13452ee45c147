package peerset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// filePerms restricts peers.json to owner-only read/write, matching
// config's handling of locally trusted state.
const filePerms = 0o600
const dirPerms = 0o700

// persistedPeer is the on-disk shape of one known peer (spec.md §6:
// peer-id, last-seen multiaddresses, sync-ids they share). Multiaddresses
// are opaque strings owned by the transport collaborator.
type persistedPeer struct {
	ID             string   `json:"id"`
	SyncIDs        []string `json:"sync_ids"`
	Multiaddresses []string `json:"multiaddresses,omitempty"`
}

// ToPeer converts a persisted record to a runtime Peer, using the first
// known multiaddress as the dial address. RegisteredAt is left zero; the
// caller refreshes it once the peer's identity handshake completes.
func (p persistedPeer) ToPeer() Peer {
	var addr string
	if len(p.Multiaddresses) > 0 {
		addr = p.Multiaddresses[0]
	}

	return Peer{ID: p.ID, SyncIDs: p.SyncIDs, Address: addr}
}

// FromPeer converts a runtime Peer to its persisted form.
func FromPeer(p Peer) persistedPeer {
	var addrs []string
	if p.Address != "" {
		addrs = []string{p.Address}
	}

	return persistedPeer{ID: p.ID, SyncIDs: p.SyncIDs, Multiaddresses: addrs}
}

type persistedFile struct {
	Peers []persistedPeer `json:"peers"`
}

// Load reads known peers from path. Returns an empty slice if the file
// does not exist.
func Load(path string) ([]persistedPeer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peerset: reading %s: %w", path, err)
	}

	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("peerset: decoding %s: %w", path, err)
	}

	return pf.Peers, nil
}

// Save writes known peers to path atomically (temp file + rename, same
// directory to guarantee same filesystem for rename(2)).
func Save(path string, peers []persistedPeer) error {
	pf := persistedFile{Peers: peers}

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("peerset: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("peerset: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".peers-*.tmp")
	if err != nil {
		return fmt.Errorf("peerset: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("peerset: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("peerset: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("peerset: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("peerset: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("peerset: renaming: %w", err)
	}

	success = true

	return nil
}

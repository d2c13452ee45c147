package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// peerIDFilePermissions matches the standard config file permissions.
const peerIDFilePermissions = 0o600

// localPeerID returns this device's peer identity, generating and
// persisting a new one under dataDir on first use. A real deployment
// derives the peer-id from a keypair the external identity collaborator
// manages (spec.md §1 Non-goals); this stands in with a persisted
// random identifier so the engine always has a stable key for vector
// clocks and conflict filenames.
func localPeerID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "peer_id")

	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(id+"\n"), peerIDFilePermissions); err != nil {
		return "", fmt.Errorf("writing peer_id: %w", err)
	}

	return id, nil
}

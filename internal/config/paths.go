package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "driftsync"

// Config file name.
const configFileName = "config.toml"

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/driftsync). On
// macOS, uses ~/Library/Application Support/driftsync. Other platforms fall
// back to ~/.config/driftsync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for application
// data: state/states.db, blocks/, conflicts/, logs/ (spec.md §6).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDataDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func linuxDataDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// StateDBPath returns the path to the state database shared by every
// sync-folder on this device. Each row is scoped by (sync_id, path), so one
// database serves every folder rather than one per sync-id (spec.md §6
// state/<syncId>/states.json collapsed into a single SQLite file — the
// abstract per-sync-id snapshot becomes a query scope, not a separate file,
// per the teacher's SQLite-backed store precedent).
func StateDBPath(dataDir string) string {
	return filepath.Join(dataDir, "state", "states.db")
}

// BlockStoreDir returns the content-addressed block store root
// (spec.md §6: blocks/<aa>/<bbbbbb...>).
func BlockStoreDir(dataDir string) string {
	return filepath.Join(dataDir, "blocks")
}

// ConflictsPath returns the per-sync-id conflicts file path (spec.md §6).
func ConflictsPath(dataDir, syncID string) string {
	return filepath.Join(dataDir, "conflicts", syncID+".json")
}

// SyncLogPath returns the append-only sync log path (spec.md §6).
func SyncLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "sync.json")
}

// PIDFilePath returns the path to the daemon PID file.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, "driftsync.pid")
}

// PeersPath returns the path to the known-peers file (spec.md §6 peers.json).
func PeersPath(dataDir string) string {
	return filepath.Join(dataDir, "peers.json")
}

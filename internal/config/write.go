package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// configFilePermissions matches the standard config file permissions (owner
// rw, group/other r).
const configFilePermissions = 0o644

// configDirPermissions matches the standard directory permissions (owner
// rwx, group/other rx).
const configDirPermissions = 0o755

// configTemplateHeader is written once, on first Save to a non-existent
// file, documenting every global knob as a comment (mirrors the teacher's
// write.go convention of a self-documenting template).
const configTemplateHeader = `# driftsync configuration
#
# Add a sync folder with a [[folder]] table:
#
#   [[folder]]
#   sync_id = "my-notes-abc123"
#   path = "/home/me/Notes"
#   mode = "two_way"          # two_way | upload_only | download_only
#   exclude = ["*.tmp", "node_modules/"]
#   enabled = true
#
# Global sections below override built-in defaults for every folder.
`

// Save writes cfg to path as TOML, creating parent directories as needed.
// The template header is prepended only when the file does not already
// exist, so re-saves never duplicate it.
func Save(cfg *Config, path string, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPermissions); err != nil {
		return fmt.Errorf("config: creating directory for %s: %w", path, err)
	}

	prependHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		prependHeader = true
	}

	var buf bytes.Buffer
	if prependHeader {
		buf.WriteString(configTemplateHeader)
		buf.WriteString("\n")
	}

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config: encoding %s: %w", path, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), configFilePermissions); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}

	logger.Info("configuration saved", slog.String("path", path))

	return nil
}

// AddFolder appends a new folder to cfg, rejecting a duplicate sync-id. It
// does not persist — call Save afterward.
func AddFolder(cfg *Config, folder Folder) error {
	if _, exists := FindFolder(cfg, folder.SyncID); exists {
		return fmt.Errorf("config: sync_id %q already configured", folder.SyncID)
	}

	if folder.Mode == "" {
		folder.Mode = ModeTwoWay
	}
	folder.Enabled = true

	cfg.Folders = append(cfg.Folders, folder)

	return nil
}

// RemoveFolder removes the folder with the given sync-id. Returns false if
// no such folder was configured.
func RemoveFolder(cfg *Config, syncID string) bool {
	for i := range cfg.Folders {
		if cfg.Folders[i].SyncID == syncID {
			cfg.Folders = append(cfg.Folders[:i], cfg.Folders[i+1:]...)
			return true
		}
	}

	return false
}

// SetFolderEnabled flips the enabled flag for the given sync-id. Returns
// false if no such folder was configured.
func SetFolderEnabled(cfg *Config, syncID string, enabled bool) bool {
	for i := range cfg.Folders {
		if cfg.Folders[i].SyncID == syncID {
			cfg.Folders[i].Enabled = enabled
			return true
		}
	}

	return false
}

// PauseFolder disables the given sync-id, optionally scheduling automatic
// resume at until (RFC3339; empty means paused indefinitely). Returns
// false if no such folder was configured.
func PauseFolder(cfg *Config, syncID, until string) bool {
	for i := range cfg.Folders {
		if cfg.Folders[i].SyncID == syncID {
			cfg.Folders[i].Enabled = false
			cfg.Folders[i].PausedUntil = until
			return true
		}
	}

	return false
}

// ResumeFolder re-enables the given sync-id and clears any scheduled
// auto-resume. Returns false if no such folder was configured.
func ResumeFolder(cfg *Config, syncID string) bool {
	for i := range cfg.Folders {
		if cfg.Folders[i].SyncID == syncID {
			cfg.Folders[i].Enabled = true
			cfg.Folders[i].PausedUntil = ""
			return true
		}
	}

	return false
}

// DueForAutoResume returns the sync-ids of disabled folders whose
// PausedUntil has passed as of now.
func DueForAutoResume(cfg *Config, now time.Time) []string {
	var due []string

	for _, f := range cfg.Folders {
		if f.Enabled || f.PausedUntil == "" {
			continue
		}

		until, err := time.Parse(time.RFC3339, f.PausedUntil)
		if err != nil || now.Before(until) {
			continue
		}

		due = append(due, f.SyncID)
	}

	return due
}

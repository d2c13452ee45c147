package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and decodes the TOML config file at path, starting from
// DefaultConfig() so unset fields keep their defaults, then validates the
// result. Mirrors the teacher's load.go four-layer approach (defaults ->
// file -> env -> CLI flags), minus the CLI-flag layer which callers in
// cmd/driftsync apply themselves after Load returns.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	applyEnvOverrides(cfg, ReadEnvOverrides())

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	logger.Info("configuration loaded", slog.String("path", path), slog.Int("folders", len(cfg.Folders)))

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns DefaultConfig() (with env
// overrides applied) when path does not exist, instead of erroring — the
// zero-config bootstrap path used by `driftsync config show` before any
// folder has been added.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg, ReadEnvOverrides())
		logger.Debug("no config file found, using defaults", slog.String("path", path))

		return cfg, nil
	}

	return Load(path, logger)
}

// applyEnvOverrides merges environment-derived overrides into cfg.
// SYNC_MDNS_ENABLED is read but intentionally not applied to any Config
// field — it is a hint for the external LAN-discovery collaborator, and
// the core is unaffected by it (spec.md §6).
func applyEnvOverrides(cfg *Config, env EnvOverrides) {
	if env.BlockThresholdBytes != nil {
		cfg.Transfer.BlockThreshold = fmt.Sprintf("%d", *env.BlockThresholdBytes)
	}
}

// Resolve merges global config sections into a single folder, producing the
// ResolvedFolder the engine consumes. There is currently no per-folder
// override layer beyond the folder's own fields (sync_id, path, mode,
// exclude) — global sections apply uniformly, mirroring the teacher's
// per-drive override resolution but simpler since driftsync has no
// per-drive transfer/safety overrides in spec.md.
func Resolve(cfg *Config, folder Folder) ResolvedFolder {
	return ResolvedFolder{
		Folder:   folder,
		Chunker:  cfg.Chunker,
		Transfer: cfg.Transfer,
		Safety:   cfg.Safety,
		Sync:     cfg.Sync,
		Logging:  cfg.Logging,
		Network:  cfg.Network,
	}
}

// FindFolder returns the Folder with the given sync-id, or false if absent.
func FindFolder(cfg *Config, syncID string) (Folder, bool) {
	for _, f := range cfg.Folders {
		if f.SyncID == syncID {
			return f, true
		}
	}

	return Folder{}, false
}

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ShowFormat selects the rendering used by Show.
type ShowFormat string

// Supported Show formats.
const (
	ShowFormatText ShowFormat = "text"
	ShowFormatJSON ShowFormat = "json"
)

// Show renders cfg to w in the requested format. Text format is a flat,
// human-scannable summary; JSON format is the full struct, indented.
func Show(cfg *Config, w io.Writer, format ShowFormat) error {
	switch format {
	case ShowFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case ShowFormatText, "":
		return showText(cfg, w)
	default:
		return fmt.Errorf("config: unknown show format %q", format)
	}
}

func showText(cfg *Config, w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "folders (%d):\n", len(cfg.Folders))
	for _, f := range cfg.Folders {
		state := "enabled"
		if !f.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "  %s  %s  mode=%s  %s\n", f.SyncID, f.Path, f.Mode, state)
		if len(f.Exclude) > 0 {
			fmt.Fprintf(&b, "    exclude: %s\n", strings.Join(f.Exclude, ", "))
		}
	}

	fmt.Fprintf(&b, "\nchunker: min=%s avg=%s max=%s\n", cfg.Chunker.MinSize, cfg.Chunker.AvgSize, cfg.Chunker.MaxSize)
	fmt.Fprintf(&b, "transfer: block_threshold=%s max_concurrent=%d chunk_fetch_concurrency=%d max_retries=%d\n",
		cfg.Transfer.BlockThreshold, cfg.Transfer.MaxConcurrent, cfg.Transfer.ChunkFetchConcurrency, cfg.Transfer.MaxRetries)
	fmt.Fprintf(&b, "safety: big_delete_min_items=%d big_delete_max_count=%d big_delete_max_percent=%.1f tombstone_retention_days=%d\n",
		cfg.Safety.BigDeleteMinItems, cfg.Safety.BigDeleteMaxCount, cfg.Safety.BigDeleteMaxPercent, cfg.Safety.TombstoneRetentionDays)
	fmt.Fprintf(&b, "sync: session_cooldown=%s local_event_cooldown=%s peer_startup_delay=%s debounce_window=%s session_timeout=%s\n",
		cfg.Sync.SessionCooldown, cfg.Sync.LocalEventCooldown, cfg.Sync.PeerStartupDelay, cfg.Sync.DebounceWindow, cfg.Sync.SessionTimeout)
	fmt.Fprintf(&b, "logging: level=%s format=%s file=%s retention_days=%d\n",
		cfg.Logging.LogLevel, cfg.Logging.LogFormat, cfg.Logging.LogFile, cfg.Logging.LogRetentionDays)

	_, err := io.WriteString(w, b.String())
	return err
}

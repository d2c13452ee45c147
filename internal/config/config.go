// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for driftsync.
package config

// Config is the top-level configuration structure. It holds global defaults
// plus a list of sync-folder definitions, one per sync-id this device
// participates in.
type Config struct {
	Folders []Folder        `toml:"folder"`
	Chunker ChunkerConfig   `toml:"chunker"`
	Transfer TransferConfig `toml:"transfer"`
	Safety  SafetyConfig    `toml:"safety"`
	Sync    SyncConfig      `toml:"sync"`
	Logging LoggingConfig   `toml:"logging"`
	Network NetworkConfig   `toml:"network"`
}

// SyncMode controls which sides of a sync-folder are active, mirroring
// spec.md §3's SyncFolder.mode.
type SyncMode string

// Sync direction modes (spec.md §3).
const (
	ModeTwoWay       SyncMode = "two_way"
	ModeUploadOnly   SyncMode = "upload_only"
	ModeDownloadOnly SyncMode = "download_only"
)

// Folder is one [[folder]] TOML table: a local directory paired by sync-id
// (spec.md §3 SyncFolder).
type Folder struct {
	SyncID  string   `toml:"sync_id"`
	Path    string   `toml:"path"`
	Mode    SyncMode `toml:"mode"`
	Exclude []string `toml:"exclude"`
	Enabled bool     `toml:"enabled"`
	// PausedUntil is an RFC3339 timestamp past which a disabled folder
	// should be automatically re-enabled (the optional duration argument of
	// cmd/driftsync pause).
	// Empty means either not paused, or paused indefinitely.
	PausedUntil string `toml:"paused_until,omitempty"`
}

// ChunkerConfig controls FastCDC parameters (spec.md §4.1, §6).
type ChunkerConfig struct {
	MinSize string `toml:"min_size"`
	AvgSize string `toml:"avg_size"`
	MaxSize string `toml:"max_size"`
}

// TransferConfig controls transfer concurrency, thresholds, and timeouts
// (spec.md §4.8, §5).
type TransferConfig struct {
	BlockThreshold      string `toml:"block_threshold"`
	MaxConcurrent       int    `toml:"max_concurrent"`
	ChunkFetchConcurrency int  `toml:"chunk_fetch_concurrency"`
	WholeFileTimeout    string `toml:"whole_file_timeout"`
	MetadataTimeout     string `toml:"metadata_timeout"`
	ChunkTimeout        string `toml:"chunk_timeout"`
	MaxRetries          int    `toml:"max_retries"`
}

// SafetyConfig controls protective thresholds (spec.md §9 supplement:
// big-delete protection, grounded on the teacher's planner safety gate).
type SafetyConfig struct {
	BigDeleteMinItems   int     `toml:"big_delete_min_items"`
	BigDeleteMaxCount   int     `toml:"big_delete_max_count"`
	BigDeleteMaxPercent float64 `toml:"big_delete_max_percent"`
	TombstoneRetentionDays int  `toml:"tombstone_retention_days"`
}

// SyncConfig controls orchestrator-level timing (spec.md §4.7).
type SyncConfig struct {
	SessionCooldown      string `toml:"session_cooldown"`
	LocalEventCooldown    string `toml:"local_event_cooldown"`
	PeerStartupDelay      string `toml:"peer_startup_delay"`
	DebounceWindow        string `toml:"debounce_window"`
	StabilitySampleDelay  string `toml:"stability_sample_delay"`
	SessionTimeout        string `toml:"session_timeout"`
	BackoffAfterFailure   string `toml:"backoff_after_failure"`
}

// LoggingConfig controls log output behavior (teacher's LoggingConfig,
// unchanged shape — ambient concern).
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogFormat        string `toml:"log_format"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// NetworkConfig controls the transport collaborator's timeouts and the
// local listen address for inbound peer connections.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	ListenAddr     string `toml:"listen_addr"`
	ListenPath     string `toml:"listen_path"`
}

// ResolvedFolder is a Folder with effective config sections merged in after
// the default -> file -> env -> flag override chain, the final product
// consumed by the engine (mirrors the teacher's ResolvedDrive).
type ResolvedFolder struct {
	Folder
	Chunker  ChunkerConfig
	Transfer TransferConfig
	Safety   SafetyConfig
	Sync     SyncConfig
	Logging  LoggingConfig
	Network  NetworkConfig
}

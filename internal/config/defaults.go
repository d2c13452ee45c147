package config

// Default values for configuration options — the "layer 0" of the
// default -> file -> env -> flag override chain (mirrors the teacher's
// defaults.go). Sizes and durations chosen to match spec.md §6's wire
// constants exactly, since the chunker defaults are bit-exact across peers.
const (
	defaultMinSize               = "4KiB"
	defaultAvgSize               = "16KiB"
	defaultMaxSize               = "64KiB"
	defaultBlockThreshold         = "1MiB"
	defaultMaxConcurrentTransfers = 3
	defaultChunkFetchConcurrency  = 4
	defaultWholeFileTimeout       = "180s"
	defaultMetadataTimeout        = "90s"
	defaultChunkTimeout           = "60s"
	defaultMaxRetries             = 3
	defaultBigDeleteMinItems      = 10
	defaultBigDeleteMaxCount      = 1000
	defaultBigDeleteMaxPercent    = 50.0
	defaultTombstoneRetentionDays = 30
	defaultSessionCooldown        = "30s"
	defaultLocalEventCooldown     = "5s"
	defaultPeerStartupDelay       = "2500ms"
	defaultDebounceWindow         = "2s"
	defaultStabilitySampleDelay   = "3s"
	defaultSessionTimeout         = "10m"
	defaultBackoffAfterFailure    = "60s"
	defaultLogLevel               = "info"
	defaultLogFormat              = "auto"
	defaultLogRetentionDays       = 30
	defaultConnectTimeout         = "10s"
	defaultDataTimeout            = "60s"
	defaultListenAddr             = ":4010"
	defaultListenPath             = "/driftsync/v1"
)

// DefaultConfig returns a Config populated with all default values. Used both
// as the starting point for TOML decoding (so unset fields retain defaults)
// and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Chunker:  defaultChunkerConfig(),
		Transfer: defaultTransferConfig(),
		Safety:   defaultSafetyConfig(),
		Sync:     defaultSyncConfig(),
		Logging:  defaultLoggingConfig(),
		Network:  defaultNetworkConfig(),
		Folders:  nil,
	}
}

func defaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MinSize: defaultMinSize,
		AvgSize: defaultAvgSize,
		MaxSize: defaultMaxSize,
	}
}

func defaultTransferConfig() TransferConfig {
	return TransferConfig{
		BlockThreshold:        defaultBlockThreshold,
		MaxConcurrent:         defaultMaxConcurrentTransfers,
		ChunkFetchConcurrency: defaultChunkFetchConcurrency,
		WholeFileTimeout:      defaultWholeFileTimeout,
		MetadataTimeout:       defaultMetadataTimeout,
		ChunkTimeout:          defaultChunkTimeout,
		MaxRetries:            defaultMaxRetries,
	}
}

func defaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		BigDeleteMinItems:      defaultBigDeleteMinItems,
		BigDeleteMaxCount:      defaultBigDeleteMaxCount,
		BigDeleteMaxPercent:    defaultBigDeleteMaxPercent,
		TombstoneRetentionDays: defaultTombstoneRetentionDays,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		SessionCooldown:      defaultSessionCooldown,
		LocalEventCooldown:   defaultLocalEventCooldown,
		PeerStartupDelay:     defaultPeerStartupDelay,
		DebounceWindow:       defaultDebounceWindow,
		StabilitySampleDelay: defaultStabilitySampleDelay,
		SessionTimeout:       defaultSessionTimeout,
		BackoffAfterFailure:  defaultBackoffAfterFailure,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
		LogRetentionDays: defaultLogRetentionDays,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
		ListenAddr:     defaultListenAddr,
		ListenPath:     defaultListenPath,
	}
}

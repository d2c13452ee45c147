package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

// Validation range constants.
const (
	minSyncIDLen = 8
	maxSyncIDLen = 64
	minPercent   = 0
	maxPercent   = 100
)

// syncIDPattern enforces spec.md §6: ASCII, length 8-64, alphanumeric and
// '-', '_', case-sensitive.
var syncIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// Validate checks all configuration values and returns all errors found. It
// accumulates every error instead of stopping at the first, matching the
// teacher's validate.go so users see a complete report in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateFolders(cfg.Folders)...)
	errs = append(errs, validateChunker(&cfg.Chunker)...)
	errs = append(errs, validateTransfer(&cfg.Transfer)...)
	errs = append(errs, validateSafety(&cfg.Safety)...)

	return errors.Join(errs...)
}

func validateFolders(folders []Folder) []error {
	var errs []error

	seen := make(map[string]bool, len(folders))

	for i := range folders {
		f := &folders[i]

		if !syncIDPattern.MatchString(f.SyncID) {
			errs = append(errs, fmt.Errorf("folder[%d]: sync_id %q must be 8-64 ASCII alphanumeric, '-' or '_' characters", i, f.SyncID))
		}

		if seen[f.SyncID] {
			errs = append(errs, fmt.Errorf("folder[%d]: duplicate sync_id %q", i, f.SyncID))
		}
		seen[f.SyncID] = true

		if f.Path == "" {
			errs = append(errs, fmt.Errorf("folder[%d]: path is required", i))
		} else if !filepath.IsAbs(f.Path) {
			errs = append(errs, fmt.Errorf("folder[%d]: path %q must be absolute", i, f.Path))
		}

		switch f.Mode {
		case ModeTwoWay, ModeUploadOnly, ModeDownloadOnly, "":
		default:
			errs = append(errs, fmt.Errorf("folder[%d]: invalid mode %q", i, f.Mode))
		}
	}

	return errs
}

func validateChunker(c *ChunkerConfig) []error {
	var errs []error

	minB, errMin := ParseSize(c.MinSize)
	avgB, errAvg := ParseSize(c.AvgSize)
	maxB, errMax := ParseSize(c.MaxSize)

	for _, e := range []error{errMin, errAvg, errMax} {
		if e != nil {
			errs = append(errs, fmt.Errorf("chunker: %w", e))
		}
	}

	if errMin == nil && errAvg == nil && errMax == nil {
		if !(minB > 0 && minB <= avgB && avgB <= maxB) {
			errs = append(errs, fmt.Errorf("chunker: require 0 < min_size (%d) <= avg_size (%d) <= max_size (%d)", minB, avgB, maxB))
		}
	}

	return errs
}

func validateTransfer(t *TransferConfig) []error {
	var errs []error

	if _, err := ParseSize(t.BlockThreshold); err != nil {
		errs = append(errs, fmt.Errorf("transfer: block_threshold: %w", err))
	}

	if t.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("transfer: max_concurrent must be positive, got %d", t.MaxConcurrent))
	}

	if t.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("transfer: max_retries must be non-negative, got %d", t.MaxRetries))
	}

	return errs
}

func validateSafety(s *SafetyConfig) []error {
	var errs []error

	if s.BigDeleteMaxPercent < minPercent || s.BigDeleteMaxPercent > maxPercent {
		errs = append(errs, fmt.Errorf("safety: big_delete_max_percent must be in [0,100], got %v", s.BigDeleteMaxPercent))
	}

	if s.TombstoneRetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("safety: tombstone_retention_days must be positive, got %d", s.TombstoneRetentionDays))
	}

	return errs
}

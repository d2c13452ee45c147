package main

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <sync-id> [duration]",
		Short: "Pause syncing for a folder",
		Long: `Pause syncing for the sync-folder identified by sync-id. An optional
duration argument (e.g. "2h", "30m", "1d") schedules automatic resume.

Without a duration, the folder stays paused until manually resumed. If a
sync --watch daemon is running, it receives a SIGHUP to pick up the change.

Examples:
  driftsync pause my-notes-abc123
  driftsync pause my-notes-abc123 2h
  driftsync pause my-notes-abc123 1d`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPause,
	}
}

func runPause(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	syncID := args[0]

	if _, exists := config.FindFolder(cc.Cfg, syncID); !exists {
		return fmt.Errorf("sync_id %q not found in config", syncID)
	}

	until := ""
	if len(args) > 1 {
		duration, err := parseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[1], err)
		}

		until = time.Now().Add(duration).Format(time.RFC3339)
	}

	config.PauseFolder(cc.Cfg, syncID, until)

	if err := config.Save(cc.Cfg, cc.Flags.ConfigPath, cc.Logger); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if until != "" {
		cc.Statusf("Folder %s paused until %s\n", syncID, until)
	} else {
		cc.Statusf("Folder %s paused\n", syncID)
	}

	notifyDaemon(cc.Flags.Quiet)

	return nil
}

// notifyDaemon attempts to send SIGHUP to a running sync --watch daemon.
// Non-fatal: if no daemon is running, prints a note instead.
func notifyDaemon(quiet bool) {
	pidPath := config.PIDFilePath(config.DefaultDataDir())

	if err := sendSIGHUP(pidPath); err != nil {
		statusf(quiet, "Note: %v — changes take effect on next daemon start\n", err)
	} else {
		statusf(quiet, "Notified running daemon to reload config\n")
	}
}

// hoursPerDay is used to convert day durations to hours.
const hoursPerDay = 24

// durationPattern matches durations like "30m", "2h", "1d", "1h30m".
var durationPattern = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// parseDuration parses a human-friendly duration string. Supports Go duration
// syntax (e.g., "2h30m") plus a "d" suffix for days (converted to 24h).
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}

		return d, nil
	}

	if !durationPattern.MatchString(s) || s == "" {
		return 0, fmt.Errorf("expected format like 30m, 2h, 1d, or 1h30m")
	}

	var total time.Duration

	re := regexp.MustCompile(`(\d+)([dhms])`)
	for _, match := range re.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", match[1], err)
		}

		switch match[2] {
		case "d":
			total += time.Duration(n) * hoursPerDay * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}

	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}

	return total, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [sync-id]",
		Short: "Resume syncing for a paused folder",
		Long: `Resume syncing for the sync-folder identified by sync-id. Without an
argument, resumes ALL paused folders.

If a sync --watch daemon is running, it receives a SIGHUP to pick up the
change.

Examples:
  driftsync resume my-notes-abc123
  driftsync resume`,
		Args: cobra.MaximumNArgs(1),
		RunE: runResume,
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	if len(args) == 1 {
		return resumeSingleFolder(cc, args[0])
	}

	return resumeAllFolders(cc)
}

func resumeSingleFolder(cc *CLIContext, syncID string) error {
	folder, exists := config.FindFolder(cc.Cfg, syncID)
	if !exists {
		return fmt.Errorf("sync_id %q not found in config", syncID)
	}

	if folder.Enabled {
		cc.Statusf("Folder %s is not paused\n", syncID)
		return nil
	}

	config.ResumeFolder(cc.Cfg, syncID)

	if err := config.Save(cc.Cfg, cc.Flags.ConfigPath, cc.Logger); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	cc.Statusf("Folder %s resumed\n", syncID)
	notifyDaemon(cc.Flags.Quiet)

	return nil
}

func resumeAllFolders(cc *CLIContext) error {
	if len(cc.Cfg.Folders) == 0 {
		return fmt.Errorf("no folders configured")
	}

	resumed := 0

	for _, f := range cc.Cfg.Folders {
		if f.Enabled {
			continue
		}

		config.ResumeFolder(cc.Cfg, f.SyncID)
		cc.Statusf("Folder %s resumed\n", f.SyncID)
		resumed++
	}

	if resumed == 0 {
		cc.Statusf("No paused folders found\n")
		return nil
	}

	if err := config.Save(cc.Cfg, cc.Flags.ConfigPath, cc.Logger); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	notifyDaemon(cc.Flags.Quiet)

	return nil
}

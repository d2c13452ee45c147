package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/state"
)

// Conflict resolution strategies.
const (
	resolutionKeepLocal  = "keep_local"
	resolutionKeepRemote = "keep_remote"
	resolutionKeepBoth   = "keep_both"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [id-or-path]",
		Short: "Resolve sync conflicts",
		Long: `Resolve sync conflicts written as sibling files.

Strategies:
  --keep-local   discard the conflict sibling, keep the local version
  --keep-remote  overwrite the local file with the conflict sibling's bytes
  --keep-both    leave both files as-is, only mark the conflict resolved

Use --all to resolve every unresolved conflict with the chosen strategy.
Without --all, an exact conflict ID, an ID prefix, or a path is required.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runResolve,
	}

	cmd.Flags().Bool("keep-local", false, "discard the conflict sibling, keep the local version")
	cmd.Flags().Bool("keep-remote", false, "overwrite local with the conflict sibling's bytes")
	cmd.Flags().Bool("keep-both", false, "leave both versions as-is")
	cmd.Flags().Bool("all", false, "resolve all unresolved conflicts")
	cmd.Flags().Bool("dry-run", false, "preview resolution without executing")

	cmd.MarkFlagsMutuallyExclusive("keep-local", "keep-remote", "keep-both")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	resolution, err := resolveStrategy(cmd)
	if err != nil {
		return err
	}

	all := cmd.Flags().Changed("all")

	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	if !all && len(args) == 0 {
		return fmt.Errorf("specify a conflict ID or path, or use --all to resolve every conflict")
	}

	if all && len(args) > 0 {
		return fmt.Errorf("--all and a specific conflict argument are mutually exclusive")
	}

	ctx := cmd.Context()
	dbPath := config.StateDBPath(config.DefaultDataDir())

	store, err := state.Open(ctx, dbPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer store.Close()

	conflicts, err := store.ListConflicts(ctx, "")
	if err != nil {
		return err
	}

	var targets []state.ConflictRecord

	if all {
		targets = conflicts
	} else {
		target, err := findConflict(conflicts, args[0])
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("conflict not found: %s", args[0])
		}

		targets = []state.ConflictRecord{*target}
	}

	if len(targets) == 0 {
		fmt.Println("No unresolved conflicts.")
		return nil
	}

	for _, c := range targets {
		if dryRun {
			cc.Statusf("Would resolve %s (%s) as %s\n", c.Path, truncateID(c.ID), resolution)
			continue
		}

		if err := applyResolution(ctx, store, c, resolution); err != nil {
			return fmt.Errorf("resolving %s: %w", c.Path, err)
		}

		cc.Statusf("Resolved %s as %s\n", c.Path, resolution)
	}

	return nil
}

func resolveStrategy(cmd *cobra.Command) (string, error) {
	switch {
	case cmd.Flags().Changed("keep-local"):
		return resolutionKeepLocal, nil
	case cmd.Flags().Changed("keep-remote"):
		return resolutionKeepRemote, nil
	case cmd.Flags().Changed("keep-both"):
		return resolutionKeepBoth, nil
	default:
		return "", fmt.Errorf("specify a resolution strategy: --keep-local, --keep-remote, or --keep-both")
	}
}

// applyResolution carries out the chosen strategy on the filesystem, then
// marks the conflict resolved in the ledger.
func applyResolution(ctx context.Context, store *state.Store, c state.ConflictRecord, resolution string) error {
	switch resolution {
	case resolutionKeepLocal:
		if err := os.Remove(c.ConflictPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing conflict sibling %s: %w", c.ConflictPath, err)
		}
	case resolutionKeepRemote:
		if err := replaceWithConflictSibling(c); err != nil {
			return err
		}
	case resolutionKeepBoth:
		// both files already exist on disk — nothing to change.
	default:
		return fmt.Errorf("unknown resolution strategy %q", resolution)
	}

	resolved, err := store.ResolveConflict(ctx, c.ID)
	if err != nil {
		return err
	}

	if !resolved {
		return fmt.Errorf("conflict %s no longer exists", c.ID)
	}

	return nil
}

// replaceWithConflictSibling overwrites the original path with the conflict
// sibling's bytes, then removes the sibling.
func replaceWithConflictSibling(c state.ConflictRecord) error {
	data, err := os.ReadFile(c.ConflictPath)
	if err != nil {
		return fmt.Errorf("reading conflict sibling %s: %w", c.ConflictPath, err)
	}

	if err := os.WriteFile(c.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.Path, err)
	}

	if err := os.Remove(c.ConflictPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing conflict sibling %s: %w", c.ConflictPath, err)
	}

	return nil
}

// errAmbiguousPrefix is returned when a conflict ID prefix matches multiple
// conflicts and the user needs to provide a longer prefix.
var errAmbiguousPrefix = errors.New("ambiguous conflict ID prefix — provide more characters")

// findConflict searches a conflict list by exact ID, exact path, or ID prefix.
func findConflict(conflicts []state.ConflictRecord, idOrPath string) (*state.ConflictRecord, error) {
	for i := range conflicts {
		c := &conflicts[i]
		if c.ID == idOrPath || c.Path == idOrPath {
			return c, nil
		}
	}

	if idOrPath == "" {
		return nil, nil
	}

	var match *state.ConflictRecord

	for i := range conflicts {
		c := &conflicts[i]
		if len(c.ID) >= len(idOrPath) && c.ID[:len(idOrPath)] == idOrPath {
			if match != nil {
				return nil, fmt.Errorf("%w: %q", errAmbiguousPrefix, idOrPath)
			}

			match = c
		}
	}

	return match, nil
}

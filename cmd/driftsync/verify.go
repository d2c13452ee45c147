package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/chunker"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/monitor"
	"github.com/driftsync/driftsync/internal/state"
)

// errVerifyMismatch is the sentinel returned by runVerify when the local
// tree diverges from the recorded state, so main can set a non-zero exit
// code without printing the usual "Error:" noise.
var errVerifyMismatch = errors.New("verification found mismatches")

func newVerifyCmd() *cobra.Command {
	var syncID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify local files against recorded sync state",
		Long: `Perform a full-tree hash comparison of local files against the state
database, scoped to one folder or every configured folder.

Reports files present locally but missing from state, files recorded but
missing locally, and content-hash mismatches. Exit code 0 if everything
matches; exit code 1 otherwise.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, syncID)
		},
	}

	cmd.Flags().StringVar(&syncID, "sync-id", "", "limit to one sync-folder (default: all)")

	return cmd
}

// verifyMismatch describes one path where the local tree disagrees with
// the state database.
type verifyMismatch struct {
	SyncID string `json:"sync_id"`
	Path   string `json:"path"`
	Status string `json:"status"`
	Want   string `json:"want,omitempty"`
	Got    string `json:"got,omitempty"`
}

// Mismatch status values.
const (
	statusUntracked   = "untracked"   // on disk, not in state
	statusMissing     = "missing"     // in state, not on disk
	statusHashMismatch = "hash_mismatch"
)

type verifyReport struct {
	Verified   int              `json:"verified"`
	Mismatches []verifyMismatch `json:"mismatches"`
}

func runVerify(cmd *cobra.Command, syncID string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	folders, err := selectFolders(cc.Cfg, folderArgs(syncID))
	if err != nil {
		return err
	}

	if len(folders) == 0 {
		fmt.Println("No folders to verify.")
		return nil
	}

	dbPath := config.StateDBPath(config.DefaultDataDir())

	store, err := state.Open(ctx, dbPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer store.Close()

	report := verifyReport{}

	for _, folder := range folders {
		if err := verifyFolder(ctx, store, folder, &report); err != nil {
			return fmt.Errorf("verifying %s: %w", folder.SyncID, err)
		}
	}

	if cc.Flags.JSON {
		if err := printVerifyJSON(report); err != nil {
			return err
		}
	} else {
		printVerifyTable(report)
	}

	if len(report.Mismatches) > 0 {
		return errVerifyMismatch
	}

	return nil
}

func folderArgs(syncID string) []string {
	if syncID == "" {
		return nil
	}

	return []string{syncID}
}

// verifyFolder walks folder.Path, hashing every non-excluded file and
// comparing it against the recorded state, then checks for state entries
// that have no corresponding file on disk.
func verifyFolder(ctx context.Context, store *state.Store, folder config.ResolvedFolder, report *verifyReport) error {
	recorded, err := store.AllStates(ctx, folder.SyncID)
	if err != nil {
		return err
	}

	exclude := monitor.NewExcludeFilter(folder.Exclude)
	seen := make(map[string]bool, len(recorded))

	walkErr := filepath.WalkDir(folder.Path, func(fsPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(folder.Path, fsPath)
		if relErr != nil || rel == "." {
			return nil
		}

		if exclude.Excluded(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		seen[rel] = true

		fsState, ok := recorded[rel]
		if !ok || fsState.IsDeleted() || fsState.Meta == nil {
			report.Mismatches = append(report.Mismatches, verifyMismatch{SyncID: folder.SyncID, Path: rel, Status: statusUntracked})
			return nil
		}

		hash, hashErr := hashFile(fsPath)
		if hashErr != nil {
			return fmt.Errorf("hashing %s: %w", fsPath, hashErr)
		}

		if hash != fsState.Meta.ContentHash {
			report.Mismatches = append(report.Mismatches, verifyMismatch{
				SyncID: folder.SyncID, Path: rel, Status: statusHashMismatch,
				Want: fsState.Meta.ContentHash, Got: hash,
			})
			return nil
		}

		report.Verified++

		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	for path, fsState := range recorded {
		if seen[path] || fsState.IsDeleted() {
			continue
		}

		report.Mismatches = append(report.Mismatches, verifyMismatch{SyncID: folder.SyncID, Path: path, Status: statusMissing})
	}

	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return chunker.HashReader(f)
}

func printVerifyJSON(report verifyReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printVerifyTable(report verifyReport) {
	fmt.Printf("Verified: %d files\n", report.Verified)

	if len(report.Mismatches) == 0 {
		fmt.Println("All files verified successfully.")
		return
	}

	fmt.Printf("Mismatches: %d\n\n", len(report.Mismatches))

	headers := []string{"SYNC-ID", "PATH", "STATUS", "WANT", "GOT"}
	rows := make([][]string, len(report.Mismatches))

	for i, m := range report.Mismatches {
		rows[i] = []string{m.SyncID, m.Path, m.Status, m.Want, m.Got}
	}

	printTable(os.Stdout, headers, rows)
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/config"
)

func TestNewResumeCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newResumeCmd()
	assert.Equal(t, "resume [sync-id]", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestResumeSingleFolder_ReenablesAndClearsPause(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := &config.Config{Folders: []config.Folder{
		{SyncID: "notes-abc", Path: dir, Enabled: false, PausedUntil: "2026-01-01T00:00:00Z"},
	}}

	cc := &CLIContext{Cfg: cfg, Flags: CLIFlags{ConfigPath: dir + "/config.toml", Quiet: true}, Logger: testLogger()}

	require.NoError(t, resumeSingleFolder(cc, "notes-abc"))

	f, ok := config.FindFolder(cfg, "notes-abc")
	require.True(t, ok)
	assert.True(t, f.Enabled)
	assert.Empty(t, f.PausedUntil)
}

func TestResumeSingleFolder_UnknownSyncID(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cc := &CLIContext{Cfg: cfg, Flags: CLIFlags{Quiet: true}, Logger: testLogger()}

	err := resumeSingleFolder(cc, "missing")
	assert.Error(t, err)
}

func TestResumeAllFolders_NoFoldersConfigured(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cc := &CLIContext{Cfg: cfg, Flags: CLIFlags{Quiet: true}, Logger: testLogger()}

	err := resumeAllFolders(cc)
	assert.Error(t, err)
}

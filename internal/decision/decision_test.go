package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/vclock"
)

func existsState(hash string, vc *vclock.Clock, mtime time.Time) *state.FileState {
	s := state.Exists(state.FileMetadata{ContentHash: hash, VectorClock: vc, ModTime: mtime})
	return &s
}

func deletedState(by string, vc *vclock.Clock, at time.Time) *state.FileState {
	s := state.Deleted(state.DeletionRecord{DeletedBy: by, VectorClock: vc, DeletedAt: at})
	return &s
}

func TestDecide_BothAbsent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Skip, Decide(nil, nil, "p"))
}

func TestDecide_LocalAbsentRemoteExists(t *testing.T) {
	t.Parallel()
	remote := existsState("h1", vclock.New(), time.Now())
	assert.Equal(t, Download, Decide(nil, remote, "p"))
}

func TestDecide_LocalAbsentRemoteDeleted(t *testing.T) {
	t.Parallel()
	remote := deletedState("peerA", vclock.New(), time.Now())
	assert.Equal(t, Skip, Decide(nil, remote, "p"))
}

func TestDecide_LocalExistsRemoteAbsent(t *testing.T) {
	t.Parallel()
	local := existsState("h1", vclock.New(), time.Now())
	assert.Equal(t, Uncertain, Decide(local, nil, "p"))
}

func TestDecide_LocalDeletedRemoteAbsent(t *testing.T) {
	t.Parallel()
	local := deletedState("peerA", vclock.New(), time.Now())
	assert.Equal(t, Skip, Decide(local, nil, "p"))
}

func TestDecide_ExistsExists_SameHash(t *testing.T) {
	t.Parallel()
	vc := vclock.New().Increment("peerA")
	local := existsState("h1", vc, time.Now())
	remote := existsState("h1", vclock.New().Increment("peerB"), time.Now())
	assert.Equal(t, Skip, Decide(local, remote, "p"))
}

func TestDecide_ExistsExists_LocalAncestor(t *testing.T) {
	t.Parallel()
	localVC := vclock.New().Increment("peerA")
	remoteVC := localVC.Increment("peerB")

	local := existsState("h1", localVC, time.Now())
	remote := existsState("h2", remoteVC, time.Now())

	assert.Equal(t, Download, Decide(local, remote, "p"))
}

func TestDecide_ExistsExists_LocalDescendant(t *testing.T) {
	t.Parallel()
	remoteVC := vclock.New().Increment("peerA")
	localVC := remoteVC.Increment("peerB")

	local := existsState("h1", localVC, time.Now())
	remote := existsState("h2", remoteVC, time.Now())

	assert.Equal(t, Upload, Decide(local, remote, "p"))
}

func TestDecide_ExistsExists_Concurrent(t *testing.T) {
	t.Parallel()
	local := existsState("h1", vclock.New().Increment("peerA"), time.Now())
	remote := existsState("h2", vclock.New().Increment("peerB"), time.Now())

	assert.Equal(t, Conflict, Decide(local, remote, "p"))
}

func TestDecide_ExistsExists_EqualDifferingHashIsUncertain(t *testing.T) {
	t.Parallel()
	vc := vclock.New().Increment("peerA")
	local := existsState("h1", vc, time.Now())
	remote := existsState("h2", vc, time.Now())

	assert.Equal(t, Uncertain, Decide(local, remote, "p"))
}

func TestDecide_ExistsExists_NoVectorClockIsUncertain(t *testing.T) {
	t.Parallel()
	local := existsState("h1", nil, time.Now())
	remote := existsState("h2", nil, time.Now())

	assert.Equal(t, Uncertain, Decide(local, remote, "p"))
}

func TestDecide_DeletedDeleted(t *testing.T) {
	t.Parallel()
	local := deletedState("peerA", vclock.New(), time.Now())
	remote := deletedState("peerB", vclock.New(), time.Now())
	assert.Equal(t, Skip, Decide(local, remote, "p"))
}

func TestDecide_DeletedExists_DeleteDominates(t *testing.T) {
	t.Parallel()
	remoteVC := vclock.New().Increment("peerA")
	deleteVC := remoteVC.Increment("peerB")

	local := deletedState("peerB", deleteVC, time.Now())
	remote := existsState("h1", remoteVC, time.Now())

	assert.Equal(t, DeleteRemote, Decide(local, remote, "p"))
}

func TestDecide_DeletedExists_RemoteDominates(t *testing.T) {
	t.Parallel()
	deleteVC := vclock.New().Increment("peerB")
	remoteVC := deleteVC.Increment("peerA")

	local := deletedState("peerB", deleteVC, time.Now())
	remote := existsState("h1", remoteVC, time.Now())

	assert.Equal(t, Download, Decide(local, remote, "p"))
}

func TestDecide_DeletedExists_ConcurrentResurrection(t *testing.T) {
	t.Parallel()
	now := time.Now()
	deleteVC := vclock.New().Increment("peerA")
	remoteVC := vclock.New().Increment("peerB")

	local := deletedState("peerA", deleteVC, now)
	remote := existsState("h1", remoteVC, now.Add(5*time.Second))

	assert.Equal(t, Download, Decide(local, remote, "p"))
}

func TestDecide_DeletedExists_ConcurrentStaleCopy(t *testing.T) {
	t.Parallel()
	now := time.Now()
	deleteVC := vclock.New().Increment("peerA")
	remoteVC := vclock.New().Increment("peerB")

	local := deletedState("peerA", deleteVC, now)
	remote := existsState("h1", remoteVC, now.Add(-5*time.Second))

	assert.Equal(t, DeleteRemote, Decide(local, remote, "p"))
}

func TestDecide_ExistsDeleted_LocalResurrection(t *testing.T) {
	t.Parallel()
	deleteVC := vclock.New().Increment("peerA")
	localVC := deleteVC.Increment("peerB")

	local := existsState("h1", localVC, time.Now())
	remote := deletedState("peerA", deleteVC, time.Now())

	assert.Equal(t, Upload, Decide(local, remote, "p"))
}

func TestDecide_ExistsDeleted_DeleteDominates(t *testing.T) {
	t.Parallel()
	localVC := vclock.New().Increment("peerB")
	deleteVC := localVC.Increment("peerA")

	local := existsState("h1", localVC, time.Now())
	remote := deletedState("peerA", deleteVC, time.Now())

	assert.Equal(t, DeleteLocal, Decide(local, remote, "p"))
}

func TestDecide_ExistsDeleted_NoVectorClockResurrection(t *testing.T) {
	t.Parallel()
	now := time.Now()
	local := existsState("h1", nil, now.Add(5*time.Second))
	remote := deletedState("peerA", vclock.New(), now)

	assert.Equal(t, Upload, Decide(local, remote, "p"))
}

func TestDecide_ExistsDeleted_NoVectorClockStale(t *testing.T) {
	t.Parallel()
	now := time.Now()
	local := existsState("h1", nil, now.Add(-5*time.Second))
	remote := deletedState("peerA", vclock.New(), now)

	assert.Equal(t, DeleteLocal, Decide(local, remote, "p"))
}

func TestResolveUncertain_StillUncertainBecomesConflict(t *testing.T) {
	t.Parallel()
	vc := vclock.New().Increment("peerA")
	local := existsState("h1", vc, time.Now())
	remote := existsState("h2", vc, time.Now())

	assert.Equal(t, Conflict, ResolveUncertain(local, remote, "p"))
}

func TestResolveUncertain_ResolvesAgainstTombstoneWhenFound(t *testing.T) {
	t.Parallel()
	local := existsState("h1", vclock.New().Increment("peerA"), time.Now())
	remote := deletedState("peerB", vclock.New(), time.Now().Add(-time.Hour))

	got := ResolveUncertain(local, remote, "p")
	assert.Contains(t, []Action{DeleteLocal, Upload}, got)
}

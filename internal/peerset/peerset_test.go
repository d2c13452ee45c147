package peerset

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	now := time.Now()

	r.Register("peer1", "ws://10.0.0.2:4001", []string{"project-x"}, now)

	p, ok := r.Get("peer1")
	require.True(t, ok)
	assert.Equal(t, []string{"project-x"}, p.SyncIDs)
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	r.Register("peer1", "ws://10.0.0.2:4001", []string{"project-x"}, time.Now())
	r.Unregister("peer1")

	_, ok := r.Get("peer1")
	assert.False(t, ok)
}

func TestRegistry_PeersForSync(t *testing.T) {
	r := New()
	r.Register("peer1", "ws://10.0.0.2:4001", []string{"project-x"}, time.Now())
	r.Register("peer2", "ws://10.0.0.3:4001", []string{"project-y"}, time.Now())
	r.Register("peer3", "ws://10.0.0.4:4001", []string{"project-x", "project-y"}, time.Now())

	peers := r.PeersForSync("project-x")
	ids := make(map[string]bool)
	for _, p := range peers {
		ids[p.ID] = true
	}

	assert.Len(t, peers, 2)
	assert.True(t, ids["peer1"])
	assert.True(t, ids["peer3"])
}

func TestRegistry_ReRegisterRefreshesSyncIDs(t *testing.T) {
	r := New()
	r.Register("peer1", "ws://10.0.0.2:4001", []string{"project-x"}, time.Now())
	r.Register("peer1", "ws://10.0.0.5:4001", []string{"project-y"}, time.Now())

	p, ok := r.Get("peer1")
	require.True(t, ok)
	assert.Equal(t, []string{"project-y"}, p.SyncIDs)
}

func TestPersist_SaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")

	peers := []persistedPeer{
		{ID: "peer1", SyncIDs: []string{"project-x"}, Multiaddresses: []string{"/ip4/10.0.0.2/tcp/4001"}},
	}

	require.NoError(t, Save(path, peers))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "peer1", loaded[0].ID)
	assert.Equal(t, []string{"project-x"}, loaded[0].SyncIDs)
}

func TestLoad_MissingFileReturnsEmpty(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

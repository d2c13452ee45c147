package mst

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_EmptyRootHash(t *testing.T) {
	t.Parallel()

	tree := New()
	assert.Equal(t, "", tree.RootHash())
}

func TestTree_InsertGet(t *testing.T) {
	t.Parallel()

	tree := New()
	tree.Insert("a/b.txt", "hash1")

	v, ok := tree.Get("a/b.txt")
	require.True(t, ok)
	assert.Equal(t, "hash1", v)
}

func TestTree_RootHash_InsertionOrderIndependent(t *testing.T) {
	t.Parallel()

	entries := map[string]string{
		"a.txt":     "h1",
		"b/c.txt":   "h2",
		"b/d.txt":   "h3",
		"zzz":       "h4",
		"aaa/b/c/d": "h5",
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}

	treeA := New()
	for _, k := range keys {
		treeA.Insert(k, entries[k])
	}

	rng := rand.New(rand.NewSource(7))
	shuffled := append([]string{}, keys...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	treeB := New()
	for _, k := range shuffled {
		treeB.Insert(k, entries[k])
	}

	assert.Equal(t, treeA.RootHash(), treeB.RootHash())
}

func TestTree_RootHash_ChangesWithContent(t *testing.T) {
	t.Parallel()

	treeA := New()
	treeA.Insert("x", "1")

	treeB := New()
	treeB.Insert("x", "2")

	assert.NotEqual(t, treeA.RootHash(), treeB.RootHash())
}

func TestTree_RootHash_DeleteRestoresEmptyHash(t *testing.T) {
	t.Parallel()

	tree := New()
	tree.Insert("only", "v")
	require.NotEqual(t, "", tree.RootHash())

	tree.Delete("only")
	assert.Equal(t, "", tree.RootHash())
}

func TestTree_Diff_IdenticalTreesNoDifference(t *testing.T) {
	t.Parallel()

	treeA := New()
	treeB := New()

	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("path/%d", i)
		treeA.Insert(k, "same")
		treeB.Insert(k, "same")
	}

	assert.Empty(t, treeA.Diff(treeB))
}

func TestTree_Diff_DetectsValueMismatch(t *testing.T) {
	t.Parallel()

	treeA := New()
	treeB := New()

	treeA.Insert("shared", "v1")
	treeB.Insert("shared", "v2")

	diff := treeA.Diff(treeB)
	assert.Contains(t, diff, "shared")
}

func TestTree_Diff_DetectsOneSidedKeys(t *testing.T) {
	t.Parallel()

	treeA := New()
	treeB := New()

	treeA.Insert("common", "v")
	treeB.Insert("common", "v")
	treeA.Insert("onlyA", "v")
	treeB.Insert("onlyB", "v")

	diff := treeA.Diff(treeB)
	assert.Len(t, diff, 2)
	assert.Contains(t, diff, "onlyA")
	assert.Contains(t, diff, "onlyB")
}

func TestTree_ReplaceAll(t *testing.T) {
	t.Parallel()

	tree := New()
	tree.Insert("stale", "v")

	tree.ReplaceAll(map[string]string{"fresh": "v2"})

	_, staleFound := tree.Get("stale")
	assert.False(t, staleFound)

	v, ok := tree.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestTree_AllEntries_IsACopy(t *testing.T) {
	t.Parallel()

	tree := New()
	tree.Insert("a", "1")

	entries := tree.AllEntries()
	entries["a"] = "mutated"

	v, _ := tree.Get("a")
	assert.Equal(t, "1", v)
}

func TestLevelOf_Deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, levelOf("same-key"), levelOf("same-key"))
}

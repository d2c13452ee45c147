package chunker

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_SmallFileProducesSingleChunk(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0x42}, 100)

	chunks, err := Split(bytes.NewReader(data), DefaultParams())
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, data, chunks[0].Bytes)
	assert.Equal(t, HashBytes(data), chunks[0].Hash)
}

func TestSplit_EmptyFileProducesNoChunks(t *testing.T) {
	t.Parallel()

	chunks, err := Split(bytes.NewReader(nil), DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_CoversFileExactly(t *testing.T) {
	t.Parallel()

	data := randomBytes(t, 512*1024, 1)

	chunks, err := Split(bytes.NewReader(data), DefaultParams())
	require.NoError(t, err)

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c.Bytes...)
	}

	assert.Equal(t, data, reassembled)
}

func TestSplit_BoundaryInvariants(t *testing.T) {
	t.Parallel()

	params := DefaultParams()
	data := randomBytes(t, 1024*1024, 2)

	chunks, err := Split(bytes.NewReader(data), params)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		n := len(c.Bytes)

		assert.LessOrEqualf(t, n, params.Max, "chunk %d exceeds max", i)

		if i < len(chunks)-1 {
			assert.GreaterOrEqualf(t, n, params.Min, "non-final chunk %d shorter than min", i)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	data := randomBytes(t, 200*1024, 3)

	a, err := Split(bytes.NewReader(data), DefaultParams())
	require.NoError(t, err)

	b, err := Split(bytes.NewReader(data), DefaultParams())
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Hash, b[i].Hash)
		assert.Equal(t, a[i].Offset, b[i].Offset)
	}
}

func TestSplit_ShiftResilience(t *testing.T) {
	t.Parallel()

	data := randomBytes(t, 64*1024, 4)
	prefix := randomBytes(t, 1024, 5)
	shifted := append(append([]byte{}, prefix...), data...)

	original, err := Split(bytes.NewReader(data), DefaultParams())
	require.NoError(t, err)

	after, err := Split(bytes.NewReader(shifted), DefaultParams())
	require.NoError(t, err)

	originalHashes := make(map[string]bool, len(original))
	for _, c := range original {
		originalHashes[c.Hash] = true
	}

	matched := 0
	for _, c := range after {
		if originalHashes[c.Hash] {
			matched++
		}
	}

	minMatches := len(original) / 2
	assert.GreaterOrEqualf(t, matched, minMatches, "expected >=50%% of original chunk hashes to reappear after prefix insertion, got %d/%d", matched, len(original))
}

func TestSplit_RejectsInvalidParams(t *testing.T) {
	t.Parallel()

	_, err := Split(bytes.NewReader([]byte("x")), Params{Min: 100, Avg: 50, Max: 200})
	assert.Error(t, err)
}

func randomBytes(t *testing.T, n int, seed int64) []byte {
	t.Helper()

	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	_, err := r.Read(buf)
	require.NoError(t, err)

	return buf
}

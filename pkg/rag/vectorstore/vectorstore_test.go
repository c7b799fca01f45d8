package vectorstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")
	s, err := Open(dbPath, "text-embedding-3-small")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddAndSearchRoundtrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	id, err := s.Add(ctx, Chunk{
		TopicID:    "topic-1",
		SourcePath: "a.txt",
		FileHash:   "hash-a",
		ChunkIndex: 0,
		Ciphertext: []byte("cipher"),
		Nonce:      []byte("nonce"),
		Embedding:  []float64{0.1, 0.2, 0.3},
		Metadata:   map[string]string{"format": "txt"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	results, err := s.Search(ctx, Filter{TopicID: "topic-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.txt", results[0].SourcePath)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, results[0].Embedding)
}

func TestSearchFilterExcludesOtherTopics(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.Add(ctx, Chunk{TopicID: "t1", SourcePath: "a.txt", Embedding: []float64{1}})
	require.NoError(t, err)
	_, err = s.Add(ctx, Chunk{TopicID: "t2", SourcePath: "b.txt", Embedding: []float64{1}})
	require.NoError(t, err)

	results, err := s.Search(ctx, Filter{TopicID: "t1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.txt", results[0].SourcePath)
}

func TestDeleteByPathExcludesFromSearch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.Add(ctx, Chunk{TopicID: "t1", SourcePath: "a.txt", Embedding: []float64{1}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByPath(ctx, "a.txt"))

	results, err := s.Search(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCompactRejectsNonPositiveGrace(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.Compact(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidGracePeriod)

	_, err = s.Compact(ctx, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidGracePeriod)
}

func TestCompactKeepsRecentSoftDeletes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.Add(ctx, Chunk{TopicID: "t1", SourcePath: "a.txt", Embedding: []float64{1}})
	require.NoError(t, err)
	require.NoError(t, s.DeleteByPath(ctx, "a.txt"))

	// Grace period is floored at one hour, so a fresh soft-delete is never
	// compacted away immediately.
	n, err := s.Compact(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCountScopedToTopic(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.Add(ctx, Chunk{TopicID: "t1", SourcePath: "a.txt", Embedding: []float64{1}})
	require.NoError(t, err)
	_, err = s.Add(ctx, Chunk{TopicID: "t2", SourcePath: "b.txt", Embedding: []float64{1}})
	require.NoError(t, err)

	n, err := s.Count(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

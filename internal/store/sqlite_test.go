package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCacheSetGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`), 0))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), got)

	// Overwrite in place.
	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":2}`), 0))
	got, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":2}`), got)
}

func TestCacheExpiredEntryReadsAsMiss(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "stale", []byte("x"), time.Hour))
	// Backdate the deadline instead of sleeping it out.
	_, err := s.db.Exec(`UPDATE cache SET expires_at = ? WHERE key = ?`, time.Now().Add(-time.Minute).Unix(), "stale")
	require.NoError(t, err)
	_, ok, err := s.Get(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	// The expired row was evicted, a rewrite behaves like a fresh insert.
	require.NoError(t, s.Set(ctx, "stale", []byte("y"), time.Hour))
	got, ok, err := s.Get(ctx, "stale")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("y"), got)
}

func TestFactIDDeterministic(t *testing.T) {
	assert.Equal(t, FactID("cmc-top-100"), FactID("cmc-top-100"))
	assert.NotEqual(t, FactID("cmc-top-100"), FactID("cmc-top-200"))
}

func TestUpsertFactReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := FactID("1")

	require.NoError(t, s.UpsertFact(ctx, Fact{ID: id, Body: "Bitcoin has rank 1", Embedding: []float64{1, 0}}))
	require.NoError(t, s.UpsertFact(ctx, Fact{ID: id, Body: "Bitcoin has rank 2", Embedding: []float64{0, 1}}))

	f, err := s.FactByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "Bitcoin has rank 2", f.Body)
	assert.Equal(t, []float64{0, 1}, f.Embedding)
}

func TestFactByIDAbsent(t *testing.T) {
	s := openTestStore(t)
	f, err := s.FactByID(context.Background(), FactID("nope"))
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestRemoveFact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := FactID("gone")

	require.NoError(t, s.UpsertFact(ctx, Fact{ID: id, Body: "temp"}))
	require.NoError(t, s.RemoveFact(ctx, id))

	f, err := s.FactByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSearchFactsOrdersBySimilarity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFact(ctx, Fact{ID: "a", Body: "aligned", Embedding: []float64{1, 0, 0}}))
	require.NoError(t, s.UpsertFact(ctx, Fact{ID: "b", Body: "close", Embedding: []float64{0.9, 0.1, 0}}))
	require.NoError(t, s.UpsertFact(ctx, Fact{ID: "c", Body: "orthogonal", Embedding: []float64{0, 0, 1}}))

	facts, err := s.SearchFacts(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "aligned", facts[0].Body)
	assert.Equal(t, "close", facts[1].Body)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float64{0.25, -1.5, 3.14159, 0}
	assert.Equal(t, in, decodeEmbedding(encodeEmbedding(in)))
	assert.Nil(t, decodeEmbedding(nil))
	assert.Nil(t, encodeEmbedding(nil))
}

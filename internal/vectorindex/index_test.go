package vectorindex

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobcatalog/internal/kv"
	"github.com/amishk599/jobcatalog/internal/model"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	b, err := kv.Open("", true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return New(b)
}

func emb(m string, v ...float32) *model.Embedding {
	return &model.Embedding{Model: m, Vector: v}
}

func TestSearch_RanksByCosineWithinModel(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, "a", emb("m1", 1, 0, 0)))
	require.NoError(t, x.Upsert(ctx, "b", emb("m1", 0.8, 0.6, 0)))
	require.NoError(t, x.Upsert(ctx, "c", emb("m1", 0, 0, 1)))
	require.NoError(t, x.Upsert(ctx, "d", emb("m2", 1, 0, 0)))

	hits, err := x.Search(ctx, emb("m1", 1, 0, 0), 0.5, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-6)

	for _, h := range hits {
		assert.NotEqual(t, "d", h.ID, "vectors from another model must not be compared")
	}
}

func TestSearch_Limit(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, x.Upsert(ctx, id, emb("m", 1, 1)))
	}
	hits, err := x.Search(ctx, emb("m", 1, 1), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{hits[0].ID, hits[1].ID})
}

func TestUpsertReplacesAndDeleteRemovesAllModels(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, "job", emb("m1", 1, 0)))
	require.NoError(t, x.Upsert(ctx, "job", emb("m1", 0, 1)))
	require.NoError(t, x.Upsert(ctx, "job", emb("m2", 1, 1)))

	got, err := x.Get(ctx, "m1", "job")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got.Vector)

	n, err := x.Count(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, x.Delete(ctx, "job"))
	got, err = x.Get(ctx, "m1", "job")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = x.Get(ctx, "m2", "job")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsert_RejectsEmpty(t *testing.T) {
	assert.Error(t, newTestIndex(t).Upsert(context.Background(), "x", &model.Embedding{Model: "m"}))
}

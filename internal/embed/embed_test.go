package embed

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobcatalog/internal/config"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestEncodeDecode(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := Decode(Encode(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	h := NewHashEmbedder("hash-v1", 64)
	assert.Equal(t, "hash-v1", h.Model())
	assert.Equal(t, 64, h.Dimension())

	vecs, err := h.Embed(context.Background(), []string{
		"Senior Go engineer building distributed systems",
		"Senior Go engineer building distributed systems",
		"Pastry chef for a downtown bakery",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 64)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 1.0, Cosine(vecs[0], vecs[1]), 1e-6)
	assert.Less(t, Cosine(vecs[0], vecs[2]), 0.5)
}

func TestHashEmbedder_SimilarTextsAreClose(t *testing.T) {
	h := NewHashEmbedder("hash-v1", 256)
	vecs, err := h.Embed(context.Background(), []string{
		"Backend engineer working on Go services and Postgres",
		"Backend engineer working on Go services and Postgres and Kafka",
	})
	require.NoError(t, err)
	assert.Greater(t, Cosine(vecs[0], vecs[1]), 0.8)
}

func TestHashEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder("hash-v1", 8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Providers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e, err := New(config.EmbeddingConfig{Provider: "hash", Model: "hash-v1", Dimension: 32}, logger)
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimension())

	_, err = New(config.EmbeddingConfig{Provider: "bogus"}, logger)
	assert.ErrorContains(t, err, "unsupported embedding provider")
}

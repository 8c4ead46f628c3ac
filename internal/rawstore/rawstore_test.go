package rawstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobcatalog/internal/kv"
	"github.com/amishk599/jobcatalog/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	b, err := kv.Open("", true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return New(b)
}

func TestPutGet_RoundTripsPayloadBytes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := []byte("{\"jobs\": [1, 2]}\n\x00 not quite json")
	rc := &model.RawCollection{
		CollectedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Source:      "acme-greenhouse",
		Query:       model.Query{Text: "go", Location: "Remote"},
		Payload:     payload,
		Status:      model.FetchSucceeded,
		HTTPStatus:  200,
		Attempts:    1,
	}
	require.NoError(t, s.Put(ctx, rc))
	require.NotEmpty(t, rc.ID)

	got, err := s.Get(ctx, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
	assert.Equal(t, rc.Query, got.Query)
	assert.True(t, rc.CollectedAt.Equal(got.CollectedAt))
}

func TestPut_WriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rc := &model.RawCollection{ID: "fixed", Source: "s", Payload: []byte("one"), Status: model.FetchSucceeded}
	require.NoError(t, s.Put(ctx, rc))

	err := s.Put(ctx, &model.RawCollection{ID: "fixed", Source: "s", Payload: []byte("two")})
	assert.True(t, errors.Is(err, ErrExists))

	got, err := s.Get(ctx, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "one", string(got.Payload))
}

func TestGet_NotFound(t *testing.T) {
	_, err := newTestStore(t).Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPendingAndAck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for range 3 {
		rc := &model.RawCollection{Source: "s", Status: model.FetchSucceeded}
		require.NoError(t, s.Put(ctx, rc))
		ids = append(ids, rc.ID)
	}

	pending, err := s.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ids, pending, "v7 ids list oldest first")

	require.NoError(t, s.Ack(ctx, ids[0]))
	pending, err = s.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ids[1:], pending)

	_, err = s.Get(ctx, ids[0])
	assert.NoError(t, err, "ack must not remove the collection")
}

func TestList_FiltersBySourceAndDropsPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, src := range []string{"a", "b", "a"} {
		require.NoError(t, s.Put(ctx, &model.RawCollection{Source: src, Payload: []byte("x")}))
	}

	got, err := s.List(ctx, ListOptions{Source: "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, rc := range got {
		assert.Equal(t, "a", rc.Source)
		assert.Nil(t, rc.Payload)
	}

	got, err = s.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

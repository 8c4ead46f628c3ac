package kv

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open("", true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestOpen_FileSystem(t *testing.T) {
	b, err := Open(t.TempDir()+"/badger", false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.False(t, b.IsClosed())
	require.NoError(t, b.Close())
	assert.True(t, b.IsClosed())
}

func TestGetAndScan(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.Update(func(tx *badger.Txn) error {
		for _, k := range []string{"a/1", "a/2", "a/3", "b/1"} {
			if err := tx.Set([]byte(k), []byte("v"+k)); err != nil {
				return err
			}
		}
		return nil
	}))

	val, err := b.Get([]byte("a/2"))
	require.NoError(t, err)
	assert.Equal(t, "va/2", string(val))

	_, err = b.Get([]byte("missing"))
	assert.True(t, errors.Is(err, ErrNotFound))

	var seen []string
	require.NoError(t, b.Scan([]byte("a/"), func(key, val []byte) error {
		seen = append(seen, string(key))
		if len(seen) == 2 {
			return ErrStop
		}
		return nil
	}))
	assert.Equal(t, []string{"a/1", "a/2"}, seen)

	keys, err := b.Keys([]byte("a/"), 0)
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	keys, err = b.Keys([]byte("a/"), 1)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

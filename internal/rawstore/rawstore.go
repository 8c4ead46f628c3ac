// Package rawstore persists unmodified source responses in badger.
//
// Records live under raw/<id> and are never rewritten. A companion marker
// under pend/<id> is written in the same transaction and removed once the
// processor has registered the collection, so new work can be found without
// scanning every payload.
package rawstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/amishk599/jobcatalog/internal/kv"
	"github.com/amishk599/jobcatalog/internal/model"
)

const (
	rawPrefix     = "raw/"
	pendingPrefix = "pend/"
)

// ErrExists is returned when a collection id is written twice.
var ErrExists = errors.New("raw collection already exists")

// ErrNotFound is returned for unknown collection ids.
var ErrNotFound = errors.New("raw collection not found")

// Store is the append-only raw collection store.
type Store struct {
	backend *kv.Backend
}

// New creates a store on an open backend.
func New(backend *kv.Backend) *Store {
	return &Store{backend: backend}
}

func rawKey(id string) []byte     { return []byte(rawPrefix + id) }
func pendingKey(id string) []byte { return []byte(pendingPrefix + id) }

// Put writes rc once. An empty ID is filled with a time-ordered UUID.
func (s *Store) Put(ctx context.Context, rc *model.RawCollection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rc.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate raw collection id: %w", err)
		}
		rc.ID = id.String()
	}

	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshal raw collection %s: %w", rc.ID, err)
	}

	err = s.backend.Update(func(tx *badger.Txn) error {
		_, err := tx.Get(rawKey(rc.ID))
		if err == nil {
			return ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(rawKey(rc.ID), data); err != nil {
			return err
		}
		return tx.Set(pendingKey(rc.ID), []byte(rc.Source))
	})
	if errors.Is(err, ErrExists) {
		return fmt.Errorf("put %s: %w", rc.ID, ErrExists)
	}
	if err != nil {
		return &model.StorageError{Op: "put raw collection", Err: err}
	}
	return nil
}

// Get loads a collection by id.
func (s *Store) Get(ctx context.Context, id string) (*model.RawCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.backend.Get(rawKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &model.StorageError{Op: "get raw collection", Err: err}
	}
	var rc model.RawCollection
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, &model.StorageError{Op: "decode raw collection " + id, Err: err}
	}
	return &rc, nil
}

// Pending returns up to limit collection ids that have not been acknowledged,
// oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, err := s.backend.Keys([]byte(pendingPrefix), limit)
	if err != nil {
		return nil, &model.StorageError{Op: "list pending raw collections", Err: err}
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strings.TrimPrefix(string(k), pendingPrefix)
	}
	return ids, nil
}

// Ack removes the pending marker for id. The collection itself is untouched.
func (s *Store) Ack(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(pendingKey(id))
	})
	if err != nil {
		return &model.StorageError{Op: "ack raw collection", Err: err}
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	Source string
	Limit  int
}

// List returns collections oldest first, without their payloads.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]model.RawCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.RawCollection
	err := s.backend.Scan([]byte(rawPrefix), func(_, val []byte) error {
		var rc model.RawCollection
		if err := json.Unmarshal(val, &rc); err != nil {
			return err
		}
		if opts.Source != "" && rc.Source != opts.Source {
			return nil
		}
		rc.Payload = nil
		out = append(out, rc)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return kv.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, &model.StorageError{Op: "list raw collections", Err: err}
	}
	return out, nil
}

// Package vectorindex is a brute-force cosine index over badger, partitioned
// by embedding model so vectors from different models never meet.
package vectorindex

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/amishk599/jobcatalog/internal/embed"
	"github.com/amishk599/jobcatalog/internal/kv"
	"github.com/amishk599/jobcatalog/internal/model"
)

const vectorPrefix = "vec/"

// Hit is one search result.
type Hit struct {
	ID    string
	Score float64
}

// Index stores one vector per (model, canonical job).
type Index struct {
	backend *kv.Backend
}

// New creates an index on an open backend.
func New(backend *kv.Backend) *Index {
	return &Index{backend: backend}
}

func modelPrefix(m string) []byte { return []byte(vectorPrefix + m + "/") }

func vectorKey(m, id string) []byte { return []byte(vectorPrefix + m + "/" + id) }

// Upsert writes or replaces the vector for id.
func (x *Index) Upsert(ctx context.Context, id string, e *model.Embedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e == nil || e.Model == "" || len(e.Vector) == 0 {
		return errors.New("upsert: empty embedding")
	}
	err := x.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(vectorKey(e.Model, id), embed.Encode(e.Vector))
	})
	if err != nil {
		return &model.StorageError{Op: "upsert vector", Err: err}
	}
	return nil
}

// Delete removes id under every model.
func (x *Index) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	suffix := []byte("/" + id)
	err := x.backend.Update(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		var doomed [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if bytes.HasSuffix(iter.Item().Key(), suffix) {
				doomed = append(doomed, iter.Item().KeyCopy(nil))
			}
		}
		iter.Close()
		for _, k := range doomed {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &model.StorageError{Op: "delete vector", Err: err}
	}
	return nil
}

// Get returns the stored vector for id under modelID.
func (x *Index) Get(ctx context.Context, modelID, id string) (*model.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := x.backend.Get(vectorKey(modelID, id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "get vector", Err: err}
	}
	v, err := embed.Decode(data)
	if err != nil {
		return nil, &model.StorageError{Op: "decode vector", Err: err}
	}
	return &model.Embedding{Model: modelID, Vector: v}, nil
}

// Search returns up to limit ids whose vectors under the query's model score
// at least minScore, best first.
func (x *Index) Search(ctx context.Context, query *model.Embedding, minScore float64, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == nil || len(query.Vector) == 0 {
		return nil, nil
	}
	prefix := modelPrefix(query.Model)

	var hits []Hit
	err := x.backend.Scan(prefix, func(key, val []byte) error {
		v, err := embed.Decode(val)
		if err != nil {
			return err
		}
		if len(v) != len(query.Vector) {
			return nil
		}
		score := embed.Cosine(query.Vector, v)
		if score >= minScore {
			hits = append(hits, Hit{ID: strings.TrimPrefix(string(key), string(prefix)), Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, &model.StorageError{Op: "search vectors", Err: err}
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of vectors stored for modelID.
func (x *Index) Count(ctx context.Context, modelID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	keys, err := x.backend.Keys(modelPrefix(modelID), 0)
	if err != nil {
		return 0, &model.StorageError{Op: "count vectors", Err: err}
	}
	return len(keys), nil
}

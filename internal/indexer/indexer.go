// Package indexer drains the index outbox into the vector index. Relational
// writes never wait on it; failed deliveries are retried with backoff.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/metrics"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/retry"
	"github.com/amishk599/jobcatalog/internal/store"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 10
	defaultBaseDelay    = 2 * time.Second
	maxBackoff          = time.Hour
)

// VectorIndex is the read model being maintained.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, e *model.Embedding) error
	Delete(ctx context.Context, id string) error
}

// Config tunes the worker.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int // entries past this stay in the outbox for inspection
	BaseDelay    time.Duration
}

// Worker is the outbox consumer.
type Worker struct {
	store   *store.Store
	index   VectorIndex
	cfg     Config
	backoff *retry.Machine
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a worker. m may be nil.
func New(st *store.Store, index VectorIndex, cfg Config, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	policy := retry.Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay, MaxDelay: maxBackoff, Jitter: 0.3}
	return &Worker{
		store:   st,
		index:   index,
		cfg:     cfg,
		backoff: retry.NewMachine(policy, clk),
		clock:   clk,
		metrics: m,
		logger:  logger.With("component", "indexer"),
	}
}

// Run drains the outbox every poll interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("index worker started", "poll_interval", w.cfg.PollInterval, "batch_size", w.cfg.BatchSize)
	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("drain index outbox", "error", err)
		}
		if err := w.clock.Sleep(ctx, w.cfg.PollInterval); err != nil {
			w.logger.Info("index worker stopped")
			return nil
		}
	}
}

// DrainResult counts one Drain call.
type DrainResult struct {
	Delivered int
	Failed    int
}

// Drain delivers every due entry once and refreshes the outbox gauges.
func (w *Worker) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	q := w.store.Queries()
	for {
		due, err := q.DueOutbox(ctx, w.clock.Now(), w.cfg.MaxAttempts, w.cfg.BatchSize)
		if err != nil {
			return res, err
		}
		for i := range due {
			if err := w.deliver(ctx, q, &due[i]); err != nil {
				if !isIndexError(err) || ctx.Err() != nil {
					return res, err
				}
				res.Failed++
				continue
			}
			res.Delivered++
		}
		if len(due) < w.cfg.BatchSize {
			break
		}
	}
	return res, w.refreshStats(ctx, q)
}

// deliver applies one entry. Index failures are recorded on the entry and
// returned; storage failures are returned as is.
func (w *Worker) deliver(ctx context.Context, q *store.Queries, e *store.OutboxEntry) error {
	indexErr := w.apply(ctx, q, e)
	if indexErr != nil && !isIndexError(indexErr) {
		return indexErr
	}
	now := w.clock.Now()
	w.metrics.IndexWrite(e.Op, indexErr == nil)
	if indexErr == nil {
		return q.MarkOutboxDone(ctx, e.ID, now)
	}

	next := now.Add(w.backoff.Delay(e.Attempts+1, nil))
	w.logger.Warn("index write failed",
		"outbox_id", e.ID, "canonical_id", e.CanonicalID, "op", e.Op,
		"attempt", e.Attempts+1, "next_attempt_at", next, "error", indexErr)
	if err := q.MarkOutboxFailed(ctx, e.ID, indexErr.Error(), next); err != nil {
		return err
	}
	return indexErr
}

// indexError marks failures raised by the vector index itself.
type indexError struct{ err error }

func (e *indexError) Error() string { return e.err.Error() }
func (e *indexError) Unwrap() error { return e.err }

func isIndexError(err error) bool {
	var ie *indexError
	return errors.As(err, &ie)
}

func (w *Worker) apply(ctx context.Context, q *store.Queries, e *store.OutboxEntry) error {
	switch e.Op {
	case store.OpDelete:
		if err := w.index.Delete(ctx, e.CanonicalID); err != nil {
			return &indexError{err: err}
		}
		return nil
	case store.OpUpsert:
		root, err := q.ResolveRoot(ctx, e.CanonicalID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if root != e.CanonicalID {
			// Superseded since the write was queued; its delete follows.
			return nil
		}
		emb, err := q.GetEmbedding(ctx, e.CanonicalID, e.Model)
		if err != nil {
			return err
		}
		if emb == nil {
			return nil
		}
		if err := w.index.Upsert(ctx, e.CanonicalID, emb); err != nil {
			return &indexError{err: err}
		}
		return nil
	default:
		return &indexError{err: fmt.Errorf("unknown outbox op %q", e.Op)}
	}
}

func (w *Worker) refreshStats(ctx context.Context, q *store.Queries) error {
	stats, err := q.OutboxStats(ctx, w.clock.Now())
	if err != nil {
		return err
	}
	w.metrics.SetOutbox(stats.Depth, stats.Failing, stats.OldestPending.Seconds())
	return nil
}

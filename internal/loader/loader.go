// Package loader applies deduplication decisions to the canonical store. Each
// staged job is loaded in one transaction together with its source link and
// the vector index outbox entry, so a crash never leaves half a merge behind.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/dedup"
	"github.com/amishk599/jobcatalog/internal/lock"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/store"
)

const (
	defaultConflictAttempts = 3
	defaultBatchSize        = 500
	defaultWorkers          = 4
)

// Options tunes a Loader.
type Options struct {
	ConflictAttempts int // fresh transactions tried after a signature conflict
	BatchSize        int
	Workers          int
}

// Summary counts one Run.
type Summary struct {
	Staged    int
	Inserted  int
	Merged    int
	Review    int
	Conflicts int
	Failed    int // gave up after repeated signature conflicts
}

func (s *Summary) count(a dedup.Action) {
	s.Staged++
	switch a {
	case dedup.ActionInsert:
		s.Inserted++
	case dedup.ActionMerge:
		s.Merged++
	case dedup.ActionReview:
		s.Review++
	}
}

// Loader owns every write to canonical jobs.
type Loader struct {
	store  *store.Store
	dedup  *dedup.Deduplicator
	locker lock.Locker
	opts   Options
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a loader. locker serializes work per candidate signature.
func New(st *store.Store, d *dedup.Deduplicator, locker lock.Locker, opts Options, clk clock.Clock, logger *slog.Logger) *Loader {
	if opts.ConflictAttempts < 1 {
		opts.ConflictAttempts = defaultConflictAttempts
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers < 1 {
		opts.Workers = defaultWorkers
	}
	return &Loader{
		store:  st,
		dedup:  d,
		locker: locker,
		opts:   opts,
		clock:  clk,
		logger: logger.With("component", "loader"),
	}
}

// Run loads every pending staged job. A job that keeps losing signature
// conflicts is marked failed and skipped. Run stops at the first other error,
// which is always a storage failure or cancellation.
func (l *Loader) Run(ctx context.Context) (Summary, error) {
	var (
		sum Summary
		mu  sync.Mutex
	)
	for {
		pending, err := l.store.Queries().PendingStagedJobs(ctx, l.opts.BatchSize)
		if err != nil {
			return sum, err
		}
		if len(pending) == 0 {
			return sum, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.opts.Workers)
		for i := range pending {
			s := &pending[i]
			g.Go(func() error {
				dec, conflicts, err := l.apply(gctx, s)
				var conflict *model.DuplicateConflictError
				if errors.As(err, &conflict) {
					err = l.giveUp(gctx, s, err)
					mu.Lock()
					defer mu.Unlock()
					sum.Conflicts += conflicts
					if err == nil {
						sum.Failed++
					}
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				sum.Conflicts += conflicts
				if err != nil {
					return err
				}
				sum.count(dec.Action)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return sum, err
		}
	}
}

// giveUp records a staged job that exhausted its conflict retries.
func (l *Loader) giveUp(ctx context.Context, s *model.StagedJob, cause error) error {
	l.logger.Warn("staged job failed after signature conflicts",
		"staged_id", s.ID, "signature", s.Signature, "source", s.Source, "error", cause)
	if err := l.store.Queries().MarkStagedFailed(ctx, s.ID, cause.Error()); err != nil {
		return fmt.Errorf("mark staged job %s failed: %w", s.ID, err)
	}
	return nil
}

// Apply deduplicates and loads one staged job.
func (l *Loader) Apply(ctx context.Context, s *model.StagedJob) (dedup.Decision, error) {
	dec, _, err := l.apply(ctx, s)
	return dec, err
}

func (l *Loader) apply(ctx context.Context, s *model.StagedJob) (dedup.Decision, int, error) {
	release, err := l.locker.Lock(ctx, s.Signature)
	if err != nil {
		return dedup.Decision{}, 0, fmt.Errorf("lock signature %q: %w", s.Signature, err)
	}
	defer release()

	conflicts := 0
	for {
		var dec dedup.Decision
		err := l.store.WithTx(ctx, func(q *store.Queries) error {
			var err error
			dec, err = l.dedup.Check(ctx, q, s)
			if err != nil {
				return err
			}
			canonicalID, err := l.applyDecision(ctx, q, dec)
			if err != nil {
				return err
			}
			return q.MarkStagedLoaded(ctx, s.ID, canonicalID)
		})

		var conflict *model.DuplicateConflictError
		if errors.As(err, &conflict) && conflicts+1 < l.opts.ConflictAttempts {
			conflicts++
			l.logger.Debug("signature conflict, retrying", "staged_id", s.ID, "signature", conflict.Signature)
			continue
		}
		if err != nil {
			return dec, conflicts, fmt.Errorf("load staged job %s: %w", s.ID, err)
		}

		attrs := []any{"staged_id", s.ID, "action", dec.Action.String()}
		if dec.Match != nil {
			attrs = append(attrs, "canonical_id", dec.Match.Candidate.ID,
				"strategy", dec.Match.Strategy, "confidence", dec.Match.Confidence)
		}
		l.logger.Debug("loaded staged job", attrs...)
		return dec, conflicts, nil
	}
}

func (l *Loader) applyDecision(ctx context.Context, q *store.Queries, dec dedup.Decision) (string, error) {
	s := dec.Staged
	switch dec.Action {
	case dedup.ActionMerge:
		return dec.Match.Candidate.ID, l.merge(ctx, q, dec)
	case dedup.ActionReview:
		id, err := l.insert(ctx, q, s)
		if err != nil {
			return "", err
		}
		return id, l.link(ctx, q, dec, id, false)
	default:
		return l.insert(ctx, q, s)
	}
}

func (l *Loader) insert(ctx context.Context, q *store.Queries, s *model.StagedJob) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate canonical id: %w", err)
	}
	now := l.clock.Now()
	job := dedup.FromStaged(id.String(), s, now)
	if err := q.InsertCanonical(ctx, job); err != nil {
		return "", err
	}
	if _, err := q.AddSourceLink(ctx, job.ID, s.SourceRef()); err != nil {
		return "", err
	}
	if err := l.storeEmbedding(ctx, q, job.ID, s.Embedding); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (l *Loader) merge(ctx context.Context, q *store.Queries, dec dedup.Decision) error {
	s := dec.Staged
	existing := dec.Match.Candidate
	now := l.clock.Now()

	merged, changed := dedup.Merge(existing, s, now)
	if changed {
		if err := q.UpdateCanonical(ctx, merged); err != nil {
			return err
		}
	}
	if merged.Description != existing.Description {
		if err := l.dropEmbeddings(ctx, q, merged.ID); err != nil {
			return err
		}
	}
	if merged.Embedding != nil && merged.Embedding != existing.Embedding {
		if err := l.storeEmbedding(ctx, q, merged.ID, merged.Embedding); err != nil {
			return err
		}
	}
	if _, err := q.AddSourceLink(ctx, merged.ID, s.SourceRef()); err != nil {
		return err
	}
	// Re-sightings of the same signature are plain source links.
	if dec.Match.Strategy != model.StrategyExact {
		return l.link(ctx, q, dec, s.ID, true)
	}
	return nil
}

func (l *Loader) link(ctx context.Context, q *store.Queries, dec dedup.Decision, duplicateID string, auto bool) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate duplicate link id: %w", err)
	}
	now := l.clock.Now()
	link := &model.DuplicateLink{
		ID:            id.String(),
		CanonicalID:   dec.Match.Candidate.ID,
		DuplicateID:   duplicateID,
		Confidence:    dec.Match.Confidence,
		MatchedFields: dec.Match.Fields,
		Strategy:      dec.Match.Strategy,
		CreatedAt:     now,
	}
	if auto {
		link.Reviewed = true
		link.Resolution = model.ResolutionAuto
		link.ReviewedAt = &now
	}
	return q.InsertDuplicateLink(ctx, link)
}

// dropEmbeddings deletes the vectors of a job whose description changed and
// queues the index delete. The next backfill embeds the new text.
func (l *Loader) dropEmbeddings(ctx context.Context, q *store.Queries, canonicalID string) error {
	n, err := q.DeleteEmbeddings(ctx, canonicalID)
	if err != nil || n == 0 {
		return err
	}
	return q.EnqueueIndex(ctx, canonicalID, store.OpDelete, "", l.clock.Now())
}

// storeEmbedding writes the vector and queues the index update in the caller's transaction.
func (l *Loader) storeEmbedding(ctx context.Context, q *store.Queries, canonicalID string, e *model.Embedding) error {
	if e == nil {
		return nil
	}
	now := l.clock.Now()
	if err := q.UpsertEmbedding(ctx, canonicalID, e, now); err != nil {
		return err
	}
	return q.EnqueueIndex(ctx, canonicalID, store.OpUpsert, e.Model, now)
}

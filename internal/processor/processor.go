// Package processor turns pending raw collections into staged jobs: it maps
// source payloads onto the canonical schema, normalizes fields, extracts
// skills and embeds descriptions, isolating failures per item.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/retry"
	"github.com/amishk599/jobcatalog/internal/store"
)

// RawReader reads raw collections and their pending markers.
type RawReader interface {
	Get(ctx context.Context, id string) (*model.RawCollection, error)
	Pending(ctx context.Context, limit int) ([]string, error)
	Ack(ctx context.Context, id string) error
}

// ParserLookup selects the parser for a source identifier.
type ParserLookup interface {
	Parser(name string) (model.PostingParser, error)
}

// Options sizes the worker pools and the embedding retry policy.
type Options struct {
	BatchWorkers    int
	ItemWorkers     int
	EmbeddingPolicy retry.Policy
	Random          func() float64 // jitter source, nil for math/rand
}

// Summary counts one Run.
type Summary struct {
	Records          int
	Completed        int
	Partial          int
	Failed           int
	Items            int
	Succeeded        int
	ItemFailures     int
	EmbeddingPending int
}

func (s *Summary) add(rec *model.ProcessingRecord, embeddingPending int) {
	s.Records++
	switch rec.Status {
	case model.StatusCompleted:
		s.Completed++
	case model.StatusPartial:
		s.Partial++
	case model.StatusFailed:
		s.Failed++
	}
	s.Items += rec.TotalItems
	s.Succeeded += rec.Succeeded
	s.ItemFailures += rec.Failed
	s.EmbeddingPending += embeddingPending
}

// Processor owns the transform stage.
type Processor struct {
	raw       RawReader
	store     *store.Store
	parsers   ParserLookup
	taxonomy  model.SkillTaxonomy
	embedder  model.Embedder
	opts      Options
	clock     clock.Clock
	logger    *slog.Logger
	batchPool *ants.Pool
	itemPool  *ants.Pool
}

// New creates a processor and its worker pools. Call Release when done.
func New(
	raw RawReader,
	st *store.Store,
	parsers ParserLookup,
	taxonomy model.SkillTaxonomy,
	embedder model.Embedder,
	opts Options,
	clk clock.Clock,
	logger *slog.Logger,
) (*Processor, error) {
	if opts.BatchWorkers < 1 {
		opts.BatchWorkers = 1
	}
	if opts.ItemWorkers < 1 {
		opts.ItemWorkers = 1
	}
	if opts.EmbeddingPolicy.MaxAttempts < 1 {
		opts.EmbeddingPolicy.MaxAttempts = 1
	}

	batchPool, err := ants.NewPool(opts.BatchWorkers)
	if err != nil {
		return nil, fmt.Errorf("create batch pool: %w", err)
	}
	itemPool, err := ants.NewPool(opts.ItemWorkers)
	if err != nil {
		batchPool.Release()
		return nil, fmt.Errorf("create item pool: %w", err)
	}

	return &Processor{
		raw:       raw,
		store:     st,
		parsers:   parsers,
		taxonomy:  taxonomy,
		embedder:  embedder,
		opts:      opts,
		clock:     clk,
		logger:    logger.With("component", "processor"),
		batchPool: batchPool,
		itemPool:  itemPool,
	}, nil
}

// Release stops the worker pools.
func (p *Processor) Release() {
	p.batchPool.Release()
	p.itemPool.Release()
}

// Run resets records stranded by a crash, registers newly collected raw
// collections, and processes every pending record. Only storage failures
// are returned; item and batch failures land in the processing log.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	q := p.store.Queries()

	n, err := q.ResetStaleProcessing(ctx, p.clock.Now())
	if err != nil {
		return sum, err
	}
	if n > 0 {
		p.logger.Warn("reset records left in processing", "count", n)
	}

	if err := p.register(ctx); err != nil {
		return sum, err
	}

	for {
		records, err := q.PendingProcessingRecords(ctx, 0)
		if err != nil {
			return sum, err
		}
		if len(records) == 0 {
			return sum, nil
		}

		batchSum, err := p.processBatches(ctx, records)
		sum.merge(batchSum)
		if err != nil {
			return sum, err
		}
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
	}
}

func (s *Summary) merge(o Summary) {
	s.Records += o.Records
	s.Completed += o.Completed
	s.Partial += o.Partial
	s.Failed += o.Failed
	s.Items += o.Items
	s.Succeeded += o.Succeeded
	s.ItemFailures += o.ItemFailures
	s.EmbeddingPending += o.EmbeddingPending
}

// register creates a pending record for every unacknowledged raw collection.
func (p *Processor) register(ctx context.Context) error {
	ids, err := p.raw.Pending(ctx, 0)
	if err != nil {
		return err
	}
	q := p.store.Queries()
	for _, id := range ids {
		rc, err := p.raw.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, _, err := q.EnsureProcessingRecord(ctx, id, rc.Source, p.clock.Now()); err != nil {
			return err
		}
		if err := p.raw.Ack(ctx, id); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		p.logger.Debug("registered raw collections", "count", len(ids))
	}
	return nil
}

func (p *Processor) processBatches(ctx context.Context, records []model.ProcessingRecord) (Summary, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		sum      Summary
		firstErr error
	)
	for i := range records {
		rec := records[i]
		wg.Add(1)
		err := p.batchPool.Submit(func() {
			defer wg.Done()
			out, pending, err := p.processRecord(ctx, rec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if out != nil {
				sum.add(out, pending)
			}
		})
		if err != nil {
			wg.Done()
			return sum, fmt.Errorf("submit batch %s: %w", rec.ID, err)
		}
	}
	wg.Wait()
	return sum, firstErr
}

// Reprocess creates a fresh record for an already processed collection and
// processes it immediately.
func (p *Processor) Reprocess(ctx context.Context, rawID string) (*model.ProcessingRecord, error) {
	rc, err := p.raw.Get(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("reprocess %s: %w", rawID, err)
	}
	rec, err := p.store.Queries().CreateProcessingRecord(ctx, rawID, rc.Source, p.clock.Now())
	if err != nil {
		return nil, err
	}
	out, _, err := p.processRecord(ctx, *rec)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// processRecord claims rec, transforms its raw collection and commits the
// outcome. A nil record means another worker owns it.
func (p *Processor) processRecord(ctx context.Context, rec model.ProcessingRecord) (*model.ProcessingRecord, int, error) {
	q := p.store.Queries()
	claimed, err := q.ClaimProcessingRecord(ctx, rec.ID, p.clock.Now())
	if err != nil || !claimed {
		return nil, 0, err
	}
	rec.Status = model.StatusProcessing

	logger := p.logger.With("record_id", rec.ID, "raw_id", rec.RawCollectionID, "source", rec.Source)

	rc, err := p.raw.Get(ctx, rec.RawCollectionID)
	if err != nil {
		return nil, 0, err
	}

	staged, embeddingPending := p.transform(ctx, &rec, rc)
	if ctx.Err() != nil {
		// Leave the record in processing; the next run resets it.
		return nil, 0, ctx.Err()
	}

	rec.UpdatedAt = p.clock.Now()
	err = p.store.WithTx(ctx, func(q *store.Queries) error {
		return q.FinishProcessingRecord(ctx, &rec, staged)
	})
	if err != nil {
		return nil, 0, err
	}

	logger.Info("processed batch",
		"status", rec.Status,
		"items", rec.TotalItems,
		"succeeded", rec.Succeeded,
		"failed", rec.Failed,
		"embedding_pending", embeddingPending,
	)
	return &rec, embeddingPending, nil
}

// transform fills rec's counts and errors and returns the staged jobs.
func (p *Processor) transform(ctx context.Context, rec *model.ProcessingRecord, rc *model.RawCollection) ([]model.StagedJob, int) {
	if rc.Status == model.FetchFailed && len(rc.Payload) == 0 {
		rec.Status = model.StatusFailed
		rec.Message = "fetch failed: " + rc.Error
		return nil, 0
	}

	parser, err := p.parsers.Parser(rc.Source)
	if err != nil {
		p.failWhole(rec, rc, err)
		return nil, 0
	}

	items, err := parser.Split(rc.Payload)
	if err != nil {
		p.failWhole(rec, rc, fmt.Errorf("split payload: %w", err))
		return nil, 0
	}
	if len(items) == 0 && rc.Status == model.FetchFailed {
		rec.Status = model.StatusFailed
		rec.Message = "fetch failed: " + rc.Error
		return nil, 0
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		staged   = make([]*model.StagedJob, len(items))
		itemErrs []model.ItemError
		pending  atomic.Int32
		outage   atomic.Bool
	)
	for i, item := range items {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			s, embedded, err := p.item(ctx, rec, rc, parser, i, item, &outage)
			if err != nil {
				mu.Lock()
				itemErrs = append(itemErrs, model.ItemError{Index: i, Message: err.Error(), Payload: item})
				mu.Unlock()
				return
			}
			if !embedded {
				pending.Add(1)
			}
			staged[i] = s
		}
		if err := p.itemPool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	out := make([]model.StagedJob, 0, len(items))
	for _, s := range staged {
		if s != nil {
			out = append(out, *s)
		}
	}
	sortItemErrors(itemErrs)

	rec.TotalItems = len(items)
	rec.Succeeded = len(out)
	rec.Failed = len(itemErrs)
	rec.Errors = itemErrs
	rec.Status = model.OutcomeStatus(rec.Succeeded, rec.Failed)
	if rc.Status == model.FetchFailed {
		rec.Message = "salvaged from failed fetch: " + rc.Error
	}
	return out, int(pending.Load())
}

// failWhole records an unreadable payload as one failed item.
func (p *Processor) failWhole(rec *model.ProcessingRecord, rc *model.RawCollection, err error) {
	rec.TotalItems, rec.Succeeded, rec.Failed = 1, 0, 1
	rec.Errors = []model.ItemError{{Index: 0, Message: err.Error(), Payload: rc.Payload}}
	rec.Status = model.StatusFailed
	rec.Message = err.Error()
}

func sortItemErrors(errs []model.ItemError) {
	slices.SortFunc(errs, func(a, b model.ItemError) int { return a.Index - b.Index })
}

// embed generates a vector for text through the retry machine. Exhaustion
// returns *model.EmbeddingGenerationError.
func (p *Processor) embed(ctx context.Context, text string) (*model.Embedding, error) {
	if p.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	opts := []retry.Option{retry.WithLogger(p.logger)}
	if p.opts.Random != nil {
		opts = append(opts, retry.WithRandom(p.opts.Random))
	}
	machine := retry.NewMachine(p.opts.EmbeddingPolicy, p.clock, opts...)

	var vec []float32
	res := machine.Run(ctx, func(ctx context.Context, _ int) error {
		out, err := p.embedder.Embed(ctx, []string{text})
		if err != nil {
			return err
		}
		if len(out) != 1 || len(out[0]) == 0 {
			return fmt.Errorf("embedder returned %d vectors", len(out))
		}
		vec = out[0]
		return nil
	})
	if res.State != retry.Succeeded {
		return nil, &model.EmbeddingGenerationError{Model: p.embedder.Model(), Attempts: res.Attempts, Err: res.Err}
	}
	return &model.Embedding{Model: p.embedder.Model(), Vector: vec}, nil
}

// EmbedText exposes the processor's embedding path for backfills.
func (p *Processor) EmbedText(ctx context.Context, text string) (*model.Embedding, error) {
	return p.embed(ctx, text)
}

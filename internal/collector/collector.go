// Package collector fetches pages from job sources and persists every
// response, successful or not, as a raw collection.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobcatalog/internal/adapter"
	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/ratelimit"
	"github.com/amishk599/jobcatalog/internal/retry"
)

// SourceLookup resolves a source identifier.
type SourceLookup interface {
	Get(name string) (adapter.Source, bool)
}

// RawWriter persists raw collections.
type RawWriter interface {
	Put(ctx context.Context, rc *model.RawCollection) error
}

// Options bound the collector's external calls.
type Options struct {
	Policy   retry.Policy
	Timeout  time.Duration // per attempt
	MaxPages int
	Random   func() float64 // jitter source, nil for math/rand
}

// Collector issues source requests through the source's limiter and the
// retry machine, and writes the result before returning.
type Collector struct {
	sources  SourceLookup
	raw      RawWriter
	limiters *ratelimit.Registry
	opts     Options
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a collector wired with all its dependencies.
func New(sources SourceLookup, raw RawWriter, limiters *ratelimit.Registry, opts Options, clk clock.Clock, logger *slog.Logger) *Collector {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	return &Collector{
		sources:  sources,
		raw:      raw,
		limiters: limiters,
		opts:     opts,
		clock:    clk,
		logger:   logger.With("component", "collector"),
	}
}

// Collect fetches one page and persists it. The returned collection is
// non-nil whenever a request was attempted, even when err is non-nil.
// err is a *model.StorageError when the collection could not be written.
func (c *Collector) Collect(ctx context.Context, source string, q model.Query) (*model.RawCollection, error) {
	src, ok := c.sources.Get(source)
	if !ok {
		return nil, fmt.Errorf("collect: unknown source %q", source)
	}
	limiter := c.limiters.For(source)

	var last model.SourcePage
	opts := []retry.Option{
		retry.WithClassifier(retry.IsTransient),
		retry.WithLogger(c.logger.With("source", source)),
	}
	if c.opts.Random != nil {
		opts = append(opts, retry.WithRandom(c.opts.Random))
	}
	machine := retry.NewMachine(c.opts.Policy, c.clock, opts...)

	result := machine.Run(ctx, func(ctx context.Context, attempt int) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		page, err := c.fetchOnce(ctx, src, q)
		if page.StatusCode != 0 || len(page.Payload) > 0 {
			last = page
		}
		return err
	})

	rc := &model.RawCollection{
		CollectedAt:   c.clock.Now(),
		Source:        source,
		Query:         q,
		Payload:       last.Payload,
		HTTPStatus:    last.StatusCode,
		Attempts:      result.Attempts,
		NextPageToken: last.NextPageToken,
		Status:        model.FetchSucceeded,
	}

	var fetchErr error
	if result.State == retry.Failed {
		fetchErr = result.Err
		rc.Status = model.FetchFailed
		rc.Error = result.Err.Error()
		rc.NextPageToken = ""
	} else if _, err := src.Parser.Split(last.Payload); err != nil {
		fetchErr = &model.MalformedDataError{Index: -1, Payload: last.Payload, Err: err}
		rc.Status = model.FetchFailed
		rc.Error = fetchErr.Error()
		rc.NextPageToken = ""
	}

	// Persist even when the run was cancelled mid-fetch.
	if err := c.raw.Put(context.WithoutCancel(ctx), rc); err != nil {
		var storageErr *model.StorageError
		if errors.As(err, &storageErr) {
			return nil, err
		}
		return nil, &model.StorageError{Op: "persist raw collection", Err: err}
	}

	logger := c.logger.With(
		"source", source,
		"raw_id", rc.ID,
		"status", rc.Status,
		"http_status", rc.HTTPStatus,
		"attempts", rc.Attempts,
		"bytes", len(rc.Payload),
	)
	if fetchErr != nil {
		logger.Warn("collection failed", "error", fetchErr)
		return rc, fmt.Errorf("collect %s: %w", source, fetchErr)
	}
	logger.Info("collected page")
	return rc, nil
}

// fetchOnce runs one attempt under the per-attempt timeout. An attempt that
// times out while the caller is still waiting counts as transient.
func (c *Collector) fetchOnce(ctx context.Context, src adapter.Source, q model.Query) (model.SourcePage, error) {
	attemptCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	page, err := src.Client.Fetch(attemptCtx, q)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = &model.TransientSourceError{Source: src.Name, Err: fmt.Errorf("attempt timed out after %s: %w", c.opts.Timeout, err)}
	}
	return page, err
}

// CollectAll follows next-page tokens until the source runs out of pages,
// a page fails, or MaxPages is reached.
func (c *Collector) CollectAll(ctx context.Context, source string, q model.Query) ([]*model.RawCollection, error) {
	var out []*model.RawCollection
	for page := 0; page < c.opts.MaxPages; page++ {
		rc, err := c.Collect(ctx, source, q)
		if rc != nil {
			out = append(out, rc)
		}
		if err != nil {
			return out, err
		}
		if rc.NextPageToken == "" || ctx.Err() != nil {
			break
		}
		q.PageToken = rc.NextPageToken
	}
	return out, nil
}

// Target is one (source, query) pair to collect.
type Target struct {
	Source string
	Query  model.Query
}

// Summary counts the outcome of Run.
type Summary struct {
	Collections []*model.RawCollection
	Succeeded   int
	Failed      int
}

// Run collects all targets. Targets of different sources run concurrently;
// targets of one source run in order so they share its limiter politely.
// Only storage failures are returned as errors; fetch failures are counted.
func (c *Collector) Run(ctx context.Context, targets []Target) (Summary, error) {
	bySource := make(map[string][]Target)
	var order []string
	for _, t := range targets {
		if _, seen := bySource[t.Source]; !seen {
			order = append(order, t.Source)
		}
		bySource[t.Source] = append(bySource[t.Source], t)
	}

	results := make([][]*model.RawCollection, len(order))
	failures := make([]int, len(order))

	g, gctx := errgroup.WithContext(ctx)
	for i, source := range order {
		g.Go(func() error {
			for _, t := range bySource[source] {
				if gctx.Err() != nil {
					return nil
				}
				rcs, err := c.CollectAll(gctx, t.Source, t.Query)
				results[i] = append(results[i], rcs...)
				if err == nil {
					continue
				}
				var storageErr *model.StorageError
				if errors.As(err, &storageErr) {
					return err
				}
				failures[i]++
			}
			return nil
		})
	}
	err := g.Wait()

	var sum Summary
	for i := range order {
		sum.Collections = append(sum.Collections, results[i]...)
		sum.Failed += failures[i]
	}
	for _, rc := range sum.Collections {
		if rc.Status == model.FetchSucceeded {
			sum.Succeeded++
		}
	}
	return sum, err
}

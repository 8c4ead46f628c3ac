// Package orchestrator sequences one pipeline run: collect, settle,
// process, then deduplicate and load. It owns the run report.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/collector"
	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/loader"
	"github.com/amishk599/jobcatalog/internal/metrics"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/notifier"
	"github.com/amishk599/jobcatalog/internal/processor"
	"github.com/amishk599/jobcatalog/internal/store"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

const defaultBackfillLimit = 500

// Collector gathers raw pages.
type Collector interface {
	Run(ctx context.Context, targets []collector.Target) (collector.Summary, error)
}

// Processor turns pending raw collections into staged jobs.
type Processor interface {
	Run(ctx context.Context) (processor.Summary, error)
}

// Loader deduplicates and loads staged jobs.
type Loader interface {
	Run(ctx context.Context) (loader.Summary, error)
	BackfillEmbeddings(ctx context.Context, emb loader.TextEmbedder, modelID string, limit int) (int, error)
}

// RunHistory reads persisted reports.
type RunHistory interface {
	LatestRun(ctx context.Context) (*store.RunRow, error)
}

// RunStore persists reports and reads catalog gauges. *store.Queries satisfies it.
type RunStore interface {
	RunHistory
	SaveRun(ctx context.Context, id, status string, cancelled bool, started time.Time, finished *time.Time, report []byte) error
	CountCanonical(ctx context.Context) (int, error)
	CountUnreviewed(ctx context.Context) (int, error)
}

// Options configure a run.
type Options struct {
	Targets        []collector.Target
	SettleDelay    time.Duration
	RunTimeout     time.Duration
	Embedder       loader.TextEmbedder // nil disables backfill
	EmbeddingModel string
	BackfillLimit  int
}

// Orchestrator runs the pipeline stages in order, one run at a time.
type Orchestrator struct {
	collector Collector
	processor Processor
	loader    Loader
	runs      RunStore
	notifier  notifier.Notifier
	metrics   *metrics.Metrics
	opts      Options
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	current *model.RunReport
}

// New creates an orchestrator wired with all its dependencies.
func New(
	c Collector,
	p Processor,
	l Loader,
	runs RunStore,
	n notifier.Notifier,
	m *metrics.Metrics,
	opts Options,
	clk clock.Clock,
	logger *slog.Logger,
) *Orchestrator {
	if opts.BackfillLimit <= 0 {
		opts.BackfillLimit = defaultBackfillLimit
	}
	return &Orchestrator{
		collector: c,
		processor: p,
		loader:    l,
		runs:      runs,
		notifier:  n,
		metrics:   m,
		opts:      opts,
		clock:     clk,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Targets crosses every enabled source with every configured query. A source
// with no queries is collected once with an empty query.
func Targets(cfg *config.Config) []collector.Target {
	var out []collector.Target
	for _, s := range cfg.EnabledSources() {
		if len(cfg.Queries) == 0 {
			out = append(out, collector.Target{Source: s.Name})
			continue
		}
		for _, q := range cfg.Queries {
			out = append(out, collector.Target{
				Source: s.Name,
				Query:  model.Query{Text: q.Text, Location: q.Location},
			})
		}
	}
	return out
}

// State returns the active run's state, or idle.
func (o *Orchestrator) State() model.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return model.RunIdle
	}
	return o.current.State
}

// Current returns a copy of the active run's report, or nil when idle.
func (o *Orchestrator) Current() *model.RunReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil
	}
	return snapshot(o.current)
}

// Latest returns the active run's report, or the last persisted one.
// store.ErrNotFound means no run has ever started.
func (o *Orchestrator) Latest(ctx context.Context) (*model.RunReport, error) {
	if r := o.Current(); r != nil {
		return r, nil
	}
	return LatestReport(ctx, o.runs)
}

// Run executes one full run and returns its final report. Committed work is
// kept when the run fails or is cancelled. The returned error is the reason a
// failed run stopped; the report is returned either way.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunReport, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.current = &model.RunReport{ID: id.String(), State: model.RunIdle, StartedAt: o.clock.Now()}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()
	}()

	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	logger := o.logger.With("run_id", id.String())
	logger.Info("run started", "targets", len(o.opts.Targets))

	runErr := o.execute(ctx, logger)
	return o.finish(ctx, runErr, logger)
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger) error {
	err := o.stage(ctx, model.RunCollecting, func(st *model.StageReport) error {
		sum, err := o.collector.Run(ctx, o.opts.Targets)
		o.update(func(r *model.RunReport) {
			st.Items = len(sum.Collections)
			st.Failed = sum.Failed
			r.Collected = sum.Succeeded
			r.Failed += sum.Failed
		})
		for _, rc := range sum.Collections {
			o.metrics.Collected(rc.Source, string(rc.Status))
		}
		return err
	})
	if err != nil {
		return err
	}

	if o.opts.SettleDelay > 0 {
		logger.Debug("settling", "delay", o.opts.SettleDelay)
		if err := o.clock.Sleep(ctx, o.opts.SettleDelay); err != nil {
			return err
		}
	}

	err = o.stage(ctx, model.RunProcessing, func(st *model.StageReport) error {
		sum, err := o.processor.Run(ctx)
		o.update(func(r *model.RunReport) {
			st.Items = sum.Items
			st.Failed = sum.ItemFailures
			r.Processed = sum.Succeeded
			r.Failed += sum.ItemFailures
		})
		if sum.EmbeddingPending > 0 {
			logger.Warn("items staged without embeddings", "count", sum.EmbeddingPending)
		}
		return err
	})
	if err != nil {
		return err
	}

	return o.stage(ctx, model.RunLoading, func(st *model.StageReport) error {
		sum, err := o.loader.Run(ctx)
		o.update(func(r *model.RunReport) {
			st.Items = sum.Staged + sum.Failed
			st.Failed = sum.Failed
			r.Failed += sum.Failed
			r.Loaded = sum.Inserted
			r.Duplicates = sum.Merged
			r.Review = sum.Review
		})
		if sum.Conflicts > 0 {
			logger.Info("signature conflicts retried", "count", sum.Conflicts)
		}
		if err != nil || o.opts.Embedder == nil {
			return err
		}

		n, err := o.loader.BackfillEmbeddings(ctx, o.opts.Embedder, o.opts.EmbeddingModel, o.opts.BackfillLimit)
		o.update(func(r *model.RunReport) { r.Backfilled = n })
		return err
	})
}

// stage moves the run into name, persists the report, runs fn and times it.
func (o *Orchestrator) stage(ctx context.Context, name model.RunState, fn func(st *model.StageReport) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var st *model.StageReport
	o.update(func(r *model.RunReport) {
		r.State = name
		r.Stages = append(r.Stages, model.StageReport{Name: name, StartedAt: o.clock.Now()})
		st = &r.Stages[len(r.Stages)-1]
	})
	if err := o.save(ctx); err != nil {
		return err
	}

	start := o.clock.Now()
	err := fn(st)
	finished := o.clock.Now()

	var items, failed int
	o.update(func(*model.RunReport) {
		st.FinishedAt = &finished
		items, failed = st.Items, st.Failed
	})
	o.metrics.ObserveStage(string(name), finished.Sub(start).Seconds())
	o.metrics.AddItems(string(name), "succeeded", items-failed)
	o.metrics.AddItems(string(name), "failed", failed)
	return err
}

func (o *Orchestrator) finish(ctx context.Context, runErr error, logger *slog.Logger) (*model.RunReport, error) {
	cancelled := runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled))
	// The report must be written even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)

	now := o.clock.Now()
	o.update(func(r *model.RunReport) {
		r.FinishedAt = &now
		if runErr == nil {
			r.State = model.RunCompleted
			return
		}
		r.State = model.RunFailed
		r.Cancelled = cancelled
		r.Error = runErr.Error()
	})

	saveErr := o.save(ctx)
	report := o.Current()

	o.metrics.RunFinished(string(report.State), report.State == model.RunCompleted)
	o.refreshCatalog(ctx, logger)

	switch {
	case runErr == nil:
		logger.Info("run completed",
			"duration", report.Duration(),
			"collected", report.Collected,
			"processed", report.Processed,
			"loaded", report.Loaded,
			"duplicates", report.Duplicates,
			"review", report.Review,
			"failed", report.Failed,
		)
	case cancelled:
		logger.Warn("run cancelled", "stage", lastStage(report))
	default:
		logger.Error("run failed", "stage", lastStage(report), "error", runErr)
		o.alert(ctx, report, runErr, logger)
	}

	if err := o.notifier.RunFinished(ctx, *report); err != nil {
		logger.Warn("run summary not delivered", "error", err)
	}

	if saveErr != nil {
		logger.Error("run report not saved", "error", saveErr)
		if runErr == nil {
			runErr = saveErr
		}
	}
	return report, runErr
}

func (o *Orchestrator) alert(ctx context.Context, r *model.RunReport, runErr error, logger *slog.Logger) {
	msg := "run failed"
	var storageErr *model.StorageError
	if errors.As(runErr, &storageErr) {
		msg = "run halted on storage failure"
	}
	a := model.Alert{
		RunID:   r.ID,
		Stage:   lastStage(r),
		Message: msg,
		Err:     runErr.Error(),
		Time:    o.clock.Now(),
	}
	if err := o.notifier.Alert(ctx, a); err != nil {
		logger.Warn("alert not delivered", "error", err)
	}
}

func (o *Orchestrator) refreshCatalog(ctx context.Context, logger *slog.Logger) {
	canonical, err := o.runs.CountCanonical(ctx)
	if err != nil {
		logger.Warn("count canonical jobs", "error", err)
		return
	}
	review, err := o.runs.CountUnreviewed(ctx)
	if err != nil {
		logger.Warn("count review queue", "error", err)
		return
	}
	o.metrics.SetCatalog(canonical, review)
}

func (o *Orchestrator) update(fn func(r *model.RunReport)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.current)
}

func (o *Orchestrator) save(ctx context.Context) error {
	r := o.Current()
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	return o.runs.SaveRun(ctx, r.ID, string(r.State), r.Cancelled, r.StartedAt, r.FinishedAt, body)
}

// LatestReport decodes the most recently started run.
func LatestReport(ctx context.Context, h RunHistory) (*model.RunReport, error) {
	row, err := h.LatestRun(ctx)
	if err != nil {
		return nil, err
	}
	var r model.RunReport
	if err := json.Unmarshal([]byte(row.Report), &r); err != nil {
		return nil, fmt.Errorf("decode run report %s: %w", row.ID, err)
	}
	return &r, nil
}

func lastStage(r *model.RunReport) model.RunState {
	if len(r.Stages) == 0 {
		return model.RunIdle
	}
	return r.Stages[len(r.Stages)-1].Name
}

func snapshot(r *model.RunReport) *model.RunReport {
	cp := *r
	cp.Stages = make([]model.StageReport, len(r.Stages))
	copy(cp.Stages, r.Stages)
	return &cp
}

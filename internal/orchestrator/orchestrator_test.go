package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/collector"
	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/loader"
	"github.com/amishk599/jobcatalog/internal/metrics"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/processor"
	"github.com/amishk599/jobcatalog/internal/store"
)

var testNow = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCollector struct {
	sum     collector.Summary
	err     error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeCollector) Run(ctx context.Context, _ []collector.Target) (collector.Summary, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return f.sum, nil
		}
	}
	return f.sum, f.err
}

type fakeProcessor struct {
	sum   processor.Summary
	err   error
	calls int
}

func (f *fakeProcessor) Run(context.Context) (processor.Summary, error) {
	f.calls++
	return f.sum, f.err
}

type fakeLoader struct {
	sum        loader.Summary
	err        error
	backfilled int
	calls      int
}

func (f *fakeLoader) Run(context.Context) (loader.Summary, error) {
	f.calls++
	return f.sum, f.err
}

func (f *fakeLoader) BackfillEmbeddings(context.Context, loader.TextEmbedder, string, int) (int, error) {
	return f.backfilled, nil
}

type memRuns struct {
	mu    sync.Mutex
	saves []string // status of every save
	last  []byte
	err   error
}

func (m *memRuns) SaveRun(_ context.Context, _ string, status string, _ bool, _ time.Time, _ *time.Time, report []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves = append(m.saves, status)
	m.last = report
	return nil
}

func (m *memRuns) LatestRun(context.Context) (*store.RunRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil, store.ErrNotFound
	}
	return &store.RunRow{ID: "last", Report: string(m.last)}, nil
}

func (m *memRuns) CountCanonical(context.Context) (int, error)  { return 12, nil }
func (m *memRuns) CountUnreviewed(context.Context) (int, error) { return 1, nil }

type recordingNotifier struct {
	mu     sync.Mutex
	runs   []model.RunReport
	alerts []model.Alert
}

func (n *recordingNotifier) RunFinished(_ context.Context, r model.RunReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, r)
	return nil
}

func (n *recordingNotifier) Alert(_ context.Context, a model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedText(context.Context, string) (*model.Embedding, error) {
	return &model.Embedding{Model: "m", Vector: []float32{1}}, nil
}

type fixture struct {
	col   *fakeCollector
	proc  *fakeProcessor
	load  *fakeLoader
	runs  *memRuns
	note  *recordingNotifier
	clock *clock.Fake
	m     *metrics.Metrics
}

func newFixture() *fixture {
	return &fixture{
		col: &fakeCollector{sum: collector.Summary{
			Collections: []*model.RawCollection{
				{Source: "acme-gh", Status: model.FetchSucceeded},
				{Source: "acme-lever", Status: model.FetchFailed},
			},
			Succeeded: 1,
			Failed:    1,
		}},
		proc:  &fakeProcessor{sum: processor.Summary{Records: 1, Items: 10, Succeeded: 8, ItemFailures: 2}},
		load:  &fakeLoader{sum: loader.Summary{Staged: 8, Inserted: 5, Merged: 2, Review: 1}, backfilled: 3},
		runs:  &memRuns{},
		note:  &recordingNotifier{},
		clock: clock.NewFake(testNow),
		m:     metrics.New(),
	}
}

func (f *fixture) orchestrator(opts Options) *Orchestrator {
	return New(f.col, f.proc, f.load, f.runs, f.note, f.m, opts, f.clock, discardLogger())
}

func TestRun_CompletesAllStages(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(Options{SettleDelay: 5 * time.Second, Embedder: fakeEmbedder{}, EmbeddingModel: "m"})

	r, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, r.State)
	assert.False(t, r.Cancelled)
	assert.Equal(t, 1, r.Collected)
	assert.Equal(t, 8, r.Processed)
	assert.Equal(t, 5, r.Loaded)
	assert.Equal(t, 2, r.Duplicates)
	assert.Equal(t, 1, r.Review)
	assert.Equal(t, 3, r.Failed, "one failed fetch plus two failed items")
	assert.Equal(t, 3, r.Backfilled)

	require.Len(t, r.Stages, 3)
	for i, name := range []model.RunState{model.RunCollecting, model.RunProcessing, model.RunLoading} {
		assert.Equal(t, name, r.Stages[i].Name)
		assert.NotNil(t, r.Stages[i].FinishedAt)
	}
	assert.Equal(t, 2, r.Stage(model.RunCollecting).Items, "failed fetches are persisted too")
	assert.Equal(t, 1, r.Stage(model.RunCollecting).Failed)
	assert.Equal(t, 2, r.Stage(model.RunProcessing).Failed)
	assert.Equal(t, 5*time.Second, r.Duration())
	assert.Equal(t, []time.Duration{5 * time.Second}, f.clock.Sleeps())

	// One save per stage plus the final report.
	assert.Equal(t, []string{"collecting", "processing", "loading", "completed"}, f.runs.saves)
	require.Len(t, f.note.runs, 1)
	assert.Empty(t, f.note.alerts)
	assert.Equal(t, model.RunIdle, o.State())
	assert.Nil(t, o.Current())

	latest, err := o.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r.ID, latest.ID)
	assert.Equal(t, model.RunCompleted, latest.State)
}

func TestRun_StorageFailureHaltsAndAlerts(t *testing.T) {
	f := newFixture()
	f.proc.err = &model.StorageError{Op: "finish processing record", Err: errors.New("disk I/O error")}
	o := f.orchestrator(Options{})

	r, err := o.Run(context.Background())
	var storageErr *model.StorageError
	require.ErrorAs(t, err, &storageErr)

	assert.Equal(t, model.RunFailed, r.State)
	assert.False(t, r.Cancelled)
	assert.Contains(t, r.Error, "disk I/O error")
	assert.Equal(t, 0, f.load.calls, "loading must not start after a storage failure")
	require.Len(t, r.Stages, 2)

	require.Len(t, f.note.alerts, 1)
	assert.Equal(t, "run halted on storage failure", f.note.alerts[0].Message)
	assert.Equal(t, model.RunProcessing, f.note.alerts[0].Stage)
	assert.Equal(t, r.ID, f.note.alerts[0].RunID)
	require.Len(t, f.note.runs, 1)
	assert.Equal(t, "failed", f.runs.saves[len(f.runs.saves)-1])
}

func TestRun_CancelledRunIsFailedAndCancelled(t *testing.T) {
	f := newFixture()
	f.col.started = make(chan struct{})
	f.col.block = make(chan struct{})
	o := f.orchestrator(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *model.RunReport)
	go func() {
		r, _ := o.Run(ctx)
		done <- r
	}()

	<-f.col.started
	assert.Equal(t, model.RunCollecting, o.State())
	cancel()

	r := <-done
	assert.Equal(t, model.RunFailed, r.State)
	assert.True(t, r.Cancelled)
	assert.Equal(t, 0, f.proc.calls)
	assert.Empty(t, f.note.alerts, "cancellation is not an alert")
	assert.Equal(t, "failed", f.runs.saves[len(f.runs.saves)-1], "the final report is saved despite cancellation")
}

func TestRun_OneAtATime(t *testing.T) {
	f := newFixture()
	f.col.started = make(chan struct{})
	f.col.block = make(chan struct{})
	o := f.orchestrator(Options{})

	done := make(chan error)
	go func() {
		_, err := o.Run(context.Background())
		done <- err
	}()
	<-f.col.started

	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	require.NotNil(t, o.Current())
	active, err := o.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunCollecting, active.State)

	close(f.col.block)
	require.NoError(t, <-done)
	assert.Len(t, f.note.runs, 1)
}

func TestRun_SaveFailureFailsRun(t *testing.T) {
	f := newFixture()
	f.runs.err = &model.StorageError{Op: "save run", Err: errors.New("database is locked")}
	o := f.orchestrator(Options{})

	r, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.RunFailed, r.State)
	require.Len(t, f.note.alerts, 1)
}

func TestTargets(t *testing.T) {
	cfg := &config.Config{
		Sources: []config.SourceConfig{
			{Name: "a", Enabled: true},
			{Name: "b", Enabled: false},
			{Name: "c", Enabled: true},
		},
		Queries: []config.QueryConfig{{Text: "go"}, {Text: "rust", Location: "Remote"}},
	}
	got := Targets(cfg)
	require.Len(t, got, 4)
	assert.Equal(t, collector.Target{Source: "a", Query: model.Query{Text: "go"}}, got[0])
	assert.Equal(t, collector.Target{Source: "c", Query: model.Query{Text: "rust", Location: "Remote"}}, got[3])

	cfg.Queries = nil
	assert.Equal(t, []collector.Target{{Source: "a"}, {Source: "c"}}, Targets(cfg))
}

func TestLatestReport_NotFound(t *testing.T) {
	st := openStore(t)
	_, err := LatestReport(context.Background(), st.Queries())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

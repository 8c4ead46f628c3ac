package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobcatalog/internal/adapter"
	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/collector"
	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/dedup"
	"github.com/amishk599/jobcatalog/internal/embed"
	"github.com/amishk599/jobcatalog/internal/kv"
	"github.com/amishk599/jobcatalog/internal/loader"
	"github.com/amishk599/jobcatalog/internal/lock"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/processor"
	"github.com/amishk599/jobcatalog/internal/ratelimit"
	"github.com/amishk599/jobcatalog/internal/rawstore"
	"github.com/amishk599/jobcatalog/internal/retry"
	"github.com/amishk599/jobcatalog/internal/skills"
	"github.com/amishk599/jobcatalog/internal/store"
)

const embeddingModel = "hash-v1"

// Titles are far apart so only exact re-sightings deduplicate.
var boardTitles = []string{
	"", // ids start at 1
	"Accountant", "Barista Trainer", "Chemist", "Data Scientist",
	"Electrician", "Flight Dispatcher", "Graphic Designer", "Hydrologist",
	"Interpreter", "Janitor", "Kernel Developer", "Librarian",
}

// board serves a greenhouse job board whose contents tests can swap.
type board struct {
	mu   sync.Mutex
	from int
	to   int
}

func (b *board) set(from, to int) {
	b.mu.Lock()
	b.from, b.to = from, to
	b.mu.Unlock()
}

func (b *board) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	from, to := b.from, b.to
	b.mu.Unlock()

	jobs := []map[string]any{}
	for i := from; i <= to && i > 0; i++ {
		title := boardTitles[i]
		jobs = append(jobs, map[string]any{
			"id":           i,
			"title":        title,
			"location":     map[string]string{"name": "Austin, Texas"},
			"absolute_url": fmt.Sprintf("https://boards.greenhouse.io/acme/jobs/%d", i),
			"updated_at":   "2026-05-18T10:00:00Z",
			"content":      fmt.Sprintf("&lt;p&gt;We need a %s. Pay: $90,000 - $120,000/yr&lt;/p&gt;", title),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"jobs": jobs})
}

// switchEmbedder is a hash embedder that can be taken down.
type switchEmbedder struct {
	*embed.HashEmbedder
	down atomic.Bool
}

func (s *switchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.down.Load() {
		return nil, errors.New("503 service unavailable")
	}
	return s.HashEmbedder.Embed(ctx, texts)
}

type pipeline struct {
	store    *store.Store
	board    *board
	embedder *switchEmbedder
	orch     *Orchestrator
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), config.StorageConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "catalog.db"),
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := discardLogger()

	b := &board{}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	st := openStore(t)
	backend, err := kv.Open("", true, logger)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	raw := rawstore.New(backend)

	reg, err := adapter.NewRegistry([]config.SourceConfig{
		{Name: "acme-gh", Kind: "greenhouse", Company: "Acme", BoardToken: "acme", BaseURL: srv.URL, Enabled: true},
	}, srv.Client())
	require.NoError(t, err)

	tax, err := skills.Default()
	require.NoError(t, err)

	clk := clock.NewFake(testNow)
	emb := &switchEmbedder{HashEmbedder: embed.NewHashEmbedder(embeddingModel, 64)}

	col := collector.New(reg, raw, ratelimit.NewRegistry(), collector.Options{
		Policy:   retry.Policy{MaxAttempts: 1},
		Timeout:  5 * time.Second,
		MaxPages: 1,
	}, clk, logger)

	proc, err := processor.New(raw, st, reg, tax, emb, processor.Options{
		BatchWorkers:    2,
		ItemWorkers:     4,
		EmbeddingPolicy: retry.Policy{MaxAttempts: 2, BaseDelay: time.Second},
		Random:          func() float64 { return 0.5 },
	}, clk, logger)
	require.NoError(t, err)
	t.Cleanup(proc.Release)

	ld := loader.New(st, dedup.New(config.DedupConfig{}), lock.NewKeyedMutex(), loader.Options{}, clk, logger)

	orch := New(col, proc, ld, st.Queries(), &recordingNotifier{}, nil, Options{
		Targets:        []collector.Target{{Source: "acme-gh"}},
		SettleDelay:    time.Second,
		Embedder:       proc,
		EmbeddingModel: embeddingModel,
	}, clk, logger)

	return &pipeline{store: st, board: b, embedder: emb, orch: orch}
}

func (p *pipeline) catalog(t *testing.T) []model.CanonicalJob {
	t.Helper()
	jobs, err := p.store.Queries().Candidates(context.Background(), store.CandidateQuery{
		CompanyNorm: "acme",
		Model:       embeddingModel,
		Limit:       100,
	})
	require.NoError(t, err)
	return jobs
}

func byTitle(jobs []model.CanonicalJob, title string) *model.CanonicalJob {
	for i := range jobs {
		if jobs[i].Title == title {
			return &jobs[i]
		}
	}
	return nil
}

func TestPipeline_NewThenResighted(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.board.set(1, 10)
	r1, err := p.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, r1.State)
	assert.Equal(t, 1, r1.Collected)
	assert.Equal(t, 10, r1.Processed)
	assert.Equal(t, 10, r1.Loaded)
	assert.Equal(t, 0, r1.Duplicates)
	assert.Equal(t, 0, r1.Backfilled)

	jobs := p.catalog(t)
	require.Len(t, jobs, 10)
	chemist := byTitle(jobs, "Chemist")
	require.NotNil(t, chemist)
	require.NotNil(t, chemist.Salary)
	assert.Equal(t, 90000.0, chemist.Salary.Min)
	assert.Equal(t, 120000.0, chemist.Salary.Max)
	assert.Equal(t, "USD", chemist.Salary.Currency)
	assert.NotNil(t, chemist.Embedding)

	p.board.set(3, 12)
	r2, err := p.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, r2.Processed)
	assert.Equal(t, 2, r2.Loaded)
	assert.Equal(t, 8, r2.Duplicates)
	assert.Equal(t, 0, r2.Review)

	jobs = p.catalog(t)
	require.Len(t, jobs, 12)
	assert.Len(t, byTitle(jobs, "Chemist").Sources, 2, "re-sighting appends a source reference")
	assert.Len(t, byTitle(jobs, "Accountant").Sources, 1)
	assert.Len(t, byTitle(jobs, "Librarian").Sources, 1)

	latest, err := LatestReport(ctx, p.store.Queries())
	require.NoError(t, err)
	assert.Equal(t, r2.ID, latest.ID)
	assert.Equal(t, model.RunCompleted, latest.State)
	assert.Equal(t, 8, latest.Duplicates)
	require.Len(t, latest.Stages, 3)
}

func TestPipeline_EmbeddingOutageBackfilledNextRun(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.embedder.down.Store(true)
	p.board.set(1, 10)
	r1, err := p.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, r1.State)
	assert.Equal(t, 10, r1.Loaded, "keyword fields load without embeddings")
	assert.Equal(t, 0, r1.Backfilled)

	missing, err := p.store.Queries().MissingEmbeddings(ctx, embeddingModel, 100)
	require.NoError(t, err)
	assert.Len(t, missing, 10)

	p.embedder.down.Store(false)
	p.board.set(0, 0)
	r2, err := p.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, r2.Processed)
	assert.Equal(t, 10, r2.Backfilled)

	missing, err = p.store.Queries().MissingEmbeddings(ctx, embeddingModel, 100)
	require.NoError(t, err)
	assert.Empty(t, missing)
	for _, j := range p.catalog(t) {
		assert.NotNil(t, j.Embedding, j.Title)
	}
}

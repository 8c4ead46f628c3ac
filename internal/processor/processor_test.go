package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobcatalog/internal/adapter"
	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/embed"
	"github.com/amishk599/jobcatalog/internal/kv"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/rawstore"
	"github.com/amishk599/jobcatalog/internal/retry"
	"github.com/amishk599/jobcatalog/internal/skills"
	"github.com/amishk599/jobcatalog/internal/store"
)

const source = "acme-gh"

type harness struct {
	store *store.Store
	raw   *rawstore.Store
	proc  *Processor
	clock *clock.Fake
}

type failingEmbedder struct{ calls atomic.Int32 }

func (f *failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	f.calls.Add(1)
	return nil, errors.New("503 service unavailable")
}
func (f *failingEmbedder) Model() string  { return "broken-v1" }
func (f *failingEmbedder) Dimension() int { return 8 }

func newHarness(t *testing.T, embedder model.Embedder) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	st, err := store.Open(ctx, config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "p.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	backend, err := kv.Open("", true, logger)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	reg, err := adapter.NewRegistry([]config.SourceConfig{
		{Name: source, Kind: "greenhouse", Company: "Acme", BoardToken: "acme"},
	}, http.DefaultClient)
	require.NoError(t, err)

	tax, err := skills.Default()
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC))
	proc, err := New(rawstore.New(backend), st, reg, tax, embedder, Options{
		BatchWorkers:    2,
		ItemWorkers:     4,
		EmbeddingPolicy: retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, Jitter: 0.3},
		Random:          func() float64 { return 0.5 },
	}, clk, logger)
	require.NoError(t, err)
	t.Cleanup(proc.Release)

	return &harness{store: st, raw: rawstore.New(backend), proc: proc, clock: clk}
}

func greenhousePayload(good, malformed int) []byte {
	var jobs []map[string]any
	for i := 1; i <= good; i++ {
		jobs = append(jobs, map[string]any{
			"id":           i,
			"title":        fmt.Sprintf("Backend Engineer %d", i),
			"location":     map[string]string{"name": "Austin, Texas"},
			"absolute_url": fmt.Sprintf("https://boards.greenhouse.io/acme/jobs/%d?gh_src=x", i),
			"updated_at":   "2026-05-18T10:00:00Z",
			"content":      "&lt;p&gt;Build Go services on Kubernetes. Pay: $90,000 - $120,000/yr&lt;/p&gt;",
		})
	}
	for i := 0; i < malformed; i++ {
		jobs = append(jobs, map[string]any{"id": 0, "title": ""})
	}
	b, _ := json.Marshal(map[string]any{"jobs": jobs})
	return b
}

func (h *harness) put(t *testing.T, rc *model.RawCollection) *model.RawCollection {
	t.Helper()
	if rc.Source == "" {
		rc.Source = source
	}
	if rc.Status == "" {
		rc.Status = model.FetchSucceeded
	}
	rc.CollectedAt = h.clock.Now()
	require.NoError(t, h.raw.Put(context.Background(), rc))
	return rc
}

func (h *harness) record(t *testing.T, rawID string) *model.ProcessingRecord {
	t.Helper()
	recs, err := h.store.Queries().ListProcessingRecords(context.Background(), "", 0)
	require.NoError(t, err)
	for _, r := range recs {
		if r.RawCollectionID == rawID {
			full, err := h.store.Queries().GetProcessingRecord(context.Background(), r.ID)
			require.NoError(t, err)
			return full
		}
	}
	t.Fatalf("no processing record for %s", rawID)
	return nil
}

func TestRun_PartialFailureIsolatesMalformedItems(t *testing.T) {
	h := newHarness(t, embed.NewHashEmbedder("hash-v1", 64))
	ctx := context.Background()
	rc := h.put(t, &model.RawCollection{Payload: greenhousePayload(8, 2)})

	sum, err := h.proc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Records)
	assert.Equal(t, 1, sum.Partial)
	assert.Equal(t, 10, sum.Items)
	assert.Equal(t, 8, sum.Succeeded)
	assert.Equal(t, 2, sum.ItemFailures)
	assert.Equal(t, 0, sum.EmbeddingPending)

	rec := h.record(t, rc.ID)
	assert.Equal(t, model.StatusPartial, rec.Status)
	assert.Equal(t, rec.TotalItems, rec.Succeeded+rec.Failed)
	require.Len(t, rec.Errors, 2)
	assert.Equal(t, 8, rec.Errors[0].Index)
	assert.JSONEq(t, `{"id":0,"title":""}`, string(rec.Errors[0].Payload))

	staged, err := h.store.Queries().PendingStagedJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, staged, 8)

	s := staged[0]
	assert.Equal(t, "Austin, TX", s.Location)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/1", s.URL)
	assert.Contains(t, s.Skills, "Go")
	assert.Contains(t, s.Skills, "Kubernetes")
	require.NotNil(t, s.Salary)
	assert.Equal(t, 90000.0, s.Salary.Min)
	assert.Equal(t, 120000.0, s.Salary.Max)
	assert.Equal(t, "USD", s.Salary.Currency)
	require.NotNil(t, s.Embedding)
	assert.Equal(t, "hash-v1", s.Embedding.Model)
	assert.NotEmpty(t, s.ContentHash)
	assert.Greater(t, s.QualityScore, 0.0)
}

func TestRun_IsIdempotent(t *testing.T) {
	h := newHarness(t, embed.NewHashEmbedder("hash-v1", 16))
	ctx := context.Background()
	h.put(t, &model.RawCollection{Payload: greenhousePayload(3, 0)})

	first, err := h.proc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Completed)

	second, err := h.proc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Records, "completed work is not reprocessed")

	staged, err := h.store.Queries().PendingStagedJobs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, staged, 3)
}

func TestRun_FailedFetchWithoutPayload(t *testing.T) {
	h := newHarness(t, embed.NewHashEmbedder("hash-v1", 16))
	rc := h.put(t, &model.RawCollection{Status: model.FetchFailed, Error: "HTTP 503"})

	sum, err := h.proc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	rec := h.record(t, rc.ID)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Zero(t, rec.TotalItems)
	assert.Contains(t, rec.Message, "HTTP 503")
}

func TestRun_UnreadableEnvelopeCountsAsOneFailedItem(t *testing.T) {
	h := newHarness(t, embed.NewHashEmbedder("hash-v1", 16))
	rc := h.put(t, &model.RawCollection{Payload: []byte(`<html>maintenance</html>`), Status: model.FetchFailed})

	_, err := h.proc.Run(context.Background())
	require.NoError(t, err)

	rec := h.record(t, rc.ID)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.TotalItems)
	assert.Equal(t, 1, rec.Failed)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, `<html>maintenance</html>`, string(rec.Errors[0].Payload))
}

func TestRun_EmptyEnvelopeCompletes(t *testing.T) {
	h := newHarness(t, embed.NewHashEmbedder("hash-v1", 16))
	rc := h.put(t, &model.RawCollection{Payload: []byte(`{"jobs":[]}`)})

	_, err := h.proc.Run(context.Background())
	require.NoError(t, err)
	rec := h.record(t, rc.ID)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Zero(t, rec.TotalItems)
}

func TestRun_EmbeddingOutageStagesWithoutVectors(t *testing.T) {
	emb := &failingEmbedder{}
	h := newHarness(t, emb)
	h.put(t, &model.RawCollection{Payload: greenhousePayload(5, 0)})

	sum, err := h.proc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed, "embedding failures do not fail items")
	assert.Equal(t, 5, sum.Succeeded)
	assert.Equal(t, 5, sum.EmbeddingPending)

	staged, err := h.store.Queries().PendingStagedJobs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, staged, 5)
	for _, s := range staged {
		assert.Nil(t, s.Embedding)
	}
	// At most every item retries fully before the outage flag is seen.
	assert.LessOrEqual(t, int(emb.calls.Load()), 5*3)
}

func TestRun_ResetsStaleProcessing(t *testing.T) {
	h := newHarness(t, embed.NewHashEmbedder("hash-v1", 16))
	ctx := context.Background()
	rc := h.put(t, &model.RawCollection{Payload: greenhousePayload(2, 0)})

	q := h.store.Queries()
	rec, _, err := q.EnsureProcessingRecord(ctx, rc.ID, source, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, h.raw.Ack(ctx, rc.ID))
	claimed, err := q.ClaimProcessingRecord(ctx, rec.ID, h.clock.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	sum, err := h.proc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)
}

func TestReprocess_CreatesFreshRecord(t *testing.T) {
	h := newHarness(t, embed.NewHashEmbedder("hash-v1", 16))
	ctx := context.Background()
	rc := h.put(t, &model.RawCollection{Payload: greenhousePayload(2, 1)})

	_, err := h.proc.Run(ctx)
	require.NoError(t, err)

	rec, err := h.proc.Reprocess(ctx, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartial, rec.Status)

	recs, err := h.store.Queries().ListProcessingRecords(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	staged, err := h.store.Queries().PendingStagedJobs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, staged, 4)
}

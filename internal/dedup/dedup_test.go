package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/normalize"
	"github.com/amishk599/jobcatalog/internal/store"
)

func staged(title, company, location, desc string) *model.StagedJob {
	loc := normalize.Location(location)
	s := &model.StagedJob{
		ID:           "s-" + title,
		Source:       "acme-gh",
		ExternalID:   "1",
		Title:        title,
		Company:      company,
		Location:     loc,
		Description:  desc,
		TitleNorm:    normalize.TitleKey(title),
		CompanyNorm:  normalize.CompanyKey(company),
		LocationNorm: normalize.LocationKey(loc),
	}
	s.Signature = normalize.Signature(s.TitleNorm, s.CompanyNorm, s.LocationNorm)
	return s
}

func canonicalFrom(id string, s *model.StagedJob) model.CanonicalJob {
	return *FromStaged(id, s, time.Unix(0, 0))
}

const goDesc = "kafka postgres redis golang docker terraform"

func TestDecide_ExactDuplicate(t *testing.T) {
	d := New(config.DedupConfig{})
	existing := canonicalFrom("c1", staged("Senior Software Engineer", "Acme Inc.", "Austin, Texas", goDesc))

	got := d.Decide(staged("Sr. Software Engineer", "ACME", "Austin, TX", ""), []model.CanonicalJob{existing})
	require.NotNil(t, got.Match)
	assert.Equal(t, ActionMerge, got.Action)
	assert.Equal(t, model.StrategyExact, got.Match.Strategy)
	assert.Equal(t, 1.0, got.Match.Confidence)
	assert.Equal(t, "c1", got.Match.Candidate.ID)
}

func TestDecide_NoCandidatesInserts(t *testing.T) {
	got := New(config.DedupConfig{}).Decide(staged("Engineer", "Acme", "Remote", ""), nil)
	assert.Equal(t, ActionInsert, got.Action)
	assert.Nil(t, got.Match)
}

func TestDecide_FuzzyMerge(t *testing.T) {
	d := New(config.DedupConfig{})
	existing := canonicalFrom("c1", staged("Backend Engineer", "Acme", "Austin, TX", goDesc))

	got := d.Decide(staged("Back-end Engineer", "Acme", "Remote", goDesc), []model.CanonicalJob{existing})
	require.NotNil(t, got.Match)
	assert.Equal(t, model.StrategyFuzzy, got.Match.Strategy)
	assert.Equal(t, ActionMerge, got.Action)
	assert.Greater(t, got.Match.Confidence, 0.9)
}

func TestDecide_FuzzyBelowAutoMergeIsReviewed(t *testing.T) {
	d := New(config.DedupConfig{})
	existing := canonicalFrom("c1", staged("Backend Engineer", "Acme", "Austin, TX", goDesc))

	// Same title, 6 of 8 terms shared: 0.5*1 + 0.5*0.75.
	got := d.Decide(staged("Backend Engineer", "Acme", "Remote", goDesc+" python java"), []model.CanonicalJob{existing})
	require.NotNil(t, got.Match)
	assert.Equal(t, model.StrategyFuzzy, got.Match.Strategy)
	assert.Equal(t, ActionReview, got.Action)
	assert.InDelta(t, 0.875, got.Match.Confidence, 1e-9)
}

func TestDecide_FuzzyRequiresSameCompany(t *testing.T) {
	d := New(config.DedupConfig{})
	existing := canonicalFrom("c1", staged("Backend Engineer", "Globex", "Austin, TX", goDesc))
	got := d.Decide(staged("Backend Engineer", "Acme", "Austin, TX", goDesc), []model.CanonicalJob{existing})
	assert.Equal(t, ActionInsert, got.Action)
}

func TestDecide_EmbeddingMatch(t *testing.T) {
	d := New(config.DedupConfig{})
	c := staged("Platform Engineer", "Acme", "Austin, TX", "build internal developer platforms")
	c.Embedding = &model.Embedding{Model: "m1", Vector: []float32{0.95, 0.31, 0}}
	existing := canonicalFrom("c1", c)

	s := staged("Platform Engineer II", "Acme", "Remote", "own the kubernetes control plane")
	s.Embedding = &model.Embedding{Model: "m1", Vector: []float32{1, 0, 0}}

	got := d.Decide(s, []model.CanonicalJob{existing})
	require.NotNil(t, got.Match)
	assert.Equal(t, model.StrategyEmbedding, got.Match.Strategy)
	assert.InDelta(t, 0.9507, got.Match.Confidence, 1e-3)
	assert.Equal(t, ActionMerge, got.Action)
}

func TestDecide_EmbeddingNeverComparesAcrossModels(t *testing.T) {
	d := New(config.DedupConfig{})
	c := staged("Platform Engineer", "Acme", "Austin, TX", "build platforms")
	c.Embedding = &model.Embedding{Model: "m1", Vector: []float32{1, 0, 0}}
	existing := canonicalFrom("c1", c)

	s := staged("Platform Engineer II", "Acme", "Remote", "kubernetes control plane")
	s.Embedding = &model.Embedding{Model: "m2", Vector: []float32{1, 0, 0}}

	assert.Equal(t, ActionInsert, d.Decide(s, []model.CanonicalJob{existing}).Action)
}

func TestDecide_EmbeddingSanityCheck(t *testing.T) {
	d := New(config.DedupConfig{})
	c := staged("Data Scientist", "Acme", "Austin, TX", "models")
	c.Embedding = &model.Embedding{Model: "m1", Vector: []float32{1, 0}}
	existing := canonicalFrom("c1", c)

	s := staged("Backend Engineer", "Acme", "Remote", "services")
	s.Embedding = &model.Embedding{Model: "m1", Vector: []float32{1, 0}}

	assert.Equal(t, ActionInsert, d.Decide(s, []model.CanonicalJob{existing}).Action,
		"identical vectors with unrelated titles are not duplicates")
}

func TestDecide_URLMatch(t *testing.T) {
	d := New(config.DedupConfig{})
	c := staged("Engineer", "Acme Holdings", "Austin, TX", "")
	c.ApplyURL = "https://acme.example/apply/42"
	existing := canonicalFrom("c1", c)

	s := staged("Software Engineer", "Acme", "Remote", "")
	s.URL = "https://acme.example/apply/42"

	got := d.Decide(s, []model.CanonicalJob{existing})
	require.NotNil(t, got.Match)
	assert.Equal(t, model.StrategyURL, got.Match.Strategy)
	assert.Equal(t, 0.95, got.Match.Confidence)
	assert.Equal(t, ActionMerge, got.Action)
}

func TestDecide_FirstStrategyWins(t *testing.T) {
	d := New(config.DedupConfig{})
	urlOnly := staged("Engineer", "Other", "Remote", "")
	urlOnly.ApplyURL = "https://x.example/a"
	exact := staged("Backend Engineer", "Acme", "Austin, TX", "")

	s := staged("Backend Engineer", "Acme", "Austin, TX", "")
	s.ApplyURL = "https://x.example/a"

	got := d.Decide(s, []model.CanonicalJob{canonicalFrom("url", urlOnly), canonicalFrom("exact", exact)})
	require.NotNil(t, got.Match)
	assert.Equal(t, "exact", got.Match.Candidate.ID)
}

func TestDecide_SkipsSuperseded(t *testing.T) {
	d := New(config.DedupConfig{})
	old := canonicalFrom("c1", staged("Engineer", "Acme", "Remote", ""))
	old.SupersededBy = "c0"
	got := d.Decide(staged("Engineer", "Acme", "Remote", ""), []model.CanonicalJob{old})
	assert.Equal(t, ActionInsert, got.Action)
}

type candidateFunc func(ctx context.Context, q store.CandidateQuery) ([]model.CanonicalJob, error)

func (f candidateFunc) Candidates(ctx context.Context, q store.CandidateQuery) ([]model.CanonicalJob, error) {
	return f(ctx, q)
}

func TestCheck_BuildsCandidateQuery(t *testing.T) {
	d := New(config.DedupConfig{CandidateLimit: 7})
	s := staged("Engineer", "Acme", "Remote", "")
	s.URL = "https://a.example/1"
	s.Embedding = &model.Embedding{Model: "m1", Vector: []float32{1}}

	var got store.CandidateQuery
	_, err := d.Check(context.Background(), candidateFunc(func(_ context.Context, q store.CandidateQuery) ([]model.CanonicalJob, error) {
		got = q
		return nil, nil
	}), s)
	require.NoError(t, err)
	assert.Equal(t, s.Signature, got.Signature)
	assert.Equal(t, "acme", got.CompanyNorm)
	assert.Equal(t, "m1", got.Model)
	assert.Equal(t, 7, got.Limit)
	assert.Contains(t, got.URLs, "https://a.example/1")

	boom := errors.New("boom")
	_, err = d.Check(context.Background(), candidateFunc(func(context.Context, store.CandidateQuery) ([]model.CanonicalJob, error) {
		return nil, boom
	}), s)
	assert.ErrorIs(t, err, boom)
}

func TestJaccardAndTitleSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard(nil, nil))
	assert.Equal(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a", "a"}))
	assert.InDelta(t, 1.0/3, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)

	assert.Equal(t, 1.0, TitleSimilarity("backend engineer", "backend engineer"))
	assert.Equal(t, 0.0, TitleSimilarity("", "x"))
	assert.Greater(t, TitleSimilarity("backend engineer", "back end engineer"), 0.9)
}

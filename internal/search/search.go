// Package search ranks canonical jobs for a free-text query by combining a
// keyword score with vector similarity. Structured filters narrow the keyword
// candidates in SQL and are checked again on every result.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/amishk599/jobcatalog/internal/filter"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/normalize"
	"github.com/amishk599/jobcatalog/internal/store"
	"github.com/amishk599/jobcatalog/internal/vectorindex"
)

const (
	defaultLimit     = 20
	maxLimit         = 200
	candidateFactor  = 5
	keywordWeight    = 0.5
	semanticWeight   = 0.5
	minSemanticScore = 0.2
)

// Query is one search request.
type Query struct {
	Text      string
	Embedding *model.Embedding // optional; computed from Text when an embedder is set
	Filters   filter.Criteria
	Limit     int
}

// Result is one ranked job.
type Result struct {
	Job      model.CanonicalJob
	Score    float64
	Keyword  float64
	Semantic float64
}

// VectorSearcher finds nearest neighbours within one embedding model.
type VectorSearcher interface {
	Search(ctx context.Context, query *model.Embedding, minScore float64, limit int) ([]vectorindex.Hit, error)
}

// Searcher serves catalog queries.
type Searcher struct {
	store    *store.Store
	vectors  VectorSearcher
	embedder model.Embedder
	logger   *slog.Logger
}

// New creates a searcher. vectors and embedder may be nil for keyword-only search.
func New(st *store.Store, vectors VectorSearcher, embedder model.Embedder, logger *slog.Logger) *Searcher {
	return &Searcher{store: st, vectors: vectors, embedder: embedder, logger: logger.With("component", "search")}
}

// Search returns up to q.Limit results, best first. All relational reads
// share one read transaction.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	pool := limit * candidateFactor

	terms := normalize.Terms(q.Text)
	queryVec := s.queryEmbedding(ctx, q)

	var hits []vectorindex.Hit
	if queryVec != nil && s.vectors != nil {
		var err error
		hits, err = s.vectors.Search(ctx, queryVec, minSemanticScore, pool)
		if err != nil {
			// The index is a derived read model; keyword results still stand.
			s.logger.Warn("vector search failed", "error", err)
			hits = nil
		}
	}

	modelID := ""
	if queryVec != nil {
		modelID = queryVec.Model
	}

	var jobs []model.CanonicalJob
	err := s.store.View(ctx, func(tx *store.Queries) error {
		kw, err := tx.KeywordCandidates(ctx, keywordQuery(terms, modelID, pool, q.Filters))
		if err != nil {
			return err
		}
		jobs = kw
		if len(hits) == 0 {
			return nil
		}
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		sem, err := tx.GetCanonicals(ctx, ids, modelID)
		if err != nil {
			return err
		}
		jobs = append(jobs, sem...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	semantic := make(map[string]float64, len(hits))
	for _, h := range hits {
		semantic[h.ID] = h.Score
	}

	seen := make(map[string]bool, len(jobs))
	var results []Result
	for _, j := range jobs {
		if seen[j.ID] || j.SupersededBy != "" {
			continue
		}
		seen[j.ID] = true
		if !q.Filters.Match(j) {
			continue
		}
		r := Result{Job: j, Keyword: KeywordScore(terms, j), Semantic: max(semantic[j.ID], 0)}
		switch {
		case len(hits) > 0 && len(terms) > 0:
			r.Score = keywordWeight*r.Keyword + semanticWeight*r.Semantic
		case len(hits) > 0:
			r.Score = r.Semantic
		default:
			r.Score = r.Keyword
		}
		if len(terms) > 0 && r.Score == 0 {
			continue
		}
		results = append(results, r)
	}

	slices.SortFunc(results, func(a, b Result) int {
		switch {
		case a.Score != b.Score:
			return cmpDesc(a.Score, b.Score)
		case a.Job.QualityScore != b.Job.QualityScore:
			return cmpDesc(a.Job.QualityScore, b.Job.QualityScore)
		default:
			return strings.Compare(a.Job.ID, b.Job.ID)
		}
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// keywordQuery pushes the SQL-expressible filters into the candidate query so
// restrictive filters do not starve the pool. Skills are checked in memory.
func keywordQuery(terms []string, modelID string, pool int, c filter.Criteria) store.KeywordQuery {
	kq := store.KeywordQuery{
		Terms:          terms,
		Model:          modelID,
		Limit:          pool,
		Locations:      c.Locations,
		EmploymentType: c.EmploymentType(),
		SalaryMin:      c.SalaryMin,
		SalaryMax:      c.SalaryMax,
		Currency:       c.Currency,
	}
	if c.Company != "" {
		kq.CompanyNorm = normalize.CompanyKey(c.Company)
	}
	return kq
}

func (s *Searcher) queryEmbedding(ctx context.Context, q Query) *model.Embedding {
	if q.Embedding != nil {
		return q.Embedding
	}
	if s.embedder == nil || strings.TrimSpace(q.Text) == "" {
		return nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{q.Text})
	if err != nil || len(vecs) != 1 {
		s.logger.Warn("query embedding unavailable, keyword only", "error", err)
		return nil
	}
	return &model.Embedding{Model: s.embedder.Model(), Vector: vecs[0]}
}

// KeywordScore is the mean per-term score, where a term found in the title
// scores 1, in the company or skills 0.75, and in the description 0.5.
func KeywordScore(terms []string, j model.CanonicalJob) float64 {
	if len(terms) == 0 {
		return 0
	}
	title := strings.Join(normalize.Tokens(j.Title), " ")
	company := strings.Join(normalize.Tokens(j.Company), " ")
	skills := strings.ToLower(strings.Join(j.Skills, " "))
	desc := " " + strings.Join(normalize.Tokens(j.Description), " ") + " "

	total := 0.0
	for _, t := range terms {
		switch {
		case containsWord(title, t):
			total += 1
		case containsWord(company, t), containsWord(skills, t):
			total += 0.75
		case strings.Contains(desc, " "+t+" "):
			total += 0.5
		}
	}
	return total / float64(len(terms))
}

func containsWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if f == word {
			return true
		}
	}
	return false
}

func cmpDesc(a, b float64) int {
	if a > b {
		return -1
	}
	return 1
}

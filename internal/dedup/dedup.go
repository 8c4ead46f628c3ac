// Package dedup decides whether a staged job duplicates an existing canonical
// job. Matchers run in a fixed order and the first one to clear its threshold
// decides; confidence then selects between an automatic merge and a review flag.
package dedup

import (
	"context"
	"fmt"

	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/store"
)

// Defaults used when the config leaves a threshold unset.
const (
	DefaultFuzzyThreshold     = 0.85
	DefaultEmbeddingThreshold = 0.92
	DefaultAutoMergeThreshold = 0.9
	DefaultTitleFloor         = 0.8
	DefaultCandidateLimit     = 50
)

// Action is what the loader should do with a staged job.
type Action int

const (
	ActionInsert Action = iota // no match: new canonical job
	ActionMerge                // confident match: fold into the candidate
	ActionReview               // weak match: new canonical job plus an unreviewed link
)

func (a Action) String() string {
	switch a {
	case ActionMerge:
		return "merge"
	case ActionReview:
		return "review"
	default:
		return "insert"
	}
}

// Match is the winning matcher's verdict.
type Match struct {
	Candidate  *model.CanonicalJob
	Strategy   model.Strategy
	Confidence float64
	Fields     []string
}

// Decision pairs a staged job with its action.
type Decision struct {
	Staged *model.StagedJob
	Action Action
	Match  *Match // nil for ActionInsert
}

// CandidateSource returns active canonical jobs that may match. *store.Queries
// implements it.
type CandidateSource interface {
	Candidates(ctx context.Context, q store.CandidateQuery) ([]model.CanonicalJob, error)
}

// Deduplicator runs the matcher chain.
type Deduplicator struct {
	matchers       []Matcher
	autoMerge      float64
	candidateLimit int
}

// New builds the default exact → fuzzy → embedding → URL chain from cfg.
func New(cfg config.DedupConfig) *Deduplicator {
	fuzzy := orDefault(cfg.FuzzyThreshold, DefaultFuzzyThreshold)
	emb := orDefault(cfg.EmbeddingThreshold, DefaultEmbeddingThreshold)
	d := NewWithMatchers(orDefault(cfg.AutoMergeThreshold, DefaultAutoMergeThreshold),
		ExactMatcher{},
		FuzzyMatcher{Threshold: fuzzy},
		EmbeddingMatcher{Threshold: emb, TitleFloor: DefaultTitleFloor},
		URLMatcher{},
	)
	if cfg.CandidateLimit > 0 {
		d.candidateLimit = cfg.CandidateLimit
	}
	return d
}

// NewWithMatchers builds a deduplicator with a custom chain.
func NewWithMatchers(autoMerge float64, matchers ...Matcher) *Deduplicator {
	return &Deduplicator{matchers: matchers, autoMerge: autoMerge, candidateLimit: DefaultCandidateLimit}
}

// Check loads candidates for s from src and decides.
func (d *Deduplicator) Check(ctx context.Context, src CandidateSource, s *model.StagedJob) (Decision, error) {
	q := store.CandidateQuery{
		Signature:   s.Signature,
		CompanyNorm: s.CompanyNorm,
		URLs:        []string{s.URL, s.ApplyURL},
		Limit:       d.candidateLimit,
	}
	if s.Embedding != nil {
		q.Model = s.Embedding.Model
	}
	candidates, err := src.Candidates(ctx, q)
	if err != nil {
		return Decision{}, fmt.Errorf("load candidates for %s: %w", s.ID, err)
	}
	return d.Decide(s, candidates), nil
}

// Decide runs the chain against candidates. Within the first strategy that
// matches anything, the highest confidence wins; ties keep candidate order.
func (d *Deduplicator) Decide(s *model.StagedJob, candidates []model.CanonicalJob) Decision {
	for _, m := range d.matchers {
		var best *Match
		for i := range candidates {
			c := &candidates[i]
			if c.SupersededBy != "" {
				continue
			}
			ok, conf, fields := m.Match(s, c)
			if !ok {
				continue
			}
			if best == nil || conf > best.Confidence {
				best = &Match{Candidate: c, Strategy: m.Strategy(), Confidence: conf, Fields: fields}
			}
		}
		if best == nil {
			continue
		}
		action := ActionReview
		if best.Confidence >= d.autoMerge {
			action = ActionMerge
		}
		return Decision{Staged: s, Action: action, Match: best}
	}
	return Decision{Staged: s, Action: ActionInsert}
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

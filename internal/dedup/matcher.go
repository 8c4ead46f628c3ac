package dedup

import (
	"github.com/xrash/smetrics"

	"github.com/amishk599/jobcatalog/internal/embed"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/normalize"
)

// Matcher compares a staged job with one active canonical job.
type Matcher interface {
	Strategy() model.Strategy
	Match(s *model.StagedJob, c *model.CanonicalJob) (ok bool, confidence float64, fields []string)
}

// ExactMatcher matches on the normalized title|company|location signature.
type ExactMatcher struct{}

func (ExactMatcher) Strategy() model.Strategy { return model.StrategyExact }

func (ExactMatcher) Match(s *model.StagedJob, c *model.CanonicalJob) (bool, float64, []string) {
	if s.Signature == "" || s.Signature != c.Signature {
		return false, 0, nil
	}
	return true, 1.0, []string{"title", "company", "location"}
}

// FuzzyMatcher blends Jaro-Winkler title similarity with description token
// Jaccard, restricted to the same normalized company.
type FuzzyMatcher struct {
	Threshold float64
}

func (FuzzyMatcher) Strategy() model.Strategy { return model.StrategyFuzzy }

func (m FuzzyMatcher) Match(s *model.StagedJob, c *model.CanonicalJob) (bool, float64, []string) {
	if s.CompanyNorm == "" || s.CompanyNorm != normalize.CompanyKey(c.Company) {
		return false, 0, nil
	}
	title := TitleSimilarity(s.TitleNorm, normalize.TitleKey(c.Title))

	score := title
	fields := []string{"company", "title"}
	if s.Description != "" || c.Description != "" {
		score = 0.5*title + 0.5*Jaccard(normalize.Terms(s.Description), normalize.Terms(c.Description))
		fields = append(fields, "description")
	}
	if score < m.Threshold {
		return false, score, nil
	}
	return true, round(score), fields
}

// EmbeddingMatcher compares description vectors of the same model. A vector
// match also needs the same company and a similar title.
type EmbeddingMatcher struct {
	Threshold  float64
	TitleFloor float64
}

func (EmbeddingMatcher) Strategy() model.Strategy { return model.StrategyEmbedding }

func (m EmbeddingMatcher) Match(s *model.StagedJob, c *model.CanonicalJob) (bool, float64, []string) {
	a, b := s.Embedding, c.Embedding
	if a == nil || b == nil || a.Model != b.Model || a.Dimension() != b.Dimension() {
		return false, 0, nil
	}
	sim := embed.Cosine(a.Vector, b.Vector)
	if sim < m.Threshold {
		return false, sim, nil
	}
	if s.CompanyNorm != normalize.CompanyKey(c.Company) {
		return false, sim, nil
	}
	if TitleSimilarity(s.TitleNorm, normalize.TitleKey(c.Title)) < m.TitleFloor {
		return false, sim, nil
	}
	return true, round(min(sim, 1)), []string{"embedding", "company", "title"}
}

// URLMatcher matches when either normalized URL of the staged job equals
// either URL of the canonical job.
type URLMatcher struct{}

func (URLMatcher) Strategy() model.Strategy { return model.StrategyURL }

func (URLMatcher) Match(s *model.StagedJob, c *model.CanonicalJob) (bool, float64, []string) {
	for _, u := range []string{s.ApplyURL, s.URL} {
		if u == "" {
			continue
		}
		if u == c.ApplyURL || u == c.URL {
			return true, 0.95, []string{"url"}
		}
	}
	return false, 0, nil
}

// TitleSimilarity is the Jaro-Winkler similarity of two normalized titles.
func TitleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

// Jaccard is |a ∩ b| / |a ∪ b| over distinct terms. Two empty sets score 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter, union := 0, len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func round(f float64) float64 {
	return float64(int(f*10000+0.5)) / 10000
}

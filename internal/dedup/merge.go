package dedup

import (
	"slices"
	"time"

	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/quality"
)

// Merge folds s into a copy of existing and reports whether any field changed.
// Identity fields stay with the existing record. The longer description wins
// and ties keep the existing one. Salary widens to the union when currencies
// agree. Skills are unioned, and missing fields are filled from s. The quality
// score is recomputed from the merged fields.
func Merge(existing *model.CanonicalJob, s *model.StagedJob, now time.Time) (*model.CanonicalJob, bool) {
	out := *existing
	out.Skills = slices.Clone(existing.Skills)
	changed := false

	if len(s.Description) > len(existing.Description) {
		out.Description = s.Description
		out.ContentHash = s.ContentHash
		// A vector of the replaced text is stale; nil leaves the job embedding-pending.
		out.Embedding = s.Embedding
		changed = true
	} else if out.Embedding == nil && s.Embedding != nil && s.Description == existing.Description {
		out.Embedding = s.Embedding
		changed = true
	}

	if sal := mergeSalary(existing.Salary, s.Salary); sal != existing.Salary {
		out.Salary = sal
		changed = true
	}

	if out.EmploymentType == "" && s.EmploymentType != "" {
		out.EmploymentType = s.EmploymentType
		changed = true
	}
	if s.PostedAt != nil && (out.PostedAt == nil || s.PostedAt.Before(*out.PostedAt)) {
		t := *s.PostedAt
		out.PostedAt = &t
		changed = true
	}
	if out.URL == "" && s.URL != "" {
		out.URL = s.URL
		changed = true
	}
	if out.ApplyURL == "" && s.ApplyURL != "" {
		out.ApplyURL = s.ApplyURL
		changed = true
	}

	for _, sk := range s.Skills {
		if !slices.Contains(out.Skills, sk) {
			out.Skills = append(out.Skills, sk)
			changed = true
		}
	}
	slices.Sort(out.Skills)

	if changed {
		out.QualityScore = quality.OfCanonical(&out)
		out.UpdatedAt = now
	}
	return &out, changed
}

// mergeSalary returns existing unchanged (same pointer) when nothing widens.
func mergeSalary(existing, incoming *model.Salary) *model.Salary {
	switch {
	case incoming == nil:
		return existing
	case existing == nil:
		s := *incoming
		return &s
	case existing.Currency != incoming.Currency:
		return existing
	}
	lo, hi := min(existing.Min, incoming.Min), max(existing.Max, incoming.Max)
	if lo == existing.Min && hi == existing.Max {
		return existing
	}
	return &model.Salary{Min: lo, Max: hi, Currency: existing.Currency}
}

// FromStaged builds a new canonical job from s.
func FromStaged(id string, s *model.StagedJob, now time.Time) *model.CanonicalJob {
	var posted *time.Time
	if s.PostedAt != nil {
		t := *s.PostedAt
		posted = &t
	}
	var sal *model.Salary
	if s.Salary != nil {
		v := *s.Salary
		sal = &v
	}
	skills := slices.Clone(s.Skills)
	slices.Sort(skills)
	return &model.CanonicalJob{
		ID:             id,
		Signature:      s.Signature,
		Title:          s.Title,
		Company:        s.Company,
		Location:       s.Location,
		Description:    s.Description,
		Salary:         sal,
		EmploymentType: s.EmploymentType,
		Skills:         skills,
		URL:            s.URL,
		ApplyURL:       s.ApplyURL,
		PostedAt:       posted,
		QualityScore:   s.QualityScore,
		ContentHash:    s.ContentHash,
		Embedding:      s.Embedding,
		Sources:        []model.SourceRef{s.SourceRef()},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

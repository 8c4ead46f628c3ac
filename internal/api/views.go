package api

import (
	"time"

	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/search"
)

type salaryView struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

type sourceView struct {
	Source     string    `json:"source"`
	ExternalID string    `json:"external_id"`
	URL        string    `json:"url,omitempty"`
	SeenAt     time.Time `json:"seen_at"`
}

type jobView struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Company        string       `json:"company"`
	Location       string       `json:"location,omitempty"`
	Description    string       `json:"description,omitempty"`
	Salary         *salaryView  `json:"salary,omitempty"`
	EmploymentType string       `json:"employment_type,omitempty"`
	Skills         []string     `json:"skills,omitempty"`
	URL            string       `json:"url,omitempty"`
	ApplyURL       string       `json:"apply_url,omitempty"`
	PostedAt       *time.Time   `json:"posted_at,omitempty"`
	QualityScore   float64      `json:"quality_score"`
	Sources        []sourceView `json:"sources"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func newJobView(j model.CanonicalJob) jobView {
	v := jobView{
		ID:             j.ID,
		Title:          j.Title,
		Company:        j.Company,
		Location:       j.Location,
		Description:    j.Description,
		EmploymentType: j.EmploymentType,
		Skills:         j.Skills,
		URL:            j.URL,
		ApplyURL:       j.ApplyURL,
		PostedAt:       j.PostedAt,
		QualityScore:   j.QualityScore,
		Sources:        make([]sourceView, len(j.Sources)),
		UpdatedAt:      j.UpdatedAt,
	}
	if j.Salary != nil {
		v.Salary = &salaryView{Min: j.Salary.Min, Max: j.Salary.Max, Currency: j.Salary.Currency}
	}
	for i, s := range j.Sources {
		v.Sources[i] = sourceView{Source: s.Source, ExternalID: s.ExternalID, URL: s.URL, SeenAt: s.SeenAt}
	}
	return v
}

type resultView struct {
	Job      jobView `json:"job"`
	Score    float64 `json:"score"`
	Keyword  float64 `json:"keyword"`
	Semantic float64 `json:"semantic"`
}

func newResultView(r search.Result) resultView {
	return resultView{Job: newJobView(r.Job), Score: r.Score, Keyword: r.Keyword, Semantic: r.Semantic}
}

type linkView struct {
	ID            string     `json:"id"`
	CanonicalID   string     `json:"canonical_id"`
	DuplicateID   string     `json:"duplicate_id"`
	Confidence    float64    `json:"confidence"`
	MatchedFields []string   `json:"matched_fields"`
	Strategy      string     `json:"strategy"`
	Reviewed      bool       `json:"reviewed"`
	Resolution    string     `json:"resolution,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

func newLinkView(l model.DuplicateLink) linkView {
	return linkView{
		ID:            l.ID,
		CanonicalID:   l.CanonicalID,
		DuplicateID:   l.DuplicateID,
		Confidence:    l.Confidence,
		MatchedFields: l.MatchedFields,
		Strategy:      string(l.Strategy),
		Reviewed:      l.Reviewed,
		Resolution:    string(l.Resolution),
		CreatedAt:     l.CreatedAt,
		ReviewedAt:    l.ReviewedAt,
	}
}

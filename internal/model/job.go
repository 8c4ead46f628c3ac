package model

import (
	"context"
	"encoding/json"
	"time"
)

// Posting is a single job entry as a source parser extracted it, before normalization.
type Posting struct {
	ExternalID     string     // unique per source
	Title          string     // job title as published
	Company        string     // company name
	Location       string     // free-text location
	Description    string     // may contain HTML
	SalaryText     string     // free-text compensation, e.g. "$90,000 - $120,000/yr"
	Salary         *Salary    // structured pay range when the source provides one
	EmploymentType string     // "Full-time", "FullTime", "Contract", ...
	URL            string     // posting page
	ApplyURL       string     // separate apply link when the source has one
	PostedAt       *time.Time // nullable (not all APIs provide this)
	PostedText     string     // relative posted-on text ("Posted 3 Days Ago")
}

// Salary is a normalized pay range in whole currency units per year.
type Salary struct {
	Min      float64
	Max      float64
	Currency string // ISO 4217
}

// SourceRef points a canonical job back at one sighting of it in a raw collection.
type SourceRef struct {
	Source          string
	ExternalID      string
	RawCollectionID string
	URL             string
	ContentHash     string
	SeenAt          time.Time
}

// CanonicalJob is the deduplicated, enriched, authoritative record for a posting.
type CanonicalJob struct {
	ID             string
	Signature      string // normalized title|company|location
	Title          string
	Company        string
	Location       string
	Description    string
	Salary         *Salary
	EmploymentType string
	Skills         []string
	URL            string
	ApplyURL       string
	PostedAt       *time.Time
	QualityScore   float64
	ContentHash    string
	Embedding      *Embedding // nil when pending for the current model
	Sources        []SourceRef
	SupersededBy   string // empty unless merged away
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Embedding is a fixed-dimension vector tagged with the model that produced it.
type Embedding struct {
	Model  string
	Vector []float32
}

// Dimension returns the vector length.
func (e *Embedding) Dimension() int {
	if e == nil {
		return 0
	}
	return len(e.Vector)
}

// SourceClient issues requests against one external job source.
// Fetch returns whatever bytes were received even when it also returns an error.
type SourceClient interface {
	Name() string
	Fetch(ctx context.Context, q Query) (SourcePage, error)
}

// PostingParser maps a source's payload shape onto Posting.
type PostingParser interface {
	// Split breaks a raw payload into per-item documents. An error means the
	// envelope itself is unreadable.
	Split(payload []byte) ([]json.RawMessage, error)
	// Parse maps one item. Returns *MalformedDataError for unusable items.
	Parse(item json.RawMessage) (Posting, error)
}

// SkillTaxonomy maps free-text skill mentions onto canonical skill names.
type SkillTaxonomy interface {
	Extract(text string) []string
}

// Embedder turns text into a vector, versioned by model identifier.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

package model

import "time"

// ProcessingStatus tracks a ProcessingRecord through pending → processing → terminal.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
	StatusPartial    ProcessingStatus = "partial"
)

// Terminal reports whether no further transitions are allowed.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

// OutcomeStatus derives the terminal status from item counts.
func OutcomeStatus(succeeded, failed int) ProcessingStatus {
	switch {
	case failed == 0:
		return StatusCompleted
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// ProcessingRecord is the Processor's log entry for one raw collection.
type ProcessingRecord struct {
	ID              string
	RawCollectionID string
	Source          string
	Status          ProcessingStatus
	TotalItems      int
	Succeeded       int
	Failed          int
	Errors          []ItemError
	Message         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemError records one failed item with its original payload.
type ItemError struct {
	Index   int
	Message string
	Payload []byte
}

// StagedStatus is the load state of a processed item.
type StagedStatus string

const (
	StagedPending StagedStatus = "pending"
	StagedLoaded  StagedStatus = "loaded"
	StagedFailed  StagedStatus = "failed" // could not be loaded; see staged_jobs.last_error
)

// StagedJob is a normalized item waiting for deduplication and loading.
type StagedJob struct {
	ID                 string
	ProcessingRecordID string
	RawCollectionID    string
	Source             string
	ItemIndex          int
	ExternalID         string
	Signature          string
	Title              string
	Company            string
	Location           string
	Description        string
	TitleNorm          string
	CompanyNorm        string
	LocationNorm       string
	Salary             *Salary
	EmploymentType     string
	Skills             []string
	URL                string
	ApplyURL           string
	PostedAt           *time.Time
	ContentHash        string
	QualityScore       float64
	Embedding          *Embedding // nil when embedding is pending
	CollectedAt        time.Time
	Status             StagedStatus
	CanonicalID        string
}

// SourceRef returns the provenance entry this staged job contributes.
func (s *StagedJob) SourceRef() SourceRef {
	return SourceRef{
		Source:          s.Source,
		ExternalID:      s.ExternalID,
		RawCollectionID: s.RawCollectionID,
		URL:             s.URL,
		ContentHash:     s.ContentHash,
		SeenAt:          s.CollectedAt,
	}
}

package model

import "time"

// Strategy names the matcher that produced a duplicate decision.
type Strategy string

const (
	StrategyExact     Strategy = "exact"
	StrategyFuzzy     Strategy = "fuzzy"
	StrategyEmbedding Strategy = "embedding"
	StrategyURL       Strategy = "url"
)

// Resolution is the review outcome of a DuplicateLink.
type Resolution string

const (
	ResolutionNone     Resolution = ""
	ResolutionAuto     Resolution = "auto_merged"
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
)

// DuplicateLink is a recorded belief that two entries describe the same posting.
// For auto-merges DuplicateID is the staged entry that was folded in; for
// review links it is the separately inserted canonical job.
type DuplicateLink struct {
	ID            string
	CanonicalID   string
	DuplicateID   string
	Confidence    float64
	MatchedFields []string
	Strategy      Strategy
	Reviewed      bool
	Resolution    Resolution
	CreatedAt     time.Time
	ReviewedAt    *time.Time
}

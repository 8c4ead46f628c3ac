// Package quality rates how complete a job posting is, from 0 to 1.
package quality

import (
	"math"
	"time"

	"github.com/amishk599/jobcatalog/internal/model"
)

// Weights sum to 1.
const (
	weightDescription = 0.35
	weightSalary      = 0.2
	weightLocation    = 0.1
	weightPosted      = 0.1
	weightSkills      = 0.15
	weightApplyURL    = 0.1

	fullDescriptionChars = 1500
	fullSkills           = 5
)

// Fields are the inputs of Score.
type Fields struct {
	Description string
	Salary      *model.Salary
	Location    string
	PostedAt    *time.Time
	Skills      []string
	URL         string
	ApplyURL    string
}

// Score rates field completeness, rounded to three decimals.
func Score(f Fields) float64 {
	score := weightDescription * math.Min(1, float64(len(f.Description))/fullDescriptionChars)
	if f.Salary != nil {
		score += weightSalary
	}
	if f.Location != "" {
		score += weightLocation
	}
	if f.PostedAt != nil {
		score += weightPosted
	}
	score += weightSkills * math.Min(1, float64(len(f.Skills))/fullSkills)
	if f.ApplyURL != "" || f.URL != "" {
		score += weightApplyURL
	}
	return math.Round(score*1000) / 1000
}

// OfStaged scores a freshly processed item.
func OfStaged(s *model.StagedJob) float64 {
	return Score(Fields{
		Description: s.Description, Salary: s.Salary, Location: s.Location, PostedAt: s.PostedAt,
		Skills: s.Skills, URL: s.URL, ApplyURL: s.ApplyURL,
	})
}

// OfCanonical scores a canonical job, typically after a merge.
func OfCanonical(j *model.CanonicalJob) float64 {
	return Score(Fields{
		Description: j.Description, Salary: j.Salary, Location: j.Location, PostedAt: j.PostedAt,
		Skills: j.Skills, URL: j.URL, ApplyURL: j.ApplyURL,
	})
}

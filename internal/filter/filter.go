package filter

import (
	"strings"

	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/normalize"
)

// Criteria narrows search results. Zero-valued fields match everything.
type Criteria struct {
	Locations []string // any; case-insensitive substring of the job location
	Company   string   // compared by normalized company key
	JobType   string   // "full_time", "contract", ... or any spelling EmploymentType accepts
	SalaryMin float64  // job range must reach at least this
	SalaryMax float64  // job range must start at or below this
	Currency  string   // required currency when a salary bound is set
	Skills    []string // all required; canonical skill names, case-insensitive
}

// Empty reports whether c filters nothing.
func (c Criteria) Empty() bool {
	return len(c.Locations) == 0 && c.Company == "" && c.JobType == "" &&
		c.SalaryMin == 0 && c.SalaryMax == 0 && len(c.Skills) == 0
}

// EmploymentType is JobType in the stored spelling, or "" when unset.
func (c Criteria) EmploymentType() string {
	if c.JobType == "" {
		return ""
	}
	if want := normalize.EmploymentType(c.JobType); want != "" {
		return want
	}
	return strings.ToLower(c.JobType)
}

// Match returns true if job satisfies every set criterion. A salary bound
// excludes jobs that publish no salary.
func (c Criteria) Match(job model.CanonicalJob) bool {
	if len(c.Locations) > 0 && !containsAny(strings.ToLower(job.Location), c.Locations) {
		return false
	}

	if c.Company != "" && normalize.CompanyKey(c.Company) != normalize.CompanyKey(job.Company) {
		return false
	}

	if want := c.EmploymentType(); want != "" && job.EmploymentType != want {
		return false
	}

	if c.SalaryMin > 0 || c.SalaryMax > 0 {
		s := job.Salary
		if s == nil {
			return false
		}
		if c.Currency != "" && !strings.EqualFold(c.Currency, s.Currency) {
			return false
		}
		if c.SalaryMin > 0 && s.Max < c.SalaryMin {
			return false
		}
		if c.SalaryMax > 0 && s.Min > c.SalaryMax {
			return false
		}
	}

	for _, want := range c.Skills {
		if !hasSkill(job.Skills, want) {
			return false
		}
	}
	return true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func hasSkill(skills []string, want string) bool {
	for _, s := range skills {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}

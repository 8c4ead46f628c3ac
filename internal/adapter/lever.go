package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobcatalog/internal/model"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

// leverCategories represents the categories object in a Lever job.
type leverCategories struct {
	Team         string   `json:"team"`
	Department   string   `json:"department"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

type leverSalaryRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
	Interval string  `json:"interval"`
}

// leverJob represents a single job in the Lever API response.
type leverJob struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	Description      string            `json:"description"`
	DescriptionPlain string            `json:"descriptionPlain"`
	Categories       leverCategories   `json:"categories"`
	CreatedAt        int64             `json:"createdAt"`
	WorkplaceType    string            `json:"workplaceType"`
	HostedURL        string            `json:"hostedUrl"`
	ApplyURL         string            `json:"applyUrl"`
	SalaryRange      *leverSalaryRange `json:"salaryRange"`
}

// LeverAdapter reads the Lever public postings API.
type LeverAdapter struct {
	companySlug string
	companyName string
	baseURL     string
	client      *http.Client
}

// NewLeverAdapter creates an adapter for a Lever board.
func NewLeverAdapter(companySlug, companyName string, client *http.Client) *LeverAdapter {
	return &LeverAdapter{
		companySlug: companySlug,
		companyName: companyName,
		baseURL:     leverBaseURL,
		client:      client,
	}
}

func (a *LeverAdapter) Name() string { return "lever" }

// Fetch retrieves every posting on the board. Lever has no free-text search.
func (a *LeverAdapter) Fetch(ctx context.Context, _ model.Query) (model.SourcePage, error) {
	url := fmt.Sprintf("%s/%s?mode=json", a.baseURL, a.companySlug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.SourcePage{}, fmt.Errorf("lever request for %s: %w", a.companySlug, err)
	}
	return doRequest(a.client, req, "lever:"+a.companySlug)
}

// Split expects a top-level JSON array.
func (a *LeverAdapter) Split(payload []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("lever envelope: %w", err)
	}
	return items, nil
}

func (a *LeverAdapter) Parse(item json.RawMessage) (model.Posting, error) {
	var lj leverJob
	if err := json.Unmarshal(item, &lj); err != nil {
		return model.Posting{}, malformed(item, "lever job: %w", err)
	}
	if lj.ID == "" || strings.TrimSpace(lj.Text) == "" {
		return model.Posting{}, malformed(item, "lever job: missing id or text")
	}

	// Determine location: prefer allLocations if available, fallback to location
	location := lj.Categories.Location
	if len(lj.Categories.AllLocations) > 0 {
		location = strings.Join(lj.Categories.AllLocations, "; ")
	}
	if location == "" && strings.EqualFold(lj.WorkplaceType, "remote") {
		location = "Remote"
	}

	description := lj.DescriptionPlain
	if description == "" {
		description = lj.Description
	}

	p := model.Posting{
		ExternalID:     lj.ID,
		Title:          lj.Text,
		Company:        a.companyName,
		Location:       location,
		Description:    description,
		EmploymentType: lj.Categories.Commitment,
		URL:            lj.HostedURL,
		ApplyURL:       lj.ApplyURL,
	}

	// createdAt is Unix milliseconds.
	if lj.CreatedAt > 0 {
		t := time.UnixMilli(lj.CreatedAt).UTC()
		p.PostedAt = &t
	}

	if sr := lj.SalaryRange; sr != nil && sr.Max > 0 {
		mult := 1.0
		switch strings.ToLower(sr.Interval) {
		case "per-hour-wage":
			mult = 2080
		case "per-month-salary":
			mult = 12
		}
		p.Salary = &model.Salary{
			Min:      sr.Min * mult,
			Max:      sr.Max * mult,
			Currency: strings.ToUpper(sr.Currency),
		}
	}
	return p, nil
}

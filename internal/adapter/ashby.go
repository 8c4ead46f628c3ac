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

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

// ashbyJob represents a single job in the Ashby API response.
type ashbyJob struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Location         string             `json:"location"`
	EmploymentType   string             `json:"employmentType"`
	DescriptionHTML  string             `json:"descriptionHtml"`
	DescriptionPlain string             `json:"descriptionPlain"`
	JobURL           string             `json:"jobUrl"`
	ApplyURL         string             `json:"applyUrl"`
	PublishedAt      string             `json:"publishedAt"`
	IsListed         *bool              `json:"isListed"`
	IsRemote         bool               `json:"isRemote"`
	Compensation     *ashbyCompensation `json:"compensation"`
}

type ashbyCompensation struct {
	Summary string `json:"compensationTierSummary"`
}

// ashbyResponse is the top-level Ashby job board envelope.
type ashbyResponse struct {
	Jobs []json.RawMessage `json:"jobs"`
}

// AshbyAdapter reads the Ashby public job board API.
type AshbyAdapter struct {
	boardToken  string
	companyName string
	baseURL     string
	client      *http.Client
}

// NewAshbyAdapter creates an adapter for an Ashby job board.
func NewAshbyAdapter(boardToken, companyName string, client *http.Client) *AshbyAdapter {
	return &AshbyAdapter{
		boardToken:  boardToken,
		companyName: companyName,
		baseURL:     ashbyBaseURL,
		client:      client,
	}
}

func (a *AshbyAdapter) Name() string { return "ashby" }

func (a *AshbyAdapter) Fetch(ctx context.Context, _ model.Query) (model.SourcePage, error) {
	url := fmt.Sprintf("%s/%s?includeCompensation=true", a.baseURL, a.boardToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.SourcePage{}, fmt.Errorf("ashby request for %s: %w", a.boardToken, err)
	}
	return doRequest(a.client, req, "ashby:"+a.boardToken)
}

// Split drops postings explicitly marked unlisted. Items that cannot be
// inspected are kept so Parse reports them.
func (a *AshbyAdapter) Split(payload []byte) ([]json.RawMessage, error) {
	var resp ashbyResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("ashby envelope: %w", err)
	}
	items := make([]json.RawMessage, 0, len(resp.Jobs))
	for _, raw := range resp.Jobs {
		var peek struct {
			IsListed *bool `json:"isListed"`
		}
		if err := json.Unmarshal(raw, &peek); err == nil && peek.IsListed != nil && !*peek.IsListed {
			continue
		}
		items = append(items, raw)
	}
	return items, nil
}

func (a *AshbyAdapter) Parse(item json.RawMessage) (model.Posting, error) {
	var aj ashbyJob
	if err := json.Unmarshal(item, &aj); err != nil {
		return model.Posting{}, malformed(item, "ashby job: %w", err)
	}
	if strings.TrimSpace(aj.Title) == "" || aj.JobURL == "" {
		return model.Posting{}, malformed(item, "ashby job: missing title or jobUrl")
	}

	id := aj.ID
	if id == "" {
		id = aj.JobURL
	}
	description := aj.DescriptionPlain
	if description == "" {
		description = aj.DescriptionHTML
	}
	location := aj.Location
	if location == "" && aj.IsRemote {
		location = "Remote"
	}

	p := model.Posting{
		ExternalID:     id,
		Title:          aj.Title,
		Company:        a.companyName,
		Location:       location,
		Description:    description,
		EmploymentType: aj.EmploymentType,
		URL:            aj.JobURL,
		ApplyURL:       aj.ApplyURL,
	}
	if aj.Compensation != nil {
		p.SalaryText = aj.Compensation.Summary
	}
	if aj.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, aj.PublishedAt); err == nil {
			t = t.UTC()
			p.PostedAt = &t
		}
	}
	return p, nil
}

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobcatalog/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID             int64                `json:"id"`
	Title          string               `json:"title"`
	Location       greenhouseLocation   `json:"location"`
	AbsoluteURL    string               `json:"absolute_url"`
	UpdatedAt      string               `json:"updated_at"`
	FirstPublished string               `json:"first_published"`
	Content        string               `json:"content"`
	PayInputRanges []greenhousePayRange `json:"pay_input_ranges"`
	Metadata       []greenhouseMetadata `json:"metadata"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

type greenhousePayRange struct {
	MinCents     int64  `json:"min_cents"`
	MaxCents     int64  `json:"max_cents"`
	CurrencyType string `json:"currency_type"`
	Title        string `json:"title"`
}

type greenhouseMetadata struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// greenhouseResponse is the top-level Greenhouse jobs API envelope.
type greenhouseResponse struct {
	Jobs []json.RawMessage `json:"jobs"`
}

// GreenhouseAdapter reads the Greenhouse public boards API.
type GreenhouseAdapter struct {
	boardToken  string
	companyName string
	baseURL     string
	client      *http.Client
}

// NewGreenhouseAdapter creates an adapter for a Greenhouse board.
func NewGreenhouseAdapter(boardToken, companyName string, client *http.Client) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		boardToken:  boardToken,
		companyName: companyName,
		baseURL:     greenhouseBaseURL,
		client:      client,
	}
}

func (a *GreenhouseAdapter) Name() string { return "greenhouse" }

// Fetch retrieves the whole board with descriptions and pay ranges. The board
// API has no server-side search, so query text and location are not sent.
func (a *GreenhouseAdapter) Fetch(ctx context.Context, _ model.Query) (model.SourcePage, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true&pay_transparency=true", a.baseURL, a.boardToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.SourcePage{}, fmt.Errorf("greenhouse request for %s: %w", a.boardToken, err)
	}
	return doRequest(a.client, req, "greenhouse:"+a.boardToken)
}

func (a *GreenhouseAdapter) Split(payload []byte) ([]json.RawMessage, error) {
	var resp greenhouseResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("greenhouse envelope: %w", err)
	}
	return resp.Jobs, nil
}

func (a *GreenhouseAdapter) Parse(item json.RawMessage) (model.Posting, error) {
	var gj greenhouseJob
	if err := json.Unmarshal(item, &gj); err != nil {
		return model.Posting{}, malformed(item, "greenhouse job: %w", err)
	}
	if gj.ID == 0 || strings.TrimSpace(gj.Title) == "" {
		return model.Posting{}, malformed(item, "greenhouse job: missing id or title")
	}

	p := model.Posting{
		ExternalID:  strconv.FormatInt(gj.ID, 10),
		Title:       gj.Title,
		Company:     a.companyName,
		Location:    gj.Location.Name,
		Description: gj.Content,
		URL:         gj.AbsoluteURL,
	}

	// first_published is the real posting date; updated_at moves on every edit.
	for _, ts := range []string{gj.FirstPublished, gj.UpdatedAt} {
		if ts == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			t = t.UTC()
			p.PostedAt = &t
			break
		}
	}

	if len(gj.PayInputRanges) > 0 {
		pr := gj.PayInputRanges[0]
		if pr.MaxCents > 0 {
			p.Salary = &model.Salary{
				Min:      float64(pr.MinCents) / 100,
				Max:      float64(pr.MaxCents) / 100,
				Currency: strings.ToUpper(pr.CurrencyType),
			}
		}
	}

	for _, m := range gj.Metadata {
		if !strings.EqualFold(m.Name, "employment type") {
			continue
		}
		if s, ok := m.Value.(string); ok {
			p.EmploymentType = s
		}
	}
	return p, nil
}

package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/amishk599/jobcatalog/internal/model"
)

const workdayPageSize = 20

// workdayListingResponse is the response from the Workday jobs listing endpoint.
type workdayListingResponse struct {
	Total       int               `json:"total"`
	JobPostings []json.RawMessage `json:"jobPostings"`
}

type workdayListing struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	BulletFields  []string `json:"bulletFields"`
	TimeType      string   `json:"timeType"`
}

// workdayListingRequest is the POST body for the Workday jobs listing endpoint.
type workdayListingRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

// WorkdayAdapter reads a Workday career site. It is the only source with
// server-side search and pagination; the page token is the listing offset.
type WorkdayAdapter struct {
	baseURL     string
	companyName string
	client      *http.Client
}

// NewWorkdayAdapter creates an adapter for a Workday career site API root,
// e.g. https://acme.wd5.myworkdayjobs.com/wday/cxs/acme/External.
func NewWorkdayAdapter(baseURL, companyName string, client *http.Client) *WorkdayAdapter {
	return &WorkdayAdapter{
		baseURL:     strings.TrimRight(baseURL, "/"),
		companyName: companyName,
		client:      client,
	}
}

func (a *WorkdayAdapter) Name() string { return "workday" }

// Fetch retrieves one listing page. Location is folded into the search text
// because facet ids are tenant specific.
func (a *WorkdayAdapter) Fetch(ctx context.Context, q model.Query) (model.SourcePage, error) {
	offset := 0
	if q.PageToken != "" {
		n, err := strconv.Atoi(q.PageToken)
		if err != nil || n < 0 {
			return model.SourcePage{}, fmt.Errorf("workday page token %q: not an offset", q.PageToken)
		}
		offset = n
	}

	search := strings.TrimSpace(q.Text + " " + q.Location)
	body, err := json.Marshal(workdayListingRequest{
		AppliedFacets: map[string]any{},
		Limit:         workdayPageSize,
		Offset:        offset,
		SearchText:    search,
	})
	if err != nil {
		return model.SourcePage{}, fmt.Errorf("workday listing marshal for %s: %w", a.companyName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return model.SourcePage{}, fmt.Errorf("workday listing request for %s: %w", a.companyName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	page, err := doRequest(a.client, req, "workday:"+a.companyName)
	if err != nil {
		return page, err
	}

	var peek workdayListingResponse
	if json.Unmarshal(page.Payload, &peek) == nil {
		next := offset + workdayPageSize
		if len(peek.JobPostings) > 0 && next < peek.Total {
			page.NextPageToken = strconv.Itoa(next)
		}
	}
	return page, nil
}

func (a *WorkdayAdapter) Split(payload []byte) ([]json.RawMessage, error) {
	var resp workdayListingResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("workday envelope: %w", err)
	}
	return resp.JobPostings, nil
}

func (a *WorkdayAdapter) Parse(item json.RawMessage) (model.Posting, error) {
	var l workdayListing
	if err := json.Unmarshal(item, &l); err != nil {
		return model.Posting{}, malformed(item, "workday listing: %w", err)
	}
	if strings.TrimSpace(l.Title) == "" || l.ExternalPath == "" {
		return model.Posting{}, malformed(item, "workday listing: missing title or externalPath")
	}

	id := l.ExternalPath
	if len(l.BulletFields) > 0 && l.BulletFields[0] != "" {
		// The first bullet field is the requisition id on most tenants.
		id = l.BulletFields[0]
	}

	location := l.LocationsText
	if isAmbiguousLocation(location) {
		location = ""
	}

	return model.Posting{
		ExternalID:     id,
		Title:          l.Title,
		Company:        a.companyName,
		Location:       location,
		EmploymentType: l.TimeType,
		URL:            workdayPublicURL(a.baseURL, l.ExternalPath),
		PostedText:     l.PostedOn,
	}, nil
}

// isAmbiguousLocation returns true for Workday location strings like
// "2 Locations" where the actual location is unknown without a detail fetch.
func isAmbiguousLocation(loc string) bool {
	fields := strings.Fields(loc)
	if len(fields) != 2 {
		return false
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return false
	}
	return fields[1] == "Location" || fields[1] == "Locations"
}

// workdayPublicURL maps the API root /wday/cxs/{tenant}/{site} onto the
// candidate-facing /{site}{externalPath}.
func workdayPublicURL(apiRoot, externalPath string) string {
	u, err := url.Parse(apiRoot)
	if err != nil {
		return apiRoot + externalPath
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) >= 4 && segs[0] == "wday" && segs[1] == "cxs" {
		u.Path = "/" + segs[3] + externalPath
		return u.String()
	}
	return apiRoot + externalPath
}

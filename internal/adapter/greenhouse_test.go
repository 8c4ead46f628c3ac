package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amishk599/jobcatalog/internal/model"
)

// roundTripFunc adapts a function into an http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestGreenhouse(srv *httptest.Server) *GreenhouseAdapter {
	a := NewGreenhouseAdapter("acme", "Acme Corp", srv.Client())
	a.baseURL = srv.URL
	return a
}

const greenhousePayload = `{
	"jobs": [
		{
			"id": 12345,
			"title": "Software Engineer",
			"location": {"name": "San Francisco, CA"},
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/12345",
			"first_published": "2026-02-10T09:00:00Z",
			"updated_at": "2026-02-13T10:00:00Z",
			"content": "&lt;p&gt;Build Go services&lt;/p&gt;",
			"pay_input_ranges": [{"min_cents": 9000000, "max_cents": 12000000, "currency_type": "usd", "title": "Base"}],
			"metadata": [{"name": "Employment Type", "value": "Full-time"}]
		},
		{
			"id": 67890,
			"title": "Backend Engineer",
			"location": {"name": "Remote, US"},
			"absolute_url": "https://boards.greenhouse.io/acme/jobs/67890",
			"updated_at": "2026-02-13T11:30:00Z"
		},
		{"id": 0, "title": ""}
	]
}`

func TestGreenhouseFetch_Success(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(greenhousePayload))
	}))
	defer srv.Close()

	page, err := newTestGreenhouse(srv).Fetch(context.Background(), model.Query{Text: "engineer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/acme/jobs" {
		t.Errorf("expected path /acme/jobs, got %s", gotPath)
	}
	if !strings.Contains(gotQuery, "content=true") {
		t.Errorf("expected content=true in query, got %s", gotQuery)
	}
	if page.StatusCode != http.StatusOK || string(page.Payload) != greenhousePayload {
		t.Errorf("payload not returned unmodified")
	}
	if page.NextPageToken != "" {
		t.Errorf("greenhouse does not paginate, got token %q", page.NextPageToken)
	}
}

func TestGreenhouseSplitAndParse(t *testing.T) {
	a := NewGreenhouseAdapter("acme", "Acme Corp", http.DefaultClient)

	items, err := a.Split([]byte(greenhousePayload))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	p, err := a.Parse(items[0])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.ExternalID != "12345" || p.Company != "Acme Corp" || p.Title != "Software Engineer" {
		t.Errorf("unexpected posting: %+v", p)
	}
	if p.PostedAt == nil || p.PostedAt.Day() != 10 {
		t.Errorf("expected first_published date, got %v", p.PostedAt)
	}
	if p.Salary == nil || p.Salary.Min != 90000 || p.Salary.Max != 120000 || p.Salary.Currency != "USD" {
		t.Errorf("unexpected salary: %+v", p.Salary)
	}
	if p.EmploymentType != "Full-time" {
		t.Errorf("expected employment type Full-time, got %q", p.EmploymentType)
	}

	p2, err := a.Parse(items[1])
	if err != nil {
		t.Fatalf("Parse second: %v", err)
	}
	if p2.PostedAt == nil || p2.PostedAt.Day() != 13 {
		t.Errorf("expected updated_at fallback, got %v", p2.PostedAt)
	}

	_, err = a.Parse(items[2])
	var malformedErr *model.MalformedDataError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("expected MalformedDataError, got %v", err)
	}
	if string(malformedErr.Payload) != string(items[2]) {
		t.Errorf("malformed error should keep the original payload")
	}
}

func TestGreenhouseSplit_BadEnvelope(t *testing.T) {
	a := NewGreenhouseAdapter("acme", "Acme Corp", http.DefaultClient)
	if _, err := a.Split([]byte(`<html>maintenance</html>`)); err == nil {
		t.Fatal("expected error for non-JSON envelope")
	}
}

func TestGreenhouseFetch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	page, err := newTestGreenhouse(srv).Fetch(context.Background(), model.Query{})
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 429 || httpErr.RetryAfter.Seconds() != 30 {
		t.Errorf("unexpected error fields: %+v", httpErr)
	}
	if string(page.Payload) != `{"error":"slow down"}` {
		t.Errorf("error body should still be returned, got %q", page.Payload)
	}
}

func TestGreenhouseFetch_NetworkErrorIsTransient(t *testing.T) {
	a := NewGreenhouseAdapter("acme", "Acme Corp", &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset by peer")
		}),
	})

	_, err := a.Fetch(context.Background(), model.Query{})
	var transient *model.TransientSourceError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientSourceError, got %v", err)
	}
}

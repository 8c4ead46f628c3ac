package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amishk599/jobcatalog/internal/model"
)

func TestWorkdayFetch_PaginatesByOffset(t *testing.T) {
	var bodies []workdayListingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/wday/cxs/acme/External/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		var req workdayListingRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("bad request body: %v", err)
			return
		}
		bodies = append(bodies, req)
		w.Write([]byte(`{"total": 45, "jobPostings": [{"title": "SRE", "externalPath": "/job/Austin/SRE_R1"}]}`))
	}))
	defer srv.Close()

	a := NewWorkdayAdapter(srv.URL+"/wday/cxs/acme/External/", "Acme", srv.Client())

	page, err := a.Fetch(context.Background(), model.Query{Text: "engineer", Location: "Austin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.NextPageToken != "20" {
		t.Errorf("expected next token 20, got %q", page.NextPageToken)
	}

	page, err = a.Fetch(context.Background(), model.Query{Text: "engineer", PageToken: "40"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.NextPageToken != "" {
		t.Errorf("expected last page, got token %q", page.NextPageToken)
	}

	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	if bodies[0].SearchText != "engineer Austin" || bodies[0].Offset != 0 || bodies[0].Limit != workdayPageSize {
		t.Errorf("unexpected first body: %+v", bodies[0])
	}
	if bodies[1].Offset != 40 {
		t.Errorf("expected offset 40, got %d", bodies[1].Offset)
	}
}

func TestWorkdayFetch_BadPageToken(t *testing.T) {
	a := NewWorkdayAdapter("http://127.0.0.1:1/wday/cxs/acme/External", "Acme", http.DefaultClient)
	if _, err := a.Fetch(context.Background(), model.Query{PageToken: "next"}); err == nil {
		t.Fatal("expected error for non-numeric page token")
	}
}

func TestWorkdayParse(t *testing.T) {
	a := NewWorkdayAdapter("https://acme.wd5.myworkdayjobs.com/wday/cxs/acme/External", "Acme", http.DefaultClient)
	items, err := a.Split([]byte(`{"total": 2, "jobPostings": [
		{"title": "SRE", "externalPath": "/job/Austin/SRE_R1", "locationsText": "Austin, TX", "postedOn": "Posted 3 Days Ago", "bulletFields": ["R1"], "timeType": "Full time"},
		{"title": "Analyst", "externalPath": "/job/x/Analyst_R2", "locationsText": "2 Locations"}
	]}`))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	p, err := a.Parse(items[0])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.ExternalID != "R1" || p.PostedText != "Posted 3 Days Ago" || p.EmploymentType != "Full time" {
		t.Errorf("unexpected posting: %+v", p)
	}
	if p.URL != "https://acme.wd5.myworkdayjobs.com/External/job/Austin/SRE_R1" {
		t.Errorf("unexpected public url %q", p.URL)
	}

	p2, err := a.Parse(items[1])
	if err != nil {
		t.Fatalf("Parse second: %v", err)
	}
	if p2.Location != "" {
		t.Errorf("ambiguous location should be dropped, got %q", p2.Location)
	}
	if p2.ExternalID != "/job/x/Analyst_R2" {
		t.Errorf("expected externalPath id fallback, got %q", p2.ExternalID)
	}
}

func TestIsAmbiguousLocation(t *testing.T) {
	tests := map[string]bool{
		"2 Locations":  true,
		"1 Location":   true,
		"Austin, TX":   false,
		"12 Locations": true,
		"Locations":    false,
	}
	for in, want := range tests {
		if got := isAmbiguousLocation(in); got != want {
			t.Errorf("isAmbiguousLocation(%q) = %v, want %v", in, got, want)
		}
	}
}

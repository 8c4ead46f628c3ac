package model

import "time"

// FetchStatus is the outcome of a collection attempt.
type FetchStatus string

const (
	FetchSucceeded FetchStatus = "succeeded"
	FetchFailed    FetchStatus = "failed"
)

// Query holds the parameters sent to a job source.
type Query struct {
	Text      string `json:"text,omitempty"`
	Location  string `json:"location,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

// SourcePage is one response from a job source.
type SourcePage struct {
	StatusCode    int
	Payload       []byte
	NextPageToken string
}

// RawCollection is an unmodified source response retained for audit and reprocessing.
// It is never edited after it is written.
type RawCollection struct {
	ID            string      `json:"id"`
	CollectedAt   time.Time   `json:"collected_at"`
	Source        string      `json:"source"`
	Query         Query       `json:"query"`
	Payload       []byte      `json:"payload"`
	Status        FetchStatus `json:"status"`
	HTTPStatus    int         `json:"http_status,omitempty"`
	Attempts      int         `json:"attempts"`
	Error         string      `json:"error,omitempty"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

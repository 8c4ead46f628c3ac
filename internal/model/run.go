package model

import "time"

// RunState is the orchestrator's position in a pipeline run.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunCollecting RunState = "collecting"
	RunProcessing RunState = "processing"
	RunLoading    RunState = "loading" // deduplicating and loading
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
)

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// StageReport times one stage of a run.
type StageReport struct {
	Name       RunState   `json:"name"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Items      int        `json:"items"`
	Failed     int        `json:"failed"`
}

// RunReport is the persisted outcome of one run.
type RunReport struct {
	ID         string        `json:"id"`
	State      RunState      `json:"state"`
	Cancelled  bool          `json:"cancelled"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Stages     []StageReport `json:"stages"`

	Collected  int `json:"collected"`  // source pages fetched and stored
	Processed  int `json:"processed"`  // items staged
	Loaded     int `json:"loaded"`     // new canonical jobs
	Duplicates int `json:"duplicates"` // merged into an existing canonical
	Review     int `json:"review"`     // flagged for review
	Failed     int `json:"failed"`     // failed fetches and items
	Backfilled int `json:"backfilled"` // embeddings computed for existing jobs
}

// Duration is the elapsed run time, zero while running.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage returns the report for name, or nil when the run never reached it.
func (r *RunReport) Stage(name RunState) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// Alert is an operator-facing failure notice.
type Alert struct {
	RunID   string    `json:"run_id,omitempty"`
	Stage   RunState  `json:"stage,omitempty"`
	Message string    `json:"message"`
	Err     string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

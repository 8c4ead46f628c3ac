package store

import (
	"context"
	"database/sql"
	"time"
)

// RunRow is a persisted run report. Report holds the JSON body.
type RunRow struct {
	ID         string        `db:"id"`
	Status     string        `db:"status"`
	Cancelled  bool          `db:"cancelled"`
	StartedAt  int64         `db:"started_at"`
	FinishedAt sql.NullInt64 `db:"finished_at"`
	Report     string        `db:"report"`
}

// SaveRun inserts or replaces a run report.
func (q *Queries) SaveRun(ctx context.Context, id, status string, cancelled bool, started time.Time, finished *time.Time, report []byte) error {
	_, err := q.exec(ctx, "save run",
		`INSERT INTO runs (id, status, cancelled, started_at, finished_at, report) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, cancelled = excluded.cancelled,
		     finished_at = excluded.finished_at, report = excluded.report`,
		id, status, cancelled, millis(started), nullMillis(finished), string(report))
	return err
}

// LatestRun returns the most recently started run.
func (q *Queries) LatestRun(ctx context.Context) (*RunRow, error) {
	var row RunRow
	if err := q.get(ctx, "latest run", &row,
		`SELECT id, status, cancelled, started_at, finished_at, report FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`); err != nil {
		return nil, err
	}
	return &row, nil
}

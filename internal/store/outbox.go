package store

import (
	"context"
	"database/sql"
	"time"
)

// Outbox operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// OutboxEntry is one pending vector index write.
type OutboxEntry struct {
	ID            int64  `db:"id"`
	CanonicalID   string `db:"canonical_id"`
	Op            string `db:"op"`
	Model         string `db:"model"`
	Attempts      int    `db:"attempts"`
	LastError     string `db:"last_error"`
	NextAttemptAt int64  `db:"next_attempt_at"`
	CreatedAt     int64  `db:"created_at"`
}

// OutboxStats summarizes the outbox for metrics.
type OutboxStats struct {
	Depth         int           // undelivered entries
	Failing       int           // undelivered entries with at least one failed attempt
	OldestPending time.Duration // age of the oldest undelivered entry
}

// EnqueueIndex queues an index write. Call it in the same transaction as the row change.
func (q *Queries) EnqueueIndex(ctx context.Context, canonicalID, op, modelID string, now time.Time) error {
	_, err := q.exec(ctx, "enqueue index write",
		`INSERT INTO index_outbox (canonical_id, op, model, attempts, last_error, next_attempt_at, created_at)
		 VALUES (?, ?, ?, 0, '', ?, ?)`,
		canonicalID, op, modelID, millis(now), millis(now))
	return err
}

// DueOutbox returns undelivered entries whose next attempt is due, oldest first.
func (q *Queries) DueOutbox(ctx context.Context, now time.Time, maxAttempts, limit int) ([]OutboxEntry, error) {
	var rows []OutboxEntry
	err := q.selectRows(ctx, "list due outbox entries", &rows,
		`SELECT id, canonical_id, op, model, attempts, last_error, next_attempt_at, created_at
		 FROM index_outbox
		 WHERE done_at IS NULL AND next_attempt_at <= ? AND attempts < ?
		 ORDER BY id LIMIT ?`,
		millis(now), maxAttempts, limitOrDefault(limit))
	return rows, err
}

// MarkOutboxDone marks an entry delivered.
func (q *Queries) MarkOutboxDone(ctx context.Context, id int64, now time.Time) error {
	_, err := q.exec(ctx, "mark outbox entry done",
		`UPDATE index_outbox SET done_at = ? WHERE id = ?`, millis(now), id)
	return err
}

// MarkOutboxFailed records a failed attempt and schedules the next one.
func (q *Queries) MarkOutboxFailed(ctx context.Context, id int64, lastErr string, next time.Time) error {
	_, err := q.exec(ctx, "mark outbox entry failed",
		`UPDATE index_outbox SET attempts = attempts + 1, last_error = ?, next_attempt_at = ? WHERE id = ?`,
		lastErr, millis(next), id)
	return err
}

// OutboxStats reports depth and lag at now.
func (q *Queries) OutboxStats(ctx context.Context, now time.Time) (OutboxStats, error) {
	var row struct {
		Depth   int           `db:"depth"`
		Failing sql.NullInt64 `db:"failing"`
		Oldest  sql.NullInt64 `db:"oldest"`
	}
	err := q.get(ctx, "outbox stats", &row,
		`SELECT COUNT(*) AS depth,
		        SUM(CASE WHEN attempts > 0 THEN 1 ELSE 0 END) AS failing,
		        MIN(created_at) AS oldest
		 FROM index_outbox WHERE done_at IS NULL`)
	if err != nil {
		return OutboxStats{}, err
	}
	stats := OutboxStats{Depth: row.Depth, Failing: int(row.Failing.Int64)}
	if row.Oldest.Valid {
		stats.OldestPending = now.Sub(fromMillis(row.Oldest.Int64))
	}
	return stats, nil
}

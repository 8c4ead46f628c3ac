package store

import (
	"context"
	"fmt"
	"time"

	"github.com/amishk599/jobcatalog/internal/model"
)

const duplicateColumns = `id, canonical_id, duplicate_id, confidence, matched_fields, strategy, reviewed, resolution, created_at, reviewed_at`

// InsertDuplicateLink records a duplicate decision.
func (q *Queries) InsertDuplicateLink(ctx context.Context, l *model.DuplicateLink) error {
	_, err := q.exec(ctx, "insert duplicate link",
		`INSERT INTO duplicate_links (`+duplicateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CanonicalID, l.DuplicateID, l.Confidence, encodeStrings(l.MatchedFields), string(l.Strategy),
		l.Reviewed, string(l.Resolution), millis(l.CreatedAt), nullMillis(l.ReviewedAt))
	return err
}

// GetDuplicateLink loads one link.
func (q *Queries) GetDuplicateLink(ctx context.Context, id string) (*model.DuplicateLink, error) {
	var row duplicateRow
	if err := q.get(ctx, "get duplicate link", &row,
		`SELECT `+duplicateColumns+` FROM duplicate_links WHERE id = ?`, id); err != nil {
		return nil, err
	}
	l := row.model()
	return &l, nil
}

// ListUnreviewed returns the review queue, oldest first.
func (q *Queries) ListUnreviewed(ctx context.Context, limit int) ([]model.DuplicateLink, error) {
	var rows []duplicateRow
	err := q.selectRows(ctx, "list review queue", &rows,
		`SELECT `+duplicateColumns+` FROM duplicate_links WHERE reviewed = ? ORDER BY created_at, id LIMIT ?`,
		false, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	out := make([]model.DuplicateLink, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// LinksFor lists every link whose canonical side is canonicalID, oldest first.
func (q *Queries) LinksFor(ctx context.Context, canonicalID string) ([]model.DuplicateLink, error) {
	var rows []duplicateRow
	err := q.selectRows(ctx, "list duplicate links", &rows,
		`SELECT `+duplicateColumns+` FROM duplicate_links WHERE canonical_id = ? ORDER BY created_at, id`, canonicalID)
	if err != nil {
		return nil, err
	}
	out := make([]model.DuplicateLink, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// CountUnreviewed returns the review queue length.
func (q *Queries) CountUnreviewed(ctx context.Context) (int, error) {
	var n int
	err := q.get(ctx, "count review queue", &n, `SELECT COUNT(*) FROM duplicate_links WHERE reviewed = ?`, false)
	return n, err
}

// MarkReviewed sets the reviewed flag and resolution of an unreviewed link.
func (q *Queries) MarkReviewed(ctx context.Context, id string, resolution model.Resolution, now time.Time) error {
	res, err := q.exec(ctx, "mark duplicate link reviewed",
		`UPDATE duplicate_links SET reviewed = ?, resolution = ?, reviewed_at = ? WHERE id = ? AND reviewed = ?`,
		true, string(resolution), millis(now), id, false)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark duplicate link %s reviewed: %w", id, ErrNotFound)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobcatalog/internal/model"
)

const processingColumns = `id, raw_collection_id, source, status, total_items, succeeded, failed, message, created_at, updated_at`

// CreateProcessingRecord inserts a pending record for a raw collection.
func (q *Queries) CreateProcessingRecord(ctx context.Context, rawID, source string, now time.Time) (*model.ProcessingRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate processing record id: %w", err)
	}
	rec := &model.ProcessingRecord{
		ID:              id.String(),
		RawCollectionID: rawID,
		Source:          source,
		Status:          model.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err = q.exec(ctx, "create processing record",
		`INSERT INTO processing_log (`+processingColumns+`) VALUES (?, ?, ?, ?, 0, 0, 0, '', ?, ?)`,
		rec.ID, rec.RawCollectionID, rec.Source, string(rec.Status), millis(now), millis(now))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// EnsureProcessingRecord returns the newest record for rawID, creating a
// pending one when none exists. created reports whether a row was inserted.
func (q *Queries) EnsureProcessingRecord(ctx context.Context, rawID, source string, now time.Time) (rec *model.ProcessingRecord, created bool, err error) {
	var row processingRow
	err = q.get(ctx, "find processing record", &row,
		`SELECT `+processingColumns+` FROM processing_log WHERE raw_collection_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, rawID)
	if err == nil {
		m := row.model()
		return &m, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	rec, err = q.CreateProcessingRecord(ctx, rawID, source, now)
	return rec, err == nil, err
}

// PendingProcessingRecords lists pending records oldest first.
func (q *Queries) PendingProcessingRecords(ctx context.Context, limit int) ([]model.ProcessingRecord, error) {
	return q.listProcessing(ctx, model.StatusPending, limit)
}

// ListProcessingRecords lists records with status, or all records when status is empty, newest first.
func (q *Queries) ListProcessingRecords(ctx context.Context, status model.ProcessingStatus, limit int) ([]model.ProcessingRecord, error) {
	var rows []processingRow
	query := `SELECT ` + processingColumns + ` FROM processing_log`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limitOrDefault(limit))
	if err := q.selectRows(ctx, "list processing records", &rows, query, args...); err != nil {
		return nil, err
	}
	return processingModels(rows), nil
}

func (q *Queries) listProcessing(ctx context.Context, status model.ProcessingStatus, limit int) ([]model.ProcessingRecord, error) {
	var rows []processingRow
	err := q.selectRows(ctx, "list processing records", &rows,
		`SELECT `+processingColumns+` FROM processing_log WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		string(status), limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	return processingModels(rows), nil
}

func processingModels(rows []processingRow) []model.ProcessingRecord {
	out := make([]model.ProcessingRecord, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}

// ClaimProcessingRecord moves a pending record to processing. It reports
// false when another worker already claimed it.
func (q *Queries) ClaimProcessingRecord(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := q.exec(ctx, "claim processing record",
		`UPDATE processing_log SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.StatusProcessing), millis(now), id, string(model.StatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &model.StorageError{Op: "claim processing record", Err: err}
	}
	return n == 1, nil
}

// ResetStaleProcessing returns records stranded in processing to pending.
func (q *Queries) ResetStaleProcessing(ctx context.Context, now time.Time) (int, error) {
	res, err := q.exec(ctx, "reset stale processing records",
		`UPDATE processing_log SET status = ?, updated_at = ? WHERE status = ?`,
		string(model.StatusPending), millis(now), string(model.StatusProcessing))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &model.StorageError{Op: "reset stale processing records", Err: err}
	}
	return int(n), nil
}

// FinishProcessingRecord writes the terminal status, item errors and staged
// jobs of a claimed record. Call it inside WithTx so counts and rows commit together.
func (q *Queries) FinishProcessingRecord(ctx context.Context, rec *model.ProcessingRecord, staged []model.StagedJob) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("finish processing record %s: status %s is not terminal", rec.ID, rec.Status)
	}
	if rec.Succeeded+rec.Failed != rec.TotalItems {
		return fmt.Errorf("finish processing record %s: %d succeeded + %d failed != %d items",
			rec.ID, rec.Succeeded, rec.Failed, rec.TotalItems)
	}

	for i := range staged {
		if err := q.insertStaged(ctx, &staged[i]); err != nil {
			return err
		}
	}
	for _, ie := range rec.Errors {
		_, err := q.exec(ctx, "insert item error",
			`INSERT INTO processing_item_errors (record_id, item_index, message, payload) VALUES (?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			rec.ID, ie.Index, ie.Message, ie.Payload)
		if err != nil {
			return err
		}
	}

	res, err := q.exec(ctx, "finish processing record",
		`UPDATE processing_log
		 SET status = ?, total_items = ?, succeeded = ?, failed = ?, message = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(rec.Status), rec.TotalItems, rec.Succeeded, rec.Failed, rec.Message, millis(rec.UpdatedAt),
		rec.ID, string(model.StatusProcessing))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &model.StorageError{Op: "finish processing record", Err: err}
	}
	if n != 1 {
		return &model.StorageError{Op: "finish processing record", Err: fmt.Errorf("record %s is not in processing", rec.ID)}
	}
	return nil
}

// GetProcessingRecord loads a record with its item errors.
func (q *Queries) GetProcessingRecord(ctx context.Context, id string) (*model.ProcessingRecord, error) {
	var row processingRow
	if err := q.get(ctx, "get processing record", &row,
		`SELECT `+processingColumns+` FROM processing_log WHERE id = ?`, id); err != nil {
		return nil, err
	}
	rec := row.model()

	var errs []itemErrorRow
	if err := q.selectRows(ctx, "list item errors", &errs,
		`SELECT record_id, item_index, message, payload FROM processing_item_errors WHERE record_id = ? ORDER BY item_index`, id); err != nil {
		return nil, err
	}
	for _, e := range errs {
		rec.Errors = append(rec.Errors, model.ItemError{Index: e.ItemIndex, Message: e.Message, Payload: e.Payload})
	}
	return &rec, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}

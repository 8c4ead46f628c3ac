package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/amishk599/jobcatalog/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "sqlmock"), slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestDriverFailureIsStorageError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE processing_log").WillReturnError(errors.New("disk I/O error"))

	_, err := s.Queries().ResetStaleProcessing(context.Background(), t0)
	var storageErr *model.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if storageErr.Op != "reset stale processing records" {
		t.Errorf("unexpected op %q", storageErr.Op)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresUniqueViolationIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO canonical_jobs").WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := s.Queries().InsertCanonical(context.Background(), canonical("c1", "sig", "Acme"))
	var conflict *model.DuplicateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected DuplicateConflictError, got %v", err)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO index_outbox").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(q *Queries) error {
		if err := q.EnqueueIndex(context.Background(), "a", OpUpsert, "m", t0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCommitFailureIsStorageError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err := s.WithTx(context.Background(), func(*Queries) error { return nil })
	var storageErr *model.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

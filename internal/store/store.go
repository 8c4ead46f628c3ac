// Package store is the relational side of the catalog: the processing log,
// staged jobs, canonical jobs with their source links and embeddings,
// duplicate links, the index outbox and run history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/model"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	defaultPingTimeout = 5 * time.Second
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

func init() {
	sqlx.BindDriver(driverSQLite, sqlx.QUESTION)
}

// Store owns the database handle.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	logger = logger.With("component", "store", "driver", cfg.Driver)

	dsn := cfg.DSN
	if cfg.Driver == driverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	if err := Migrate(cfg.Driver, dsn, logger); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", cfg.Driver, err)
	}
	if cfg.Driver == driverSQLite {
		// A single writer connection keeps sqlite transactions serialized.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s db: %w", cfg.Driver, err)
	}

	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing handle without migrating it.
func NewWithDB(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &model.StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Queries runs statements outside an explicit transaction.
func (s *Store) Queries() *Queries {
	return &Queries{ext: s.db}
}

// WithTx runs fn in a read-write transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &model.StorageError{Op: "begin tx", Err: err}
	}
	if err := fn(&Queries{ext: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit tx", "", err)
	}
	return nil
}

// View runs fn in one transaction that is always rolled back, so every read
// inside it sees the same committed snapshot.
func (s *Store) View(ctx context.Context, fn func(q *Queries) error) error {
	var opts *sql.TxOptions
	if s.db.DriverName() == driverPostgres {
		opts = &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return &model.StorageError{Op: "begin read tx", Err: err}
	}
	defer tx.Rollback()
	return fn(&Queries{ext: tx})
}

// Queries holds every statement. It runs against the database or a transaction.
type Queries struct {
	ext sqlx.ExtContext
}

func (q *Queries) rebind(query string) string {
	return q.ext.Rebind(query)
}

func (q *Queries) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := q.ext.ExecContext(ctx, q.rebind(query), args...)
	if err != nil {
		return nil, classify(op, "", err)
	}
	return res, nil
}

func (q *Queries) get(ctx context.Context, op string, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, q.ext, dest, q.rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return classify(op, "", err)
	}
	return nil
}

func (q *Queries) selectRows(ctx context.Context, op string, dest any, query string, args ...any) error {
	if err := sqlx.SelectContext(ctx, q.ext, dest, q.rebind(query), args...); err != nil {
		return classify(op, "", err)
	}
	return nil
}

// classify maps driver errors onto the error taxonomy.
func classify(op, signature string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isUniqueViolation(err) {
		return &model.DuplicateConflictError{Signature: signature, Err: err}
	}
	return &model.StorageError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Package postgres implements the scriptx backend for PostgreSQL.
//
// Statements are issued through database/sql. The connection is made either
// by pgx (the default) or by lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Doomsta/scriptx"
)

const (
	// DriverName is the database/sql driver registered by pgx
	DriverName = "pgx"
	// PQDriverName is the database/sql driver registered by lib/pq
	PQDriverName = "postgres"

	uniqueViolation = "23505"
)

// Open connects to dsn. With PQDriverName it goes through lib/pq, otherwise
// through a pgx pool; the returned func closes the pool after the *sql.DB.
func Open(ctx context.Context, driverName, dsn string) (*sql.DB, func(), error) {
	if driverName == PQDriverName {
		db, err := sql.Open(PQDriverName, dsn)
		if err != nil {
			return nil, nil, errors.WithStack(err)
		}
		return db, func() { _ = db.Close() }, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "creating pgx pool")
	}
	db := stdlib.OpenDBFromPool(pool)
	return db, func() {
		_ = db.Close()
		pool.Close()
	}, nil
}

// New returns the PostgreSQL backend issuing statements on db
func New(db scriptx.Execer, tables scriptx.Tables) scriptx.Backend {
	tables = tables.WithDefaults()
	ledger := scriptx.NewSQLLedger(db, Queries(tables))
	return scriptx.Backend{
		Ledger:   ledger,
		Lock:     NewLock(db, ledger, tables),
		Executor: scriptx.BatchExecutor{},
	}
}

// Queries returns the ledger statements for tables
func Queries(tables scriptx.Tables) scriptx.LedgerQueries {
	ledger, lock := pq.QuoteIdentifier(tables.Ledger), pq.QuoteIdentifier(tables.Lock)
	return scriptx.LedgerQueries{
		Ensure: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          SERIAL PRIMARY KEY,
	version     VARCHAR(255) NOT NULL UNIQUE,
	description TEXT,
	applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	checksum    VARCHAR(64)
)`, ledger),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id        INTEGER PRIMARY KEY,
	locked_at TIMESTAMPTZ,
	locked_by TEXT
)`, lock),
			fmt.Sprintf(`INSERT INTO %s (id) VALUES (1) ON CONFLICT (id) DO NOTHING`, lock),
		},
		SelectVersions: fmt.Sprintf(`SELECT version FROM %s`, ledger),
		SelectRecords: fmt.Sprintf(`SELECT version, description, checksum, applied_at
FROM %s
	ORDER BY version ASC`, ledger),
		Insert:      fmt.Sprintf(`INSERT INTO %s (version, description, checksum) VALUES ($1, $2, $3)`, ledger),
		IsDuplicate: isDuplicate,
	}
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

type ensurer interface {
	Ensure(ctx context.Context) error
}

// Lock is a session level advisory lock keyed by the ledger table name.
// It is released when the session ends, so a killed process never leaves it behind.
type Lock struct {
	db     scriptx.Execer
	tables ensurer
	table  string
	key    int64
	held   bool
}

// NewLock returns the advisory lock guarding tables.Ledger
func NewLock(db scriptx.Execer, tables ensurer, names scriptx.Tables) *Lock {
	return &Lock{
		db:     db,
		tables: tables,
		table:  pq.QuoteIdentifier(names.Lock),
		key:    hashLockKey("scriptx:" + names.Ledger),
	}
}

// Acquire takes the advisory lock without waiting, then creates the tracking
// tables and marks the lock row with the backend pid for visibility.
func (l *Lock) Acquire(ctx context.Context) error {
	var acquired bool
	if err := l.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		return scriptx.LockError{Err: errors.WithStack(err)}
	}
	if !acquired {
		return scriptx.LockError{Err: scriptx.ErrLocked}
	}
	l.held = true

	if err := l.tables.Ensure(ctx); err != nil {
		return scriptx.LockError{Err: err}
	}
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET locked_at = NOW(), locked_by = pg_backend_pid()::text WHERE id = 1`, l.table))
	if err != nil {
		return scriptx.LockError{Err: errors.WithStack(err)}
	}
	return nil
}

func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false

	// the row only mirrors the advisory lock
	_, rowErr := l.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET locked_at = NULL, locked_by = NULL WHERE id = 1`, l.table))

	var released bool
	if err := l.db.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key).Scan(&released); err != nil {
		return errors.WithStack(err)
	}
	if !released {
		return errors.Errorf("advisory lock %d was not held by this session", l.key)
	}
	return errors.WithMessage(rowErr, "clearing lock row")
}

// hashLockKey produces a stable non negative int64 for advisory lock use (FNV-1a)
func hashLockKey(name string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return int64(h & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // masked to non-negative range
}

// Package sqlite implements the scriptx backend for SQLite using modernc.org/sqlite.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Doomsta/scriptx"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite
const DriverName = "sqlite"

// New returns the SQLite backend issuing statements on db
func New(db scriptx.Execer, tables scriptx.Tables) scriptx.Backend {
	tables = tables.WithDefaults()
	ledger := scriptx.NewSQLLedger(db, Queries(tables))
	return scriptx.Backend{
		Ledger:   ledger,
		Lock:     NewLock(db, ledger, tables.Lock),
		Executor: scriptx.BatchExecutor{},
	}
}

// DSN returns a modernc.org/sqlite data source name for the database file at path
func DSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}

// Queries returns the ledger statements for tables
func Queries(tables scriptx.Tables) scriptx.LedgerQueries {
	ledger, lock := quote(tables.Ledger), quote(tables.Lock)
	return scriptx.LedgerQueries{
		Ensure: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	version     TEXT NOT NULL UNIQUE,
	description TEXT,
	applied_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	checksum    TEXT
)`, ledger),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id        INTEGER PRIMARY KEY,
	locked_at TIMESTAMP,
	locked_by TEXT
)`, lock),
			fmt.Sprintf(`INSERT OR IGNORE INTO %s (id) VALUES (1)`, lock),
		},
		SelectVersions: fmt.Sprintf(`SELECT version FROM %s`, ledger),
		SelectRecords: fmt.Sprintf(`SELECT version, description, checksum, applied_at
FROM %s
	ORDER BY version ASC`, ledger),
		Insert:      fmt.Sprintf(`INSERT INTO %s (version, description, checksum) VALUES (?, ?, ?)`, ledger),
		IsDuplicate: isDuplicate,
	}
}

func isDuplicate(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(e.Error(), "UNIQUE")
	}
	return false
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

type ensurer interface {
	Ensure(ctx context.Context) error
}

// Lock is a row lock on the single row of the lock table. The row records
// an owner token, so a second process fails immediately instead of waiting.
// A process killed while holding the lock leaves the row set; clear
// locked_by by hand to recover.
type Lock struct {
	db     scriptx.Execer
	tables ensurer
	table  string
	owner  string
}

// NewLock returns a lock on table. tables creates the lock row before the first acquire.
func NewLock(db scriptx.Execer, tables ensurer, table string) *Lock {
	return &Lock{db: db, tables: tables, table: quote(table)}
}

func (l *Lock) Acquire(ctx context.Context) error {
	if err := l.tables.Ensure(ctx); err != nil {
		return scriptx.LockError{Err: err}
	}

	owner := uuid.NewString()
	res, err := l.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET locked_by = ?, locked_at = CURRENT_TIMESTAMP WHERE id = 1 AND locked_by IS NULL`, l.table), owner)
	if err != nil {
		return scriptx.LockError{Err: errors.WithStack(err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return scriptx.LockError{Err: errors.WithStack(err)}
	}
	if n == 0 {
		return scriptx.LockError{Err: scriptx.ErrLocked}
	}
	l.owner = owner
	return nil
}

func (l *Lock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET locked_by = NULL, locked_at = NULL WHERE id = 1 AND locked_by = ?`, l.table), owner)
	return errors.WithStack(err)
}

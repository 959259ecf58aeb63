package scriptx

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Execer is the minimal interface needed to run statements.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is the single connection a run owns for its whole duration.
// Implemented by *sql.Conn.
type Session interface {
	Execer
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Ledger is the persistent record of applied versions
type Ledger interface {
	// AppliedVersions creates the tracking tables if absent and returns every recorded version
	AppliedVersions(ctx context.Context) (map[string]struct{}, error)
	// Record inserts exactly one row for script. Recording a version twice fails with a RecordError
	Record(ctx context.Context, script Script) error
	// Records returns all ledger rows ordered by version
	Records(ctx context.Context) ([]Record, error)
}

// Lock is the cross-process mutual exclusion held for a whole run
type Lock interface {
	// Acquire fails fast with a LockError wrapping ErrLocked when another process holds the lock
	Acquire(ctx context.Context) error
	// Release is safe to call after a failed Acquire. Its error is only ever logged
	Release(ctx context.Context) error
}

// Executor submits one script to the target
type Executor interface {
	Execute(ctx context.Context, db Execer, script Script) error
}

// Backend bundles the per-database capabilities of a run
type Backend struct {
	Ledger   Ledger
	Lock     Lock
	Executor Executor
	// Savepoints is the savepoint syntax of the target. When nil it is taken
	// from Executor, falling back to standard SQL.
	Savepoints Savepointer
}

func (b Backend) savepoints() Savepointer {
	if b.Savepoints != nil {
		return b.Savepoints
	}
	return savepointer(b.Executor)
}

// LedgerQueries are the dialect specific statements behind a SQLLedger
type LedgerQueries struct {
	// Ensure creates the ledger table, the lock table and its single row if absent
	Ensure []string
	// SelectVersions returns one version column
	SelectVersions string
	// SelectRecords returns version, description, checksum, applied_at ordered by version
	SelectRecords string
	// Insert takes version, description, checksum
	Insert string
	// IsDuplicate reports whether err is a unique constraint violation
	IsDuplicate func(err error) bool
}

// SQLLedger is a Ledger stored in a table of the target database
type SQLLedger struct {
	db      Execer
	queries LedgerQueries
}

// NewSQLLedger returns a ledger issuing queries on db
func NewSQLLedger(db Execer, queries LedgerQueries) *SQLLedger {
	return &SQLLedger{db: db, queries: queries}
}

// Ensure creates the tracking structures if they do not exist
func (l *SQLLedger) Ensure(ctx context.Context) error {
	for _, q := range l.queries.Ensure {
		if _, err := l.db.ExecContext(ctx, q); err != nil {
			return errors.WithMessage(err, "creating migration tables")
		}
	}
	return nil
}

func (l *SQLLedger) AppliedVersions(ctx context.Context) (map[string]struct{}, error) {
	if err := l.Ensure(ctx); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, l.queries.SelectVersions)
	if err != nil {
		return nil, errors.WithMessage(err, "fetching applied migrations")
	}
	defer rows.Close()

	versions := map[string]struct{}{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, errors.WithStack(err)
		}
		versions[version] = struct{}{}
	}
	return versions, errors.WithStack(rows.Err())
}

func (l *SQLLedger) Record(ctx context.Context, script Script) error {
	_, err := l.db.ExecContext(ctx, l.queries.Insert, script.Version, script.Description, script.Checksum)
	if err != nil {
		return RecordError{
			Version:   script.Version,
			Duplicate: l.queries.IsDuplicate != nil && l.queries.IsDuplicate(err),
			Err:       errors.WithStack(err),
		}
	}
	return nil
}

func (l *SQLLedger) Records(ctx context.Context) ([]Record, error) {
	if err := l.Ensure(ctx); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, l.queries.SelectRecords)
	if err != nil {
		return nil, errors.WithMessage(err, "fetching migration records")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record      Record
			description sql.NullString
			checksum    sql.NullString
		)
		if err := rows.Scan(&record.Version, &description, &checksum, &record.AppliedAt); err != nil {
			return nil, errors.WithStack(err)
		}
		record.Description = description.String
		record.Checksum = checksum.String
		records = append(records, record)
	}
	return records, errors.WithStack(rows.Err())
}

const (
	DefaultLedgerTable = "schema_migrations"
	DefaultLockTable   = "schema_migration_lock"
)

// Tables names the ledger table and the lock table
type Tables struct {
	Ledger string
	Lock   string
}

// WithDefaults fills empty names with DefaultLedgerTable and DefaultLockTable
func (t Tables) WithDefaults() Tables {
	if t.Ledger == "" {
		t.Ledger = DefaultLedgerTable
	}
	if t.Lock == "" {
		t.Lock = DefaultLockTable
	}
	return t
}

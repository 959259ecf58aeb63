// Package mssql implements the scriptx backend for Microsoft SQL Server.
package mssql

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/pkg/errors"

	"github.com/Doomsta/scriptx"
)

// DriverName is the database/sql driver registered by go-mssqldb
const DriverName = "sqlserver"

// batchSeparator is a line holding only GO, the sqlcmd batch terminator
var batchSeparator = regexp.MustCompile(`(?im)^[ \t]*GO[ \t]*$`)

// Executor splits scripts at GO lines and uses T-SQL savepoints
var Executor = scriptx.BatchExecutor{
	Separator:       batchSeparator,
	SavepointFormat: "SAVE TRANSACTION %s",
	RollbackFormat:  "ROLLBACK TRANSACTION %s",
}

// New returns the SQL Server backend issuing statements on db
func New(db scriptx.Execer, tables scriptx.Tables) scriptx.Backend {
	tables = tables.WithDefaults()
	ledger := scriptx.NewSQLLedger(db, Queries(tables))
	return scriptx.Backend{
		Ledger:     ledger,
		Lock:       NewLock(db, ledger, "scriptx:"+tables.Ledger),
		Executor:   Executor,
		Savepoints: Executor,
	}
}

// DSN returns a sqlserver:// connection URL
func DSN(host string, port int, database, user, password string) string {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(user, password),
		Host:   host,
	}
	if port > 0 {
		u.Host = host + ":" + strconv.Itoa(port)
	}
	if database != "" {
		u.RawQuery = url.Values{"database": {database}}.Encode()
	}
	return u.String()
}

// Queries returns the ledger statements for tables
func Queries(tables scriptx.Tables) scriptx.LedgerQueries {
	ledger, lock := quote(tables.Ledger), quote(tables.Lock)
	return scriptx.LedgerQueries{
		Ensure: []string{
			fmt.Sprintf(`IF OBJECT_ID(%s, N'U') IS NULL
CREATE TABLE %s (
	id          INT IDENTITY(1,1) PRIMARY KEY,
	version     NVARCHAR(255) NOT NULL UNIQUE,
	description NVARCHAR(MAX),
	applied_at  DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME(),
	checksum    VARCHAR(64)
)`, literal(ledger), ledger),
			fmt.Sprintf(`IF OBJECT_ID(%s, N'U') IS NULL
CREATE TABLE %s (
	id        INT PRIMARY KEY,
	locked_at DATETIME2,
	locked_by NVARCHAR(255)
)`, literal(lock), lock),
			fmt.Sprintf(`IF NOT EXISTS (SELECT 1 FROM %s WHERE id = 1)
INSERT INTO %s (id) VALUES (1)`, lock, lock),
		},
		SelectVersions: fmt.Sprintf(`SELECT version FROM %s`, ledger),
		SelectRecords: fmt.Sprintf(`SELECT version, description, checksum, applied_at
FROM %s
	ORDER BY version ASC`, ledger),
		Insert:      fmt.Sprintf(`INSERT INTO %s (version, description, checksum) VALUES (@p1, @p2, @p3)`, ledger),
		IsDuplicate: isDuplicate,
	}
}

// unique constraint and unique index violations
const (
	errUniqueConstraint = 2627
	errUniqueIndex      = 2601
)

func isDuplicate(err error) bool {
	var e mssql.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Number == errUniqueConstraint || e.Number == errUniqueIndex
}

func quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func literal(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type ensurer interface {
	Ensure(ctx context.Context) error
}

// Lock is a session owned application lock (sp_getapplock). It is released
// when the session ends.
type Lock struct {
	db       scriptx.Execer
	tables   ensurer
	resource string
	held     bool
}

func NewLock(db scriptx.Execer, tables ensurer, resource string) *Lock {
	return &Lock{db: db, tables: tables, resource: resource}
}

const getAppLock = `DECLARE @result INT;
EXEC @result = sp_getapplock @Resource = @p1, @LockMode = 'Exclusive', @LockOwner = 'Session', @LockTimeout = 0;
SELECT @result;`

func (l *Lock) Acquire(ctx context.Context) error {
	var result int
	if err := l.db.QueryRowContext(ctx, getAppLock, l.resource).Scan(&result); err != nil {
		return scriptx.LockError{Err: errors.WithStack(err)}
	}
	switch {
	case result == -1:
		return scriptx.LockError{Err: scriptx.ErrLocked}
	case result < 0:
		return scriptx.LockError{Err: errors.Errorf("sp_getapplock returned %d", result)}
	}
	l.held = true

	if err := l.tables.Ensure(ctx); err != nil {
		return scriptx.LockError{Err: err}
	}
	return nil
}

func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	_, err := l.db.ExecContext(ctx,
		`EXEC sp_releaseapplock @Resource = @p1, @LockOwner = 'Session'`, l.resource)
	return errors.WithStack(err)
}

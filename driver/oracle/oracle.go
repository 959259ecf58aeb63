// Package oracle implements the scriptx backend for Oracle Database using go-ora.
//
// Oracle commits DDL implicitly, so a failed script that already ran DDL is
// only partially rolled back. The lock needs EXECUTE on DBMS_LOCK.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	go_ora "github.com/sijms/go-ora/v2"
	"github.com/sijms/go-ora/v2/network"

	"github.com/Doomsta/scriptx"
)

// DriverName is the database/sql driver registered by go-ora
const DriverName = "oracle"

// Executor splits scripts at lines holding only a slash, like SQL*Plus
var Executor = scriptx.BatchExecutor{
	Separator:     regexp.MustCompile(`(?m)^[ \t]*/[ \t]*$`),
	TrimSemicolon: true,
}

// New returns the Oracle backend issuing statements on db
func New(db scriptx.Execer, tables scriptx.Tables) scriptx.Backend {
	tables = tables.WithDefaults()
	ledger := scriptx.NewSQLLedger(db, Queries(tables))
	return scriptx.Backend{
		Ledger:     ledger,
		Lock:       NewLock(db, ledger, lockID("scriptx:"+tables.Ledger)),
		Executor:   Executor,
		Savepoints: Executor,
	}
}

// DSN returns a go-ora connection URL for the service at host
func DSN(host string, port int, service, user, password string) string {
	return go_ora.BuildUrl(host, port, service, user, password, nil)
}

// Queries returns the ledger statements for tables
func Queries(tables scriptx.Tables) scriptx.LedgerQueries {
	ledger, lock := quote(tables.Ledger), quote(tables.Lock)
	return scriptx.LedgerQueries{
		Ensure: []string{
			createIfAbsent(fmt.Sprintf(`CREATE TABLE %s (
	id          NUMBER GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	version     VARCHAR2(255) NOT NULL UNIQUE,
	description VARCHAR2(4000),
	applied_at  TIMESTAMP DEFAULT SYSTIMESTAMP NOT NULL,
	checksum    VARCHAR2(64)
)`, ledger)),
			createIfAbsent(fmt.Sprintf(`CREATE TABLE %s (
	id        NUMBER PRIMARY KEY,
	locked_at TIMESTAMP,
	locked_by VARCHAR2(255)
)`, lock)),
			fmt.Sprintf(`MERGE INTO %s t
USING (SELECT 1 AS id FROM dual) s ON (t.id = s.id)
WHEN NOT MATCHED THEN INSERT (id) VALUES (1)`, lock),
		},
		SelectVersions: fmt.Sprintf(`SELECT version FROM %s`, ledger),
		SelectRecords: fmt.Sprintf(`SELECT version, description, checksum, applied_at
FROM %s
	ORDER BY version ASC`, ledger),
		Insert:      fmt.Sprintf(`INSERT INTO %s (version, description, checksum) VALUES (:1, :2, :3)`, ledger),
		IsDuplicate: isDuplicate,
	}
}

// createIfAbsent wraps a CREATE TABLE so that ORA-00955 (name already used) is ignored
func createIfAbsent(ddl string) string {
	return fmt.Sprintf(`BEGIN
	EXECUTE IMMEDIATE '%s';
EXCEPTION
	WHEN OTHERS THEN
		IF SQLCODE != -955 THEN
			RAISE;
		END IF;
END;`, strings.ReplaceAll(ddl, "'", "''"))
}

// ORA-00001: unique constraint violated
const errUniqueConstraint = 1

func isDuplicate(err error) bool {
	var e *network.OracleError
	if !errors.As(err, &e) {
		return false
	}
	return e.ErrCode == errUniqueConstraint
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// lockID maps name into the range DBMS_LOCK reserves for user locks
func lockID(name string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum32() % 1073741824)
}

type ensurer interface {
	Ensure(ctx context.Context) error
}

// DBMS_LOCK.REQUEST and RELEASE results
const (
	lockSuccess    = 0
	lockTimeout    = 1
	lockAlreadyOwn = 4
)

// Lock is an exclusive DBMS_LOCK user lock held until released or the session ends
type Lock struct {
	db     scriptx.Execer
	tables ensurer
	id     int64
	held   bool
}

func NewLock(db scriptx.Execer, tables ensurer, id int64) *Lock {
	return &Lock{db: db, tables: tables, id: id}
}

func (l *Lock) Acquire(ctx context.Context) error {
	var result int64
	_, err := l.db.ExecContext(ctx,
		`BEGIN :1 := DBMS_LOCK.REQUEST(id => :2, lockmode => DBMS_LOCK.X_MODE, timeout => 0, release_on_commit => FALSE); END;`,
		sql.Out{Dest: &result}, l.id)
	if err != nil {
		return scriptx.LockError{Err: errors.WithStack(err)}
	}
	switch result {
	case lockSuccess, lockAlreadyOwn:
	case lockTimeout:
		return scriptx.LockError{Err: scriptx.ErrLocked}
	default:
		return scriptx.LockError{Err: errors.Errorf("DBMS_LOCK.REQUEST returned %d", result)}
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

	var result int64
	_, err := l.db.ExecContext(ctx,
		`BEGIN :1 := DBMS_LOCK.RELEASE(id => :2); END;`,
		sql.Out{Dest: &result}, l.id)
	if err != nil {
		return errors.WithStack(err)
	}
	if result != lockSuccess {
		return errors.Errorf("DBMS_LOCK.RELEASE returned %d", result)
	}
	return nil
}

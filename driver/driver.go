// Package driver connects to a target database and selects the scriptx
// backend matching its kind.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Doomsta/scriptx"
	"github.com/Doomsta/scriptx/driver/mssql"
	"github.com/Doomsta/scriptx/driver/oracle"
	"github.com/Doomsta/scriptx/driver/postgres"
	"github.com/Doomsta/scriptx/driver/sqlite"
)

// Kind names a supported database product
type Kind string

const (
	Postgres Kind = "postgres"
	SQLite   Kind = "sqlite"
	MSSQL    Kind = "mssql"
	Oracle   Kind = "oracle"
)

// ParseKind accepts a kind name or one of its common aliases
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mssql", "sqlserver":
		return MSSQL, nil
	case "oracle":
		return Oracle, nil
	default:
		return "", errors.Errorf("unsupported database kind %q (allowed: postgres, sqlite, mssql, oracle)", s)
	}
}

// DefaultPort returns the port the product listens on by default, 0 for SQLite
func (k Kind) DefaultPort() int {
	switch k {
	case Postgres:
		return 5432
	case MSSQL:
		return 1433
	case Oracle:
		return 1521
	default:
		return 0
	}
}

// Config describes the target database of a run
type Config struct {
	Kind Kind
	// Driver selects the Postgres client: pgx (default) or pq
	Driver string
	// URL is used as the data source name as is when set
	URL      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// FailurePolicy is stop or continue
	FailurePolicy string
	// MaxFailures bounds the continue policy when positive
	MaxFailures int

	Tables scriptx.Tables
}

// Policy returns the failure policy named by the config
func (c Config) Policy() (scriptx.Policy, error) {
	return scriptx.ParsePolicy(c.FailurePolicy, c.MaxFailures)
}

// DSN returns the data source name for the configured kind
func (c Config) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	port := c.Port
	if port == 0 {
		port = c.Kind.DefaultPort()
	}

	switch c.Kind {
	case Postgres:
		u := &url.URL{
			Scheme: "postgres",
			Host:   c.Host + ":" + strconv.Itoa(port),
			Path:   "/" + c.Database,
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		if c.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
		}
		return u.String(), nil
	case SQLite:
		return sqlite.DSN(c.Database), nil
	case MSSQL:
		return mssql.DSN(c.Host, port, c.Database, c.User, c.Password), nil
	case Oracle:
		return oracle.DSN(c.Host, port, c.Database, c.User, c.Password), nil
	default:
		return "", errors.Errorf("unsupported database kind %q", c.Kind)
	}
}

// ConnectError is used to report that the target database could not be reached
type ConnectError struct {
	Kind Kind
	Err  error
}

func (c ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s database: %v", c.Kind, c.Err)
}

func (c ConnectError) Unwrap() error { return c.Err }

// Target is an open connection to a target database.
// Conn is the session a Migrator runs on; no other work may use it.
type Target struct {
	DB      *sql.DB
	Conn    *sql.Conn
	Backend scriptx.Backend

	closeDB func()
}

// Close releases the session and closes the pool
func (t *Target) Close() error {
	err := t.Conn.Close()
	t.closeDB()
	return errors.WithStack(err)
}

// Open connects to the database described by cfg and takes one connection out
// of the pool as the session of the run.
func Open(ctx context.Context, cfg Config) (*Target, error) {
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	var (
		db      *sql.DB
		closeDB func()
		backend func(scriptx.Execer, scriptx.Tables) scriptx.Backend
	)
	switch cfg.Kind {
	case Postgres:
		name := postgres.DriverName
		if cfg.Driver == "pq" || cfg.Driver == postgres.PQDriverName {
			name = postgres.PQDriverName
		}
		db, closeDB, err = postgres.Open(ctx, name, dsn)
		backend = postgres.New
	case SQLite:
		db, err = sql.Open(sqlite.DriverName, dsn)
		backend = sqlite.New
	case MSSQL:
		db, err = sql.Open(mssql.DriverName, dsn)
		backend = mssql.New
	case Oracle:
		db, err = sql.Open(oracle.DriverName, dsn)
		backend = oracle.New
	}
	if err != nil {
		return nil, ConnectError{Kind: cfg.Kind, Err: err}
	}
	if closeDB == nil {
		closeDB = func() { _ = db.Close() }
	}

	conn, err := db.Conn(ctx)
	if err == nil {
		err = conn.PingContext(ctx)
	}
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		closeDB()
		return nil, ConnectError{Kind: cfg.Kind, Err: errors.WithStack(err)}
	}

	return &Target{
		DB:      db,
		Conn:    conn,
		Backend: backend(conn, cfg.Tables),
		closeDB: closeDB,
	}, nil
}

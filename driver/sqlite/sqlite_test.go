package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Doomsta/scriptx"
)

func openConn(t *testing.T, dsn string) *sql.Conn {
	t.Helper()
	db, err := sql.Open(DriverName, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestLedger_EnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := openConn(t, DSN(":memory:"))
	b := New(conn, scriptx.Tables{})

	for i := 0; i < 3; i++ {
		applied, err := b.Ledger.AppliedVersions(ctx)
		require.NoError(t, err)
		assert.Empty(t, applied)
	}

	var rows int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migration_lock`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestLedger_RecordAndRead(t *testing.T) {
	ctx := context.Background()
	conn := openConn(t, DSN(":memory:"))
	b := New(conn, scriptx.Tables{Ledger: "ledger", Lock: "ledger_lock"})

	_, err := b.Ledger.AppliedVersions(ctx)
	require.NoError(t, err)

	s2 := scriptx.NewScript("0002", "second", "SELECT 2;")
	s1 := scriptx.NewScript("0001", "first", "SELECT 1;")
	require.NoError(t, b.Ledger.Record(ctx, s2))
	require.NoError(t, b.Ledger.Record(ctx, s1))

	applied, err := b.Ledger.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"0001": {}, "0002": {}}, applied)

	records, err := b.Ledger.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0001", records[0].Version)
	assert.Equal(t, "first", records[0].Description)
	assert.Equal(t, s1.Checksum, records[0].Checksum)
	assert.False(t, records[0].AppliedAt.IsZero())
}

func TestLedger_RecordTwiceIsRecordError(t *testing.T) {
	ctx := context.Background()
	conn := openConn(t, DSN(":memory:"))
	b := New(conn, scriptx.Tables{})
	_, err := b.Ledger.AppliedVersions(ctx)
	require.NoError(t, err)

	s := scriptx.NewScript("0001", "first", "SELECT 1;")
	require.NoError(t, b.Ledger.Record(ctx, s))

	err = b.Ledger.Record(ctx, s)
	var recordErr scriptx.RecordError
	require.True(t, errors.As(err, &recordErr))
	assert.Equal(t, "0001", recordErr.Version)
	assert.True(t, recordErr.Duplicate)
}

func TestLock_ExcludesSecondSession(t *testing.T) {
	ctx := context.Background()
	dsn := DSN(filepath.Join(t.TempDir(), "lock.db"))
	first := New(openConn(t, dsn), scriptx.Tables{})
	second := New(openConn(t, dsn), scriptx.Tables{})

	require.NoError(t, first.Lock.Acquire(ctx))

	err := second.Lock.Acquire(ctx)
	var lockErr scriptx.LockError
	require.True(t, errors.As(err, &lockErr))
	assert.ErrorIs(t, err, scriptx.ErrLocked)

	// releasing a lock that was never acquired is a no-op
	require.NoError(t, second.Lock.Release(ctx))

	require.NoError(t, first.Lock.Release(ctx))
	require.NoError(t, second.Lock.Acquire(ctx))
	require.NoError(t, second.Lock.Release(ctx))
}

func TestLock_ReleaseWithoutAcquire(t *testing.T) {
	b := New(openConn(t, DSN(":memory:")), scriptx.Tables{})
	assert.NoError(t, b.Lock.Release(context.Background()))
}

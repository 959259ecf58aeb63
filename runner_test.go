package scriptx_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Doomsta/scriptx"
	"github.com/Doomsta/scriptx/driver/sqlite"
)

type attemptRecorder struct {
	scriptx.NopObserver
	attempts []int
}

func (r *attemptRecorder) AttemptFailed(_ scriptx.Script, attempt int, _ error) {
	r.attempts = append(r.attempts, attempt)
}

func TestRunTransactional_Success(t *testing.T) {
	tg := newTarget(t, sqlite.DSN(":memory:"))
	r := scriptx.NewRunner(tg.conn, tg.executor, nil)

	result := r.RunTransactional(context.Background(), scriptx.NewScript("1", "init", "CREATE TABLE a (id INTEGER);"), 3)

	assert.True(t, result.Success())
	assert.Equal(t, scriptx.Applied, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Positive(t, result.Duration)
	assert.True(t, tg.tableExists(t, "a"))
}

func TestRunTransactional_ExhaustsAttempts(t *testing.T) {
	tg := newTarget(t, sqlite.DSN(":memory:"))
	rec := &attemptRecorder{}
	r := scriptx.NewRunner(tg.conn, tg.executor, rec)
	script := scriptx.NewScript("1", "broken", "CREATE TABLE a (id INTEGER); SELEC 1;")

	result := r.RunTransactional(context.Background(), script, 4)

	assert.False(t, result.Success())
	assert.Equal(t, scriptx.Failed, result.Status)
	assert.Equal(t, 4, result.Attempts)
	assert.Equal(t, []int{1, 2, 3, 4}, rec.attempts)
	var execErr scriptx.ExecutionError
	assert.True(t, errors.As(result.Err, &execErr))
	assert.False(t, tg.tableExists(t, "a"))

	// the script value is untouched
	assert.Equal(t, scriptx.NewScript("1", "broken", "CREATE TABLE a (id INTEGER); SELEC 1;"), script)
}

func TestRunTransactional_RetryStartsFromCleanState(t *testing.T) {
	tg := newTarget(t, sqlite.DSN(":memory:"))
	flaky := &flakyAfterExec{next: tg.backend.Executor, failures: 1}
	r := scriptx.NewRunner(tg.conn, flaky, nil)

	// a retry that saw the first attempt's table would fail with "table a already exists"
	result := r.RunTransactional(context.Background(), scriptx.NewScript("1", "init", "CREATE TABLE a (id INTEGER);"), 2)

	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Attempts)
	assert.True(t, tg.tableExists(t, "a"))
}

func TestRunTransactional_RestoresAutoCommit(t *testing.T) {
	tg := newTarget(t, sqlite.DSN(":memory:"))
	r := scriptx.NewRunner(tg.conn, tg.executor, nil)
	ctx := context.Background()

	r.RunTransactional(ctx, scriptx.NewScript("1", "broken", "NOT SQL"), 1)
	r.RunTransactional(ctx, scriptx.NewScript("2", "ok", "CREATE TABLE b (id INTEGER);"), 1)

	// a new transaction can start, so none is left open
	tx, err := tg.conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.True(t, tg.tableExists(t, "b"))
}

func TestRunTransactional_AtLeastOneAttempt(t *testing.T) {
	tg := newTarget(t, sqlite.DSN(":memory:"))
	r := scriptx.NewRunner(tg.conn, tg.executor, nil)

	result := r.RunTransactional(context.Background(), scriptx.NewScript("1", "x", "SELECT 1;"), 0)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, result.Success())
}

// namedSavepoints counts the savepoints it spells
type namedSavepoints struct {
	created, rolledBack int
}

func (n *namedSavepoints) Savepoint(name string) string {
	n.created++
	return "SAVEPOINT custom_" + name
}

func (n *namedSavepoints) RollbackToSavepoint(name string) string {
	n.rolledBack++
	return "ROLLBACK TO SAVEPOINT custom_" + name
}

func TestRunTransactional_UsesGivenSavepoints(t *testing.T) {
	tg := newTarget(t, sqlite.DSN(":memory:"))
	sp := &namedSavepoints{}
	// the wrapper hides the executor's own savepoint syntax
	flaky := &flakyAfterExec{next: tg.backend.Executor, failures: 1}
	r := scriptx.NewRunner(tg.conn, flaky, nil).WithSavepoints(sp)

	result := r.RunTransactional(context.Background(), scriptx.NewScript("1", "init", "CREATE TABLE a (id INTEGER);"), 2)

	require.NoError(t, result.Err)
	assert.Equal(t, 2, sp.created)
	assert.Equal(t, 1, sp.rolledBack)
	assert.True(t, tg.tableExists(t, "a"))
}

// flakyAfterExec runs the script, then reports failure the first n times
type flakyAfterExec struct {
	next     scriptx.Executor
	failures int
}

func (f *flakyAfterExec) Execute(ctx context.Context, db scriptx.Execer, s scriptx.Script) error {
	if err := f.next.Execute(ctx, db, s); err != nil {
		return err
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset after execute")
	}
	return nil
}

package scriptx

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

const savepointName = "scriptx_attempt"

// Runner executes one script inside a transaction with bounded retry
type Runner struct {
	session    Session
	executor   Executor
	observer   Observer
	savepoints Savepointer
}

// NewRunner returns a Runner executing scripts on session. A nil observer is silent.
func NewRunner(session Session, executor Executor, observer Observer) *Runner {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Runner{session: session, executor: executor, observer: observer}
}

// WithSavepoints sets the savepoint syntax used between attempts. Without it
// the executor's is used when it implements Savepointer.
func (r *Runner) WithSavepoints(sp Savepointer) *Runner {
	r.savepoints = sp
	return r
}

// RunTransactional executes script in a single transaction, trying at most
// maxAttempts times with no delay between attempts. Each attempt runs under a
// savepoint that is rolled back on failure, so a retry starts from the state
// the transaction had before the script. The transaction is always ended
// before returning, leaving the session in auto-commit mode.
//
// It never returns an error: failure is reported in the Result.
func (r *Runner) RunTransactional(ctx context.Context, script Script, maxAttempts int) Result {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := time.Now()
	result := Result{Script: script, Status: Pending}
	fail := func(err error) Result {
		result.Status = Failed
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	tx, err := r.session.BeginTx(ctx, nil)
	if err != nil {
		return fail(errors.WithMessagef(err, "migration %s: begin transaction", script.Version))
	}

	ended := false
	defer func() {
		if !ended {
			_ = tx.Rollback()
		}
	}()

	sp := r.savepoints
	if sp == nil {
		sp = savepointer(r.executor)
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		var retryable bool
		retryable, lastErr = r.attempt(ctx, tx, sp, script)
		if lastErr == nil {
			break
		}
		r.observer.AttemptFailed(script, attempt, lastErr)
		if !retryable {
			break
		}
	}

	if lastErr != nil {
		ended = true
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			lastErr = errors.Wrapf(lastErr, "rollback also failed: %v", rbErr)
		}
		return fail(lastErr)
	}

	ended = true
	if err := tx.Commit(); err != nil {
		return fail(errors.WithMessagef(err, "commit failed for migration %s; rolled back", script.Version))
	}

	result.Status = Applied
	result.Duration = time.Since(start)
	return result
}

// attempt reports whether the transaction can take another attempt
func (r *Runner) attempt(ctx context.Context, tx *sql.Tx, sp Savepointer, script Script) (bool, error) {
	if _, err := tx.ExecContext(ctx, sp.Savepoint(savepointName)); err != nil {
		return false, errors.WithMessagef(err, "migration %s: creating savepoint", script.Version)
	}
	err := r.executor.Execute(ctx, tx, script)
	if err == nil {
		return true, nil
	}
	if _, rbErr := tx.ExecContext(ctx, sp.RollbackToSavepoint(savepointName)); rbErr != nil {
		return false, errors.Wrapf(err, "rollback to savepoint failed: %v", rbErr)
	}
	return true, err
}

func savepointer(e Executor) Savepointer {
	if sp, ok := e.(Savepointer); ok {
		return sp
	}
	return BatchExecutor{}
}

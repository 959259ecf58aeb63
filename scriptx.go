package scriptx

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// DefaultMaxAttempts is the number of tries per script unless WithMaxAttempts is given
const DefaultMaxAttempts = 3

// Migrator applies the pending scripts of a catalog to one target
type Migrator struct {
	session     Session
	backend     Backend
	catalog     Catalog
	policy      Policy
	observer    Observer
	maxAttempts int
	mutex       sync.Mutex
}

// New returns a new Migrator running on session. The session must not be
// shared with another Migrator while a run is in progress. Run events go to
// slog.Default unless WithObserver or WithLogger is given.
func New(session Session, backend Backend, options ...Option) (*Migrator, error) {
	if session == nil {
		return nil, errors.New("nil session")
	}
	if backend.Ledger == nil || backend.Lock == nil || backend.Executor == nil {
		return nil, errors.New("backend requires a ledger, a lock and an executor")
	}
	m := &Migrator{
		session:     session,
		backend:     backend,
		catalog:     Scripts(),
		policy:      StopOnFailure{},
		observer:    LogObserver(slog.Default()),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, o := range options {
		err := o.apply(m)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Migrate applies the pending scripts. See Run.
func (m *Migrator) Migrate(ctx context.Context) error {
	_, err := m.Run(ctx)
	return err
}

// Run holds the lock while it loads the catalog, snapshots the ledger once and
// applies every pending script in version order. A script is recorded in the
// ledger only after its transaction committed. After each script the policy
// decides whether the run goes on.
//
// The error is a LockError, a catalog error, a RecordError, or a RunError
// when at least one script failed. The lock is released before Run returns.
func (m *Migrator) Run(ctx context.Context) (summary Summary, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	summary.State = Idle
	defer func() {
		m.observer.RunFinished(summary, err)
	}()

	if err := m.backend.Lock.Acquire(ctx); err != nil {
		summary.State = Aborted
		m.release(ctx)
		var lockErr LockError
		if !errors.As(err, &lockErr) {
			err = LockError{Err: err}
		}
		return summary, err
	}
	summary.State = LockAcquired
	m.observer.LockAcquired()
	defer m.release(ctx)

	summary.State = Loading
	scripts, err := m.catalog.Load()
	if err != nil {
		summary.State = Aborted
		return summary, err
	}
	applied, err := m.backend.Ledger.AppliedVersions(ctx)
	if err != nil {
		summary.State = Aborted
		return summary, err
	}

	summary.State = Comparing
	pending := planScripts(scripts, applied)
	summary.Total = len(scripts)
	summary.Pending = len(pending)
	m.observer.Planned(summary.Total, summary.Pending)

	summary.State = Executing
	if r, ok := m.policy.(resetter); ok {
		r.reset()
	}
	runner := NewRunner(m.session, m.backend.Executor, m.observer).WithSavepoints(m.backend.savepoints())
	for _, script := range pending {
		m.observer.ScriptStarted(script)
		result := runner.RunTransactional(ctx, script, m.maxAttempts)
		m.observer.ScriptFinished(result)

		if result.Success() {
			if err := m.backend.Ledger.Record(ctx, script); err != nil {
				summary.State = Aborted
				return summary, err
			}
			summary.Applied = append(summary.Applied, result)
		} else {
			summary.Failed = append(summary.Failed, result)
		}

		if !m.policy.ShouldContinue(result) {
			summary.State = Aborted
			return summary, RunError{Failed: summary.Failed, Aborted: true}
		}
	}

	summary.State = Done
	if len(summary.Failed) > 0 {
		return summary, RunError{Failed: summary.Failed}
	}
	return summary, nil
}

func (m *Migrator) release(ctx context.Context) {
	m.observer.LockReleased(m.backend.Lock.Release(context.WithoutCancel(ctx)))
}

// Pending returns the scripts a run would apply now, in order. It takes no lock.
func (m *Migrator) Pending(ctx context.Context) ([]Script, error) {
	scripts, err := m.catalog.Load()
	if err != nil {
		return nil, err
	}
	applied, err := m.backend.Ledger.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	return planScripts(scripts, applied), nil
}

// Status returns every catalog script with its ledger state
func (m *Migrator) Status(ctx context.Context) ([]ScriptInfo, error) {
	scripts, err := m.catalog.Load()
	if err != nil {
		return nil, err
	}
	records, err := m.backend.Ledger.Records(ctx)
	if err != nil {
		return nil, err
	}

	applied := make(map[string]struct{}, len(records))
	byVersion := make(map[string]Record, len(records))
	for _, r := range records {
		applied[r.Version] = struct{}{}
		byVersion[r.Version] = r
	}

	info := make([]ScriptInfo, 0, len(scripts))
	for _, script := range scripts {
		si := ScriptInfo{Status: statusOf(applied, script), Script: script}
		if r, ok := byVersion[script.Version]; ok {
			si.Record = &r
		}
		info = append(info, si)
	}
	return info, nil
}

// Records returns all ledger records in descending version order
func (m *Migrator) Records(ctx context.Context) ([]Record, error) {
	records, err := m.backend.Ledger.Records(ctx)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(byRecordVersion(records)))
	return records, nil
}

// planScripts keeps the ordered scripts whose version is not applied
func planScripts(scripts []Script, applied map[string]struct{}) []Script {
	var pending []Script
	for _, script := range scripts {
		if _, ok := applied[script.Version]; !ok {
			pending = append(pending, script)
		}
	}
	return pending
}

package scriptx

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrLocked is reported when another process holds the run lock
var ErrLocked = errors.New("migration lock is held by another process")

// DiscoveryError is used to report an unreadable script directory or file
type DiscoveryError struct {
	Path string
	Err  error
}

func (d DiscoveryError) Error() string {
	return fmt.Sprintf("discovering scripts in %s: %v", d.Path, d.Err)
}

func (d DiscoveryError) Unwrap() error { return d.Err }

// MalformedNameError is used to report a script file not named <version>__<description>.sql
type MalformedNameError struct {
	Name string
}

func (m MalformedNameError) Error() string {
	return fmt.Sprintf("invalid migration filename %q (expected <version>%s<description>%s)", m.Name, nameDelimiter, scriptExt)
}

// DuplicateVersionError is used to report when the catalog has two scripts with one version
type DuplicateVersionError struct {
	Version string
}

func (d DuplicateVersionError) Error() string {
	return fmt.Sprintf("multiple scripts have the version %s", d.Version)
}

// LockError is used to report that the run lock could not be acquired
type LockError struct {
	Err error
}

func (l LockError) Error() string {
	return fmt.Sprintf("acquiring migration lock: %v", l.Err)
}

func (l LockError) Unwrap() error { return l.Err }

// ExecutionError is used to report a statement the target rejected
type ExecutionError struct {
	Version     string
	Description string
	// Unit is the zero based index of the rejected batch within the script
	Unit int
	Err  error
}

func (e ExecutionError) Error() string {
	return fmt.Sprintf("migration failed while executing version %s (%s), batch %d: %v",
		e.Version, e.Description, e.Unit+1, e.Err)
}

func (e ExecutionError) Unwrap() error { return e.Err }

// RecordError is used to report a ledger write that failed after the script was committed.
// The script has run but is not recorded, so the next run attempts it again.
type RecordError struct {
	Version string
	// Duplicate is set when the ledger already holds the version
	Duplicate bool
	Err       error
}

func (r RecordError) Error() string {
	if r.Duplicate {
		return fmt.Sprintf("recording version %s: version already recorded: %v", r.Version, r.Err)
	}
	return fmt.Sprintf("recording version %s: %v", r.Version, r.Err)
}

func (r RecordError) Unwrap() error { return r.Err }

// RunError is the terminal error of a run with at least one failed script
type RunError struct {
	Failed []Result
	// Aborted is set when the policy stopped the run before all pending scripts were attempted
	Aborted bool
}

func (r RunError) Error() string {
	if len(r.Failed) == 0 {
		return "migration run failed"
	}
	if r.Aborted {
		last := r.Failed[len(r.Failed)-1]
		return fmt.Sprintf("migration aborted at version %s after %d attempt(s): %v",
			last.Script.Version, last.Attempts, last.Err)
	}
	var versions []string
	for _, f := range r.Failed {
		versions = append(versions, f.Script.Version)
	}
	return fmt.Sprintf("%d migration(s) failed: %s", len(r.Failed), strings.Join(versions, ", "))
}

func (r RunError) Unwrap() []error {
	var errs []error
	for _, f := range r.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// RemovedScriptsError is used to report ledger versions missing from the catalog
type RemovedScriptsError struct {
	Versions []string
}

func (r RemovedScriptsError) Error() string {
	return fmt.Sprintf("applied migrations %s were removed from the catalog", strings.Join(r.Versions, ", "))
}

// ChecksumMismatchError is used to report when an applied script was modified
type ChecksumMismatchError struct {
	Version  string
	Recorded string
	Current  string
}

func (c ChecksumMismatchError) Error() string {
	return fmt.Sprintf("invalid checksum for migration %s: recorded %s, current %s", c.Version, c.Recorded, c.Current)
}

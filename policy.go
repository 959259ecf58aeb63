package scriptx

import (
	"strings"

	"github.com/pkg/errors"
)

// Policy decides whether a run continues after a script result
type Policy interface {
	ShouldContinue(result Result) bool
}

// PolicyFunc adapts a function to a Policy
type PolicyFunc func(result Result) bool

func (f PolicyFunc) ShouldContinue(result Result) bool { return f(result) }

// StopOnFailure ends the run at the first failed script
type StopOnFailure struct{}

func (StopOnFailure) ShouldContinue(result Result) bool { return result.Success() }

// ContinueOnFailure attempts every pending script regardless of failures
type ContinueOnFailure struct{}

func (ContinueOnFailure) ShouldContinue(Result) bool { return true }

// MaxFailures continues until the n-th failed script of a run. n below 1 is taken as 1.
func MaxFailures(n int) Policy {
	if n < 1 {
		n = 1
	}
	return &maxFailures{limit: n}
}

type maxFailures struct {
	limit    int
	failures int
}

func (p *maxFailures) ShouldContinue(result Result) bool {
	if !result.Success() {
		p.failures++
	}
	return p.failures < p.limit
}

func (p *maxFailures) reset() { p.failures = 0 }

// resetter is implemented by policies counting within a run
type resetter interface {
	reset()
}

// ParsePolicy returns the policy named stop or continue. With continue, a
// positive maxFailures limits the number of tolerated failures.
func ParsePolicy(name string, maxFailures int) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "stop":
		return StopOnFailure{}, nil
	case "continue":
		if maxFailures > 0 {
			return MaxFailures(maxFailures), nil
		}
		return ContinueOnFailure{}, nil
	default:
		return nil, errors.Errorf("unknown failure policy %q (allowed: stop, continue)", name)
	}
}

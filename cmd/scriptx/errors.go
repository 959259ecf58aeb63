package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/Doomsta/scriptx"
	"github.com/Doomsta/scriptx/driver"
)

// Exit codes
const (
	ExitSuccess   = 0
	ExitGeneral   = 1
	ExitConfig    = 2
	ExitDiscovery = 3
	ExitDBConnect = 4
	ExitLocked    = 5
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func configError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// classify maps library errors to exit codes
func classify(msg string, err error) *ExitError {
	var (
		exitErr      *ExitError
		connectErr   driver.ConnectError
		lockErr      scriptx.LockError
		discoveryErr scriptx.DiscoveryError
		malformedErr scriptx.MalformedNameError
		duplicateErr scriptx.DuplicateVersionError
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr
	case errors.As(err, &connectErr):
		return &ExitError{Code: ExitDBConnect, Message: msg, Err: err}
	case errors.As(err, &lockErr):
		return &ExitError{Code: ExitLocked, Message: msg, Err: err}
	case errors.As(err, &discoveryErr), errors.As(err, &malformedErr), errors.As(err, &duplicateErr):
		return &ExitError{Code: ExitDiscovery, Message: msg, Err: err}
	default:
		return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
	}
}

// exitWithError prints the error and exits with the appropriate code.
func exitWithError(err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(ExitGeneral)
}

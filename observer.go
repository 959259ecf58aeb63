package scriptx

import (
	"log/slog"
)

// Summary describes a finished run
type Summary struct {
	State   State
	Total   int
	Pending int
	Applied []Result
	Failed  []Result
}

// Observer is notified at the run state transitions of a Migrator.
// Methods are called from the goroutine running the migration.
type Observer interface {
	LockAcquired()
	Planned(total, pending int)
	ScriptStarted(script Script)
	AttemptFailed(script Script, attempt int, err error)
	ScriptFinished(result Result)
	LockReleased(err error)
	RunFinished(summary Summary, err error)
}

// NopObserver ignores every event. Embed it to implement only some methods.
type NopObserver struct{}

func (NopObserver) LockAcquired()                    {}
func (NopObserver) Planned(int, int)                 {}
func (NopObserver) ScriptStarted(Script)             {}
func (NopObserver) AttemptFailed(Script, int, error) {}
func (NopObserver) ScriptFinished(Result)            {}
func (NopObserver) LockReleased(error)               {}
func (NopObserver) RunFinished(Summary, error)       {}

type logObserver struct {
	logger *slog.Logger
}

// LogObserver writes run events to logger
func LogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return logObserver{logger: logger}
}

func (o logObserver) LockAcquired() {
	o.logger.Debug("migration lock acquired")
}

func (o logObserver) Planned(total, pending int) {
	o.logger.Info("migration plan",
		"scripts", total,
		"applied", total-pending,
		"pending", pending)
}

func (o logObserver) ScriptStarted(script Script) {
	o.logger.Info("applying migration",
		"version", script.Version,
		"description", script.Description)
}

func (o logObserver) AttemptFailed(script Script, attempt int, err error) {
	o.logger.Warn("migration attempt failed",
		"version", script.Version,
		"attempt", attempt,
		"error", errorText(err))
}

func (o logObserver) ScriptFinished(result Result) {
	if result.Success() {
		o.logger.Info("migration applied",
			"version", result.Script.Version,
			"attempts", result.Attempts,
			"duration", result.Duration)
		return
	}
	o.logger.Error("migration failed",
		"version", result.Script.Version,
		"attempts", result.Attempts,
		"error", errorText(result.Err))
}

func (o logObserver) LockReleased(err error) {
	if err != nil {
		o.logger.Error("releasing migration lock", "error", err.Error())
		return
	}
	o.logger.Debug("migration lock released")
}

func (o logObserver) RunFinished(summary Summary, err error) {
	if err != nil {
		o.logger.Error("migration run failed",
			"state", summary.State.String(),
			"applied", len(summary.Applied),
			"failed", len(summary.Failed),
			"error", err.Error())
		return
	}
	o.logger.Info("migration run finished",
		"state", summary.State.String(),
		"applied", len(summary.Applied))
}

// errorText keeps stack traces of wrapped errors out of the log line
func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

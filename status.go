package scriptx

// Status is a script status value
type Status uint8

const (
	// Pending means that the script is in the catalog but not in the ledger
	Pending Status = iota
	// Applied means that the script transaction was committed
	Applied
	// Failed means that the script could not be applied after all attempts
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Applied:
		return "APPLIED"
	case Failed:
		return "FAILED"
	default:
		return "INVALID"
	}
}

// State is the orchestrator run state
type State uint8

const (
	Idle State = iota
	LockAcquired
	Loading
	Comparing
	Executing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case LockAcquired:
		return "LOCK_ACQUIRED"
	case Loading:
		return "LOADING"
	case Comparing:
		return "COMPARING"
	case Executing:
		return "EXECUTING"
	case Done:
		return "DONE"
	case Aborted:
		return "ABORTED"
	default:
		return "INVALID"
	}
}

func statusOf(applied map[string]struct{}, script Script) Status {
	if _, ok := applied[script.Version]; ok {
		return Applied
	}
	return Pending
}

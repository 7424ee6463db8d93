package loader

// State is a step of the per-track load state machine.
type State int

const (
	StateIdle State = iota
	StateResolvingPolicy
	StateFetchingManifest
	StatePrimingBuffer
	StateBackgroundFetching
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateResolvingPolicy:
		return "RESOLVING_POLICY"
	case StateFetchingManifest:
		return "FETCHING_MANIFEST"
	case StatePrimingBuffer:
		return "PRIMING_BUFFER"
	case StateBackgroundFetching:
		return "BACKGROUND_FETCHING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Status is the outcome of a load attempt.
type Status int

const (
	StatusOk Status = iota
	StatusError
	StatusSkip
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusSkip:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

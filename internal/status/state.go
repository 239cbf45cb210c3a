package status

// State mirrors the SCM's legal service status values.
type State int32

const (
	StartPending State = iota
	Running
	StopPending
	Stopped
	PausePending
	Paused
	ContinuePending
)

func (s State) String() string {
	switch s {
	case StartPending:
		return "start_pending"
	case Running:
		return "running"
	case StopPending:
		return "stop_pending"
	case Stopped:
		return "stopped"
	case PausePending:
		return "pause_pending"
	case Paused:
		return "paused"
	case ContinuePending:
		return "continue_pending"
	default:
		return "unknown"
	}
}

// Pending reports whether the SCM expects checkpoints while in this state.
func (s State) Pending() bool {
	switch s {
	case StartPending, StopPending, PausePending, ContinuePending:
		return true
	default:
		return false
	}
}

// transitions lists every legal edge of the service state machine.
var transitions = map[State][]State{
	StartPending:    {Running, StopPending},
	Running:         {StopPending, StartPending, PausePending},
	StopPending:     {Stopped},
	Stopped:         {StartPending},
	PausePending:    {Paused, StopPending, StartPending},
	Paused:          {ContinuePending, StopPending, StartPending},
	ContinuePending: {Running, StopPending, StartPending},
}

// CanTransition reports whether from -> to is a legal edge. Re-reporting the
// same state is always allowed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

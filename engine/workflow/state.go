package workflow

// State is a position in the query state machine.
type State int

const (
	StateRouting State = iota
	StateReformulating
	StateRetrieving
	StateChecking
	StateGenerating
	StateDone
	StateRejected
	StateInsufficient
	StateFailed
)

var stateNames = [...]string{
	StateRouting:       "routing",
	StateReformulating: "reformulating",
	StateRetrieving:    "retrieving",
	StateChecking:      "checking",
	StateGenerating:    "generating",
	StateDone:          "done",
	StateRejected:      "rejected",
	StateInsufficient:  "insufficient",
	StateFailed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateRejected || s == StateInsufficient || s == StateFailed
}

// transitions lists the legal successors of each non-terminal state.
// Every non-terminal state may also move to StateFailed.
var transitions = map[State][]State{
	StateRouting:       {StateReformulating, StateRejected},
	StateReformulating: {StateRetrieving},
	StateRetrieving:    {StateChecking},
	StateChecking:      {StateGenerating, StateInsufficient},
	StateGenerating:    {StateDone},
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Package session runs one list-mode acquisition: it drives the
// instrument through HV ramp, start, polling and drain, and feeds every
// buffer through the rollover decoder into the chunked archive.
package session

import "fmt"

// State is a poll-loop state.
type State int

// Session states.
const (
	StateIdle State = iota
	StateRamping
	StateAcquiring
	StateDraining
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRamping:
		return "ramping"
	case StateAcquiring:
		return "acquiring"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// transitions lists the legal successors of each state. Every
// non-terminal state may fail.
var transitions = map[State][]State{
	StateIdle:      {StateRamping, StateAcquiring, StateFailed},
	StateRamping:   {StateAcquiring, StateFailed},
	StateAcquiring: {StateDraining, StateFailed},
	StateDraining:  {StateComplete, StateFailed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

package runtime

import "fmt"

// State is an actor's lifecycle state.
type State uint8

const (
	// StatePending means the template is resolved but nothing is loaded.
	StatePending State = iota

	// StateStarting means the model is loading and any saved snapshot is
	// being restored.
	StateStarting

	// StateRunning means the actor's loop is ticking.
	StateRunning

	// StatePaused means the loop is alive but skips cognition. Perceptions
	// keep accruing under the usual queue bound.
	StatePaused

	// StateStopping means a stop was accepted and the loop is finishing up.
	StateStopping

	// StateStopped is terminal: the loop has exited cleanly.
	StateStopped

	// StateError is terminal: the actor hit an unrecoverable fault. The
	// fault reason is kept for status queries.
	StateError
)

// String returns a human-readable name for State.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}

// transitions is the complete legality table. Anything not listed is an
// invariant violation, not a recoverable condition.
var transitions = map[State][]State{
	StatePending:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateError},
	StateRunning:  {StatePaused, StateStopping, StateError},
	StatePaused:   {StateRunning, StateStopping, StateError},
	StateStopping: {StateStopped},
	StateStopped:  {},
	StateError:    {},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

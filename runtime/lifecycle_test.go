package runtime

import "testing"

func TestLifecycleTransitions(t *testing.T) {
	legal := []struct {
		from, to State
	}{
		{StatePending, StateStarting},
		{StateStarting, StateRunning},
		{StateStarting, StateStopping},
		{StateStarting, StateError},
		{StateRunning, StatePaused},
		{StateRunning, StateStopping},
		{StateRunning, StateError},
		{StatePaused, StateRunning},
		{StatePaused, StateStopping},
		{StatePaused, StateError},
		{StateStopping, StateStopped},
	}
	for _, tc := range legal {
		if !canTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct {
		from, to State
	}{
		{StatePending, StateRunning},
		{StatePending, StateStopped},
		{StateRunning, StateStarting},
		{StateRunning, StateStopped},
		{StatePaused, StatePending},
		{StateStopping, StateRunning},
		{StateStopped, StateStarting},
		{StateStopped, StateRunning},
		{StateError, StateRunning},
		{StateError, StateStopping},
	}
	for _, tc := range illegal {
		if canTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StatePending, StateStarting, StateRunning, StatePaused, StateStopping} {
		if s.Terminal() {
			t.Errorf("Expected %s to be non-terminal", s)
		}
	}
	for _, s := range []State{StateStopped, StateError} {
		if !s.Terminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
		if len(transitions[s]) != 0 {
			t.Errorf("Expected no transitions out of %s, got %v", s, transitions[s])
		}
	}
}

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		StatePending:  "pending",
		StateStarting: "starting",
		StateRunning:  "running",
		StatePaused:   "paused",
		StateStopping: "stopping",
		StateStopped:  "stopped",
		StateError:    "error",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}

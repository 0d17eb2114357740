// Package continuation tracks pause points across async boundaries.
//
// A behavior that reaches a continuation point registers a pending
// continuation here and goes back to its loop; the engine resolves the
// pending exactly once, either with an extension model attached before
// the deadline or with a timeout that routes the behavior down its
// default path. Pendings are plain data — no suspended goroutine or
// call stack is ever the source of truth, which is what makes paused
// actors safe to snapshot and recover.
package continuation

import (
	"fmt"
	"time"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
)

// State is the lifecycle position of one pending continuation.
type State int

const (
	// StateOpen means the clock is running and an extension may still
	// attach.
	StateOpen State = iota
	// StateExtended means an extension attached before the deadline.
	StateExtended
	// StateTimedOut means the deadline passed with no extension.
	StateTimedOut
	// StateResolved means the owner consumed the resolution and
	// resumed; the record lingers only to answer late attaches.
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateExtended:
		return "extended"
	case StateTimedOut:
		return "timed_out"
	case StateResolved:
		return "resolved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AttachResult reports what an Attach call did. Attach never fails
// with an error; a rejected extension is an expected outcome the
// caller is told about.
type AttachResult int

const (
	// Attached means the extension was accepted and will drive the
	// resumed behavior.
	Attached AttachResult = iota
	// AlreadyResolved means the pending had already left the Open
	// state; the extension was discarded.
	AlreadyResolved
	// NotFound means no pending with that id exists.
	NotFound
)

func (r AttachResult) String() string {
	switch r {
	case Attached:
		return "attached"
	case AlreadyResolved:
		return "already_resolved"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("AttachResult(%d)", int(r))
	}
}

// Record is the serializable view of one pending continuation.
type Record struct {
	ID        string
	Point     string
	PointHash uint32
	Opened    time.Time
	Deadline  time.Time
	Default   string
	State     State
}

// Resolution is delivered to the owner exactly once per pending.
// State is StateExtended or StateTimedOut; Extension is nil on
// timeout. Default carries the default target recorded at Open so the
// owner does not need to look anything up to resume.
type Resolution struct {
	ID        string
	State     State
	Extension *bytecode.Model
	Default   string
}

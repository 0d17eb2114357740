// Package planner builds action plans by A* search over world states.
//
// Actions declare boolean preconditions and effects plus a positive
// cost; a goal is a set of literals the resulting world must satisfy.
// Search budgets are tiered by urgency from a fixed table, so planning
// cost stays bounded and predictable under load: exhausting a tier's
// depth, node, or wall-clock budget yields ErrNoPlan, never a partial
// plan. Results are deterministic for a given registry: ties in the
// open set break on lower accumulated cost, then on action
// registration order, then first-in-first-out.
package planner

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoPlan reports that no plan satisfying the goal was found within
// the urgency tier's budget. It is an expected outcome, not a fault;
// the caller picks the fallback (keep the old plan, idle, or escalate
// urgency and retry once).
var ErrNoPlan = errors.New("planner: no plan found within budget")

// Urgency selects a search-budget tier.
type Urgency int

const (
	UrgencyIdle Urgency = iota
	UrgencyNormal
	UrgencyHigh
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyIdle:
		return "idle"
	case UrgencyNormal:
		return "normal"
	case UrgencyHigh:
		return "high"
	case UrgencyCritical:
		return "critical"
	default:
		return fmt.Sprintf("Urgency(%d)", int(u))
	}
}

// ParseUrgency maps a tier name to its Urgency, defaulting to
// UrgencyNormal for anything unrecognized.
func ParseUrgency(s string) Urgency {
	switch s {
	case "idle":
		return UrgencyIdle
	case "high":
		return UrgencyHigh
	case "critical":
		return UrgencyCritical
	default:
		return UrgencyNormal
	}
}

// Budget bounds one search: plan length, expanded nodes, wall clock.
type Budget struct {
	MaxDepth int
	MaxNodes int
	Timeout  time.Duration
}

// DefaultBudgets is the built-in tier table. Manifests may override
// individual rows; the shape (a closed table, not a continuous
// function) is fixed.
func DefaultBudgets() map[Urgency]Budget {
	return map[Urgency]Budget{
		UrgencyIdle:     {MaxDepth: 6, MaxNodes: 256, Timeout: 50 * time.Millisecond},
		UrgencyNormal:   {MaxDepth: 8, MaxNodes: 1024, Timeout: 100 * time.Millisecond},
		UrgencyHigh:     {MaxDepth: 12, MaxNodes: 4096, Timeout: 250 * time.Millisecond},
		UrgencyCritical: {MaxDepth: 16, MaxNodes: 16384, Timeout: time.Second},
	}
}

// Step is one planned action.
type Step struct {
	Action string
	Cost   float64
}

// PlanState is the plan an actor is working through: the goal it was
// built for, the ordered steps, and a cursor. Owned by one actor loop
// and replaced wholesale on replan, never merged.
type PlanState struct {
	Goal   WorldState
	Steps  []Step
	Cursor int
}

// Current returns the step under the cursor.
func (p *PlanState) Current() (Step, bool) {
	if p == nil || p.Cursor >= len(p.Steps) {
		return Step{}, false
	}
	return p.Steps[p.Cursor], true
}

// Advance moves the cursor past the current step and reports whether
// a step remains.
func (p *PlanState) Advance() bool {
	if p == nil || p.Cursor >= len(p.Steps) {
		return false
	}
	p.Cursor++
	return p.Cursor < len(p.Steps)
}

// Done reports whether every step has been consumed.
func (p *PlanState) Done() bool {
	return p == nil || p.Cursor >= len(p.Steps)
}

// TotalCost sums the step costs.
func (p *PlanState) TotalCost() float64 {
	if p == nil {
		return 0
	}
	var sum float64
	for _, s := range p.Steps {
		sum += s.Cost
	}
	return sum
}

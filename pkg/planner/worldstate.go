package planner

import (
	"sort"
	"strings"
)

// WorldState is a set of boolean facts. A fact absent from the map
// reads as false, so negative literals need no special casing.
type WorldState map[string]bool

// Clone returns an independent copy.
func (w WorldState) Clone() WorldState {
	c := make(WorldState, len(w))
	for k, v := range w {
		c[k] = v
	}
	return c
}

// Satisfies reports whether every literal in conds holds in w.
func (w WorldState) Satisfies(conds WorldState) bool {
	for k, v := range conds {
		if w[k] != v {
			return false
		}
	}
	return true
}

// Apply returns a copy of w with effects overlaid.
func (w WorldState) Apply(effects WorldState) WorldState {
	next := w.Clone()
	for k, v := range effects {
		next[k] = v
	}
	return next
}

// unsatisfied counts the goal literals w does not yet satisfy.
func (w WorldState) unsatisfied(goal WorldState) int {
	n := 0
	for k, v := range goal {
		if w[k] != v {
			n++
		}
	}
	return n
}

// key builds a canonical string form for visited-set lookups.
func (w WorldState) key() string {
	facts := make([]string, 0, len(w))
	for k, v := range w {
		if v {
			facts = append(facts, k+"+")
		} else {
			facts = append(facts, k+"-")
		}
	}
	sort.Strings(facts)
	return strings.Join(facts, ";")
}

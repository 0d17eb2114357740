package planner

import (
	"fmt"
	"sync"
)

// Action is one planning operator: applicable when its preconditions
// hold, producing its effects at a positive cost.
type Action struct {
	Name          string
	Cost          float64
	Preconditions WorldState
	Effects       WorldState
}

// Registry holds actions in registration order. That order is a
// search tie-breaker, so it must be stable for the registry's
// lifetime; actions cannot be replaced or removed.
type Registry struct {
	mu      sync.RWMutex
	actions []Action
	byName  map[string]int

	minCost    float64
	maxEffects int
}

// NewRegistry returns an empty action registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register appends an action. Names are unique, costs strictly
// positive, effects non-empty (an action that changes nothing can
// never progress a search).
func (r *Registry) Register(a Action) error {
	if a.Name == "" {
		return fmt.Errorf("planner: action has no name")
	}
	if a.Cost <= 0 {
		return fmt.Errorf("planner: action %q has non-positive cost %v", a.Name, a.Cost)
	}
	if len(a.Effects) == 0 {
		return fmt.Errorf("planner: action %q has no effects", a.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[a.Name]; dup {
		return fmt.Errorf("planner: action %q already registered", a.Name)
	}

	a.Preconditions = a.Preconditions.Clone()
	a.Effects = a.Effects.Clone()
	r.byName[a.Name] = len(r.actions)
	r.actions = append(r.actions, a)

	if r.minCost == 0 || a.Cost < r.minCost {
		r.minCost = a.Cost
	}
	if len(a.Effects) > r.maxEffects {
		r.maxEffects = len(a.Effects)
	}
	return nil
}

// Actions returns the registered actions in registration order. The
// slice is shared; callers must not mutate it.
func (r *Registry) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	if !ok {
		return Action{}, false
	}
	return r.actions[idx], true
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// heuristicScale returns the admissible per-literal cost bound:
// fixing k literals takes at least k/maxEffects actions of at least
// minCost each.
func (r *Registry) heuristicScale() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.maxEffects == 0 {
		return 0
	}
	return r.minCost / float64(r.maxEffects)
}

package planner

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("bannou.planner")

// Planner runs A* searches against one action registry.
type Planner struct {
	registry *Registry
	budgets  map[Urgency]Budget
}

// Option configures a Planner.
type Option func(*Planner)

// WithBudget overrides one urgency tier's budget row.
func WithBudget(u Urgency, b Budget) Option {
	return func(p *Planner) { p.budgets[u] = b }
}

// New creates a planner over registry with the default budget table.
func New(registry *Registry, opts ...Option) *Planner {
	p := &Planner{
		registry: registry,
		budgets:  DefaultBudgets(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget returns the budget row for u, falling back to the Normal row
// for an unknown tier.
func (p *Planner) Budget(u Urgency) Budget {
	if b, ok := p.budgets[u]; ok {
		return b
	}
	return p.budgets[UrgencyNormal]
}

// node is one open-set entry.
type node struct {
	state  WorldState
	parent *node
	actIdx int // registry index of the action that produced this node
	g      float64
	f      float64
	depth  int
	seq    uint64
	index  int
}

// openSet orders nodes for A*: lowest f first, ties on lower g, then
// action registration order, then arrival order. The order is total
// (seq is unique), which is what makes searches replayable.
type openSet []*node

func (s openSet) Len() int { return len(s) }

func (s openSet) Less(i, j int) bool {
	a, b := s[i], s[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.g != b.g {
		return a.g < b.g
	}
	if a.actIdx != b.actIdx {
		return a.actIdx < b.actIdx
	}
	return a.seq < b.seq
}

func (s openSet) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
	s[i].index = i
	s[j].index = j
}

func (s *openSet) Push(x interface{}) {
	n := x.(*node)
	n.index = len(*s)
	*s = append(*s, n)
}

func (s *openSet) Pop() interface{} {
	old := *s
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*s = old[:n-1]
	return it
}

// Plan searches for an action sequence turning world into a state
// satisfying goal, within the urgency tier's budget. Exhausting the
// budget yields ErrNoPlan; a canceled context is reported as its own
// error since it says nothing about reachability.
func (p *Planner) Plan(ctx context.Context, world, goal WorldState, urgency Urgency) (*PlanState, error) {
	budget := p.Budget(urgency)
	actions := p.registry.Actions()
	scale := p.registry.heuristicScale()

	start := world.Clone()
	if start.Satisfies(goal) {
		return &PlanState{Goal: goal.Clone()}, nil
	}

	deadline := time.Now().Add(budget.Timeout)

	root := &node{
		state:  start,
		actIdx: -1,
		f:      float64(start.unsatisfied(goal)) * scale,
	}
	open := &openSet{}
	heap.Init(open)
	heap.Push(open, root)

	visited := map[string]float64{start.key(): 0}
	var seq uint64
	expanded := 0

	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("planner: search canceled: %w", err)
		}
		if time.Now().After(deadline) {
			log.Debugf("plan timeout after %d nodes (tier %s)", expanded, urgency)
			return nil, ErrNoPlan
		}

		n := heap.Pop(open).(*node)

		if n.state.Satisfies(goal) {
			return reconstruct(n, actions, goal), nil
		}

		if n.depth >= budget.MaxDepth {
			continue
		}
		expanded++
		if expanded > budget.MaxNodes {
			log.Debugf("plan node budget %d exhausted (tier %s)", budget.MaxNodes, urgency)
			return nil, ErrNoPlan
		}

		for i, a := range actions {
			if !n.state.Satisfies(a.Preconditions) {
				continue
			}
			nextState := n.state.Apply(a.Effects)
			g := n.g + a.Cost

			k := nextState.key()
			if best, ok := visited[k]; ok && best <= g {
				continue
			}
			visited[k] = g

			seq++
			heap.Push(open, &node{
				state:  nextState,
				parent: n,
				actIdx: i,
				g:      g,
				f:      g + float64(nextState.unsatisfied(goal))*scale,
				depth:  n.depth + 1,
				seq:    seq,
			})
		}
	}

	return nil, ErrNoPlan
}

// reconstruct walks parent links back to the root and emits the steps
// in execution order.
func reconstruct(n *node, actions []Action, goal WorldState) *PlanState {
	var steps []Step
	for cur := n; cur.parent != nil; cur = cur.parent {
		a := actions[cur.actIdx]
		steps = append(steps, Step{Action: a.Name, Cost: a.Cost})
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return &PlanState{Goal: goal.Clone(), Steps: steps}
}

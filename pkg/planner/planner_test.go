package planner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func combatRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	actions := []Action{
		{Name: "find_weapon", Cost: 2, Effects: WorldState{"has_weapon": true}},
		{Name: "draw_weapon", Cost: 1, Preconditions: WorldState{"has_weapon": true}, Effects: WorldState{"weapon_drawn": true}},
		{Name: "approach", Cost: 2, Effects: WorldState{"in_range": true}},
		{Name: "attack", Cost: 3, Preconditions: WorldState{"weapon_drawn": true, "in_range": true}, Effects: WorldState{"threat_eliminated": true}},
		{Name: "flee", Cost: 5, Effects: WorldState{"safe": true}},
	}
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			t.Fatalf("Register %s failed: %v", a.Name, err)
		}
	}
	return r
}

// chainRegistry builds n actions where step i requires step i-1's
// effect, forcing a plan of exactly n steps.
func chainRegistry(t *testing.T, n int) *Registry {
	t.Helper()
	r := NewRegistry()
	for i := 1; i <= n; i++ {
		a := Action{
			Name:    fmt.Sprintf("step%d", i),
			Cost:    1,
			Effects: WorldState{fmt.Sprintf("s%d", i): true},
		}
		if i > 1 {
			a.Preconditions = WorldState{fmt.Sprintf("s%d", i-1): true}
		}
		if err := r.Register(a); err != nil {
			t.Fatalf("Register %s failed: %v", a.Name, err)
		}
	}
	return r
}

// simulate replays a plan from world, failing on any step whose
// preconditions do not hold, and returns the final state.
func simulate(t *testing.T, r *Registry, world WorldState, plan *PlanState) WorldState {
	t.Helper()
	cur := world.Clone()
	for i, step := range plan.Steps {
		a, ok := r.Lookup(step.Action)
		if !ok {
			t.Fatalf("Step %d: unknown action %q", i, step.Action)
		}
		if !cur.Satisfies(a.Preconditions) {
			t.Fatalf("Step %d (%s): preconditions not satisfied", i, step.Action)
		}
		cur = cur.Apply(a.Effects)
	}
	return cur
}

func TestPlanReachesGoal(t *testing.T) {
	r := combatRegistry(t)
	p := New(r)
	goal := WorldState{"threat_eliminated": true}

	plan, err := p.Plan(context.Background(), WorldState{}, goal, UrgencyNormal)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Steps) != 4 {
		t.Fatalf("Expected 4 steps, got %d: %v", len(plan.Steps), plan.Steps)
	}
	if got := plan.TotalCost(); got != 8 {
		t.Errorf("Expected total cost 8, got %v", got)
	}

	final := simulate(t, r, WorldState{}, plan)
	if !final.Satisfies(goal) {
		t.Errorf("Simulated plan does not satisfy the goal: %v", final)
	}
	if !reflect.DeepEqual(plan.Goal, goal) {
		t.Errorf("Expected goal carried in plan state, got %v", plan.Goal)
	}
}

func TestPlanDeterministicReplay(t *testing.T) {
	r := combatRegistry(t)
	p := New(r)
	goal := WorldState{"threat_eliminated": true, "safe": true}

	first, err := p.Plan(context.Background(), WorldState{}, goal, UrgencyNormal)
	if err != nil {
		t.Fatalf("First plan failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := p.Plan(context.Background(), WorldState{}, goal, UrgencyNormal)
		if err != nil {
			t.Fatalf("Replan %d failed: %v", i, err)
		}
		if !reflect.DeepEqual(first.Steps, again.Steps) {
			t.Fatalf("Plan %d differs:\n  first %v\n  again %v", i, first.Steps, again.Steps)
		}
	}
}

func TestPlanGoalAlreadySatisfied(t *testing.T) {
	r := combatRegistry(t)
	p := New(r)

	plan, err := p.Plan(context.Background(),
		WorldState{"safe": true}, WorldState{"safe": true}, UrgencyNormal)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Steps) != 0 {
		t.Errorf("Expected empty plan, got %v", plan.Steps)
	}
	if !plan.Done() {
		t.Error("Expected empty plan to read as done")
	}
}

func TestPlanPrefersCheaperRoute(t *testing.T) {
	r := NewRegistry()
	for _, a := range []Action{
		{Name: "teleport", Cost: 10, Effects: WorldState{"at_target": true}},
		{Name: "walk_half", Cost: 3, Effects: WorldState{"halfway": true}},
		{Name: "walk_rest", Cost: 3, Preconditions: WorldState{"halfway": true}, Effects: WorldState{"at_target": true}},
	} {
		if err := r.Register(a); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	plan, err := New(r).Plan(context.Background(), WorldState{}, WorldState{"at_target": true}, UrgencyNormal)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []Step{{Action: "walk_half", Cost: 3}, {Action: "walk_rest", Cost: 3}}
	if !reflect.DeepEqual(plan.Steps, want) {
		t.Errorf("Expected cheaper two-step route, got %v", plan.Steps)
	}
}

func TestPlanRegistrationOrderBreaksTies(t *testing.T) {
	build := func(names ...string) *Registry {
		r := NewRegistry()
		for _, name := range names {
			err := r.Register(Action{Name: name, Cost: 2, Effects: WorldState{"goal_met": true}})
			if err != nil {
				t.Fatalf("Register %s failed: %v", name, err)
			}
		}
		return r
	}
	goal := WorldState{"goal_met": true}

	plan, err := New(build("alpha", "beta")).Plan(context.Background(), WorldState{}, goal, UrgencyNormal)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Action != "alpha" {
		t.Errorf("Expected first-registered alpha, got %v", plan.Steps)
	}

	plan, err = New(build("beta", "alpha")).Plan(context.Background(), WorldState{}, goal, UrgencyNormal)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Action != "beta" {
		t.Errorf("Expected first-registered beta, got %v", plan.Steps)
	}
}

func TestPlanNegativeLiteralGoal(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Action{
		Name:          "eliminate",
		Cost:          3,
		Preconditions: WorldState{"weapon_drawn": true},
		Effects:       WorldState{"enemy_alive": false},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	world := WorldState{"enemy_alive": true, "weapon_drawn": true}
	plan, err := New(r).Plan(context.Background(), world, WorldState{"enemy_alive": false}, UrgencyNormal)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Action != "eliminate" {
		t.Errorf("Expected single eliminate step, got %v", plan.Steps)
	}
}

func TestPlanUnreachableGoal(t *testing.T) {
	p := New(combatRegistry(t))
	plan, err := p.Plan(context.Background(), WorldState{}, WorldState{"invincible": true}, UrgencyNormal)
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("Expected ErrNoPlan, got %v", err)
	}
	if plan != nil {
		t.Errorf("Expected nil plan on exhaustion, got %v", plan)
	}
}

func TestPlanDepthBudget(t *testing.T) {
	r := chainRegistry(t, 10)
	goal := WorldState{"s10": true}

	shallow := New(r, WithBudget(UrgencyNormal, Budget{MaxDepth: 5, MaxNodes: 100000, Timeout: time.Second}))
	if _, err := shallow.Plan(context.Background(), WorldState{}, goal, UrgencyNormal); !errors.Is(err, ErrNoPlan) {
		t.Fatalf("Expected ErrNoPlan at depth 5, got %v", err)
	}

	plan, err := New(r).Plan(context.Background(), WorldState{}, goal, UrgencyCritical)
	if err != nil {
		t.Fatalf("Critical-tier plan failed: %v", err)
	}
	if len(plan.Steps) != 10 {
		t.Errorf("Expected 10 steps, got %d", len(plan.Steps))
	}
}

func TestPlanNodeBudget(t *testing.T) {
	r := chainRegistry(t, 10)
	p := New(r, WithBudget(UrgencyNormal, Budget{MaxDepth: 50, MaxNodes: 2, Timeout: time.Second}))

	plan, err := p.Plan(context.Background(), WorldState{}, WorldState{"s10": true}, UrgencyNormal)
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("Expected ErrNoPlan at node budget 2, got %v", err)
	}
	if plan != nil {
		t.Error("Budget exhaustion must never return a partial plan")
	}
}

func TestPlanTimeoutBudget(t *testing.T) {
	r := chainRegistry(t, 10)
	// Deadline already past when the search starts.
	p := New(r, WithBudget(UrgencyNormal, Budget{MaxDepth: 50, MaxNodes: 100000, Timeout: -time.Millisecond}))

	_, err := p.Plan(context.Background(), WorldState{}, WorldState{"s10": true}, UrgencyNormal)
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("Expected ErrNoPlan on expired deadline, got %v", err)
	}
}

func TestPlanHighTierStaysBounded(t *testing.T) {
	r := chainRegistry(t, 14)
	p := New(r)
	goal := WorldState{"s14": true}

	// 14 steps exceeds the high tier's depth bound.
	if _, err := p.Plan(context.Background(), WorldState{}, goal, UrgencyHigh); !errors.Is(err, ErrNoPlan) {
		t.Fatalf("Expected ErrNoPlan at high tier, got %v", err)
	}

	plan, err := p.Plan(context.Background(), WorldState{}, goal, UrgencyCritical)
	if err != nil {
		t.Fatalf("Critical-tier plan failed: %v", err)
	}
	if len(plan.Steps) != 14 {
		t.Errorf("Expected 14 steps, got %d", len(plan.Steps))
	}
}

func TestPlanContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(combatRegistry(t)).Plan(ctx, WorldState{}, WorldState{"safe": true}, UrgencyNormal)
	if err == nil {
		t.Fatal("Expected error from canceled context")
	}
	if errors.Is(err, ErrNoPlan) {
		t.Error("Cancellation must be distinguishable from ErrNoPlan")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
}

func TestPlanStateCursor(t *testing.T) {
	plan := &PlanState{
		Goal:  WorldState{"done": true},
		Steps: []Step{{Action: "a", Cost: 1}, {Action: "b", Cost: 2}, {Action: "c", Cost: 3}},
	}

	step, ok := plan.Current()
	if !ok || step.Action != "a" {
		t.Fatalf("Expected current a, got %v (ok=%v)", step, ok)
	}
	if !plan.Advance() {
		t.Fatal("Expected a step after first advance")
	}
	if step, _ = plan.Current(); step.Action != "b" {
		t.Errorf("Expected current b, got %v", step)
	}
	plan.Advance()
	if plan.Advance() {
		t.Error("Advance past the last step must report false")
	}
	if !plan.Done() {
		t.Error("Expected plan done")
	}
	if _, ok = plan.Current(); ok {
		t.Error("Current on a done plan must miss")
	}
	if got := plan.TotalCost(); got != 6 {
		t.Errorf("Expected total cost 6, got %v", got)
	}

	var nilPlan *PlanState
	if !nilPlan.Done() {
		t.Error("nil plan must read as done")
	}
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"empty name", Action{Cost: 1, Effects: WorldState{"x": true}}},
		{"zero cost", Action{Name: "a", Effects: WorldState{"x": true}}},
		{"negative cost", Action{Name: "a", Cost: -1, Effects: WorldState{"x": true}}},
		{"no effects", Action{Name: "a", Cost: 1}},
	}
	for _, tt := range tests {
		r := NewRegistry()
		if err := r.Register(tt.action); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	r := NewRegistry()
	ok := Action{Name: "a", Cost: 1, Effects: WorldState{"x": true}}
	if err := r.Register(ok); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(ok); err == nil {
		t.Error("Expected duplicate name to be rejected")
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 action, got %d", r.Len())
	}
}

func TestWorldStateSemantics(t *testing.T) {
	w := WorldState{"a": true}

	if !w.Satisfies(WorldState{"a": true, "b": false}) {
		t.Error("Missing keys must read as false")
	}
	if w.Satisfies(WorldState{"b": true}) {
		t.Error("Missing key must not satisfy a positive literal")
	}

	next := w.Apply(WorldState{"a": false, "c": true})
	if !w["a"] {
		t.Error("Apply must not mutate the receiver")
	}
	if next["a"] || !next["c"] {
		t.Errorf("Apply result wrong: %v", next)
	}

	c := w.Clone()
	c["a"] = false
	if !w["a"] {
		t.Error("Clone must be independent")
	}
}

func TestParseUrgency(t *testing.T) {
	tests := []struct {
		in   string
		want Urgency
	}{
		{"idle", UrgencyIdle},
		{"normal", UrgencyNormal},
		{"high", UrgencyHigh},
		{"critical", UrgencyCritical},
		{"bogus", UrgencyNormal},
		{"", UrgencyNormal},
	}
	for _, tt := range tests {
		if got := ParseUrgency(tt.in); got != tt.want {
			t.Errorf("ParseUrgency(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
	if UrgencyHigh.String() != "high" {
		t.Errorf("Expected high, got %s", UrgencyHigh.String())
	}
}

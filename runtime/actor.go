package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/continuation"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/document"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/flow"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/planner"
	"github.com/beyond-immersion/bannou-service-sub001/store"
)

// Scope keys making up the tick protocol between the runtime and the
// behavior it executes. The runtime writes perception.* and plan.step /
// plan.active; behaviors write plan.request, plan.goal.*, plan.urgency,
// plan.advance.
const (
	keyPerceptions      = "perceptions"
	keyPerceptionCount  = "perception.count"
	keyPerceptionLatest = "perception.latest"
	keyPlanRequest      = "plan.request"
	keyPlanAdvance      = "plan.advance"
	keyPlanGoal         = "plan.goal"
	keyPlanUrgency      = "plan.urgency"
	keyPlanStep         = "plan.step"
	keyPlanActive       = "plan.active"
)

type cmdKind uint8

const (
	cmdStop cmdKind = iota
	cmdPause
	cmdResume
)

type command struct {
	kind cmdKind
}

// pendingAwait tracks the continuation an actor is suspended at. The
// resolution channel belongs to this actor alone; it is polled between
// ticks, never blocked on.
type pendingAwait struct {
	id          string
	ch          <-chan continuation.Resolution
	point       string
	timeout     time.Duration
	defaultFlow string
}

// Actor is one entity's execution loop. All cognition state (scope,
// machine, plan, pending await) belongs to the loop goroutine; the
// mutex guards only what status queries read.
type Actor struct {
	id   string
	tmpl Template
	rt   *Runtime

	mu         sync.Mutex
	state      State
	lastFault  error
	ticks      uint64
	awaitID    string
	awaitPoint string

	queue    *perceptionQueue
	commands chan command
	done     chan struct{}
	force    chan struct{}
	forceOne sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// Loop-owned. Only load (before the loop starts) and the loop itself
	// touch these.
	doc         *document.Document
	scope       *flow.Scope
	machine     *bytecode.Machine
	input       []float64
	lastOutputs map[string]float64
	plan        *planner.PlanState
	await       *pendingAwait
	sinceSave   int
	terminated  bool
}

func newActor(rt *Runtime, id string, tmpl Template) *Actor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		id:       id,
		tmpl:     tmpl,
		rt:       rt,
		state:    StatePending,
		queue:    newPerceptionQueue(tmpl.QueueCapacity),
		commands: make(chan command, 8),
		done:     make(chan struct{}),
		force:    make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		scope:    flow.NewScope(),
	}
	trackState(StatePending, StatePending)
	return a
}

// seed mixes the template seed with the actor id so each actor draws its
// own reproducible random stream.
func (a *Actor) seed() int64 {
	return a.tmpl.Seed ^ int64(bytecode.NameHash(a.id))
}

func (a *Actor) currentState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor) transition(to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !canTransition(a.state, to) {
		return fmt.Errorf("actor %q: illegal transition %s -> %s", a.id, a.state, to)
	}
	log.Debugf("actor %q: %s -> %s", a.id, a.state, to)
	trackState(a.state, to)
	a.state = to
	return nil
}

// fail moves the actor to the Error terminal state, keeping the fault
// for status queries. Used for model corruption and invariant
// violations only; everything else degrades.
func (a *Actor) fail(err error) {
	a.mu.Lock()
	if a.state.Terminal() {
		a.mu.Unlock()
		return
	}
	trackState(a.state, StateError)
	a.state = StateError
	a.lastFault = err
	a.mu.Unlock()

	log.Errorf("actor %q failed: %s", a.id, err.Error())
	a.cancelAwait()
	a.cancel()
}

// start loads the model, restores any saved snapshot, and launches the
// loop. Called synchronously from Spawn so load failures surface to the
// caller.
func (a *Actor) start() error {
	if err := a.transition(StateStarting); err != nil {
		return err
	}
	if err := a.load(); err != nil {
		a.fail(err)
		return err
	}
	if err := a.transition(StateRunning); err != nil {
		return err
	}
	go a.loop()
	return nil
}

func (a *Actor) load() error {
	switch a.tmpl.Mode {
	case ModeDocument:
		doc, err := a.rt.cache.Document(a.tmpl.Model)
		if err != nil {
			return err
		}
		a.doc = doc
	case ModeBytecode:
		model, err := a.rt.cache.Bytecode(a.tmpl.Model)
		if err != nil {
			return err
		}
		machine, err := bytecode.NewMachine(model, a.seed())
		if err != nil {
			return err
		}
		a.machine = machine
		a.input = make([]float64, len(model.Inputs))
	default:
		return fmt.Errorf("template %q: unknown mode %q", a.tmpl.Name, a.tmpl.Mode)
	}
	return a.restore()
}

// restore rehydrates the actor from its last snapshot when one exists.
// A missing snapshot is a fresh start; an unreadable or incompatible one
// fails the spawn so saved state is never silently discarded.
func (a *Actor) restore() error {
	data, err := a.rt.states.Load(a.id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot for %q: %w", a.id, err)
	}
	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		return err
	}
	if snap.Mode != a.tmpl.Mode {
		return fmt.Errorf("snapshot for %q was taken in %s mode, template %q is %s mode",
			a.id, snap.Mode, a.tmpl.Name, a.tmpl.Mode)
	}
	if snap.ModelRef != a.tmpl.Model {
		log.Infof("actor %q: snapshot model %q superseded by %q", a.id, snap.ModelRef, a.tmpl.Model)
	}

	a.ticks = snap.Ticks
	a.plan = restorePlan(snap.Plan)
	if snap.Scope != nil {
		a.scope.Restore(snap.Scope)
	}

	switch a.tmpl.Mode {
	case ModeDocument:
		if snap.Await != nil {
			a.openAwait(snap.Await.Point,
				time.Duration(snap.Await.TimeoutMillis)*time.Millisecond,
				snap.Await.DefaultFlow)
		}
	case ModeBytecode:
		if snap.Machine != nil {
			if err := a.machine.Restore(snap.Machine); err != nil {
				return fmt.Errorf("restore machine for %q: %w", a.id, err)
			}
			if point, ok := a.machine.PendingPoint(); ok {
				a.openAwait(point.Name,
					time.Duration(point.TimeoutMillis)*time.Millisecond, "")
			}
		}
	}
	log.Infof("actor %q restored from snapshot (tick %d)", a.id, a.ticks)
	return nil
}

// loop is the actor's sole goroutine. Commands and the force signal are
// serviced between ticks; a tick in flight is only interruptible through
// context cancellation.
func (a *Actor) loop() {
	defer close(a.done)
	ticker := time.NewTicker(a.tmpl.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.force:
			a.abandon()
			return
		case cmd := <-a.commands:
			if a.handleCommand(cmd) {
				a.shutdown()
				return
			}
		case <-ticker.C:
			if a.currentState() != StateRunning {
				continue
			}
			a.tick()
			if a.terminated {
				a.shutdown()
				return
			}
			if a.currentState() == StateError {
				return
			}
		}
	}
}

// handleCommand reports whether the loop should stop.
func (a *Actor) handleCommand(cmd command) bool {
	switch cmd.kind {
	case cmdStop:
		return true
	case cmdPause:
		if err := a.transition(StatePaused); err != nil {
			log.Warningf("%s", err.Error())
		}
	case cmdResume:
		if err := a.transition(StateRunning); err != nil {
			log.Warningf("%s", err.Error())
		}
	}
	return false
}

// shutdown is the graceful exit: final snapshot, then Stopped.
func (a *Actor) shutdown() {
	if err := a.transition(StateStopping); err != nil {
		return
	}
	a.persist()
	a.cancelAwait()
	a.cancel()
	if err := a.transition(StateStopped); err == nil {
		log.Infof("actor %q stopped after %d ticks", a.id, a.ticksSeen())
	}
}

// abandon is the forced exit: no final snapshot, so the last published
// one stays authoritative.
func (a *Actor) abandon() {
	if a.currentState() == StateError {
		return
	}
	if err := a.transition(StateStopping); err != nil {
		return
	}
	a.cancelAwait()
	_ = a.transition(StateStopped)
	log.Infof("actor %q force-stopped", a.id)
}

func (a *Actor) cancelAwait() {
	if a.await != nil {
		a.rt.engine.Cancel(a.await.id)
		a.clearAwait()
	}
}

func (a *Actor) requestStop(graceful bool) error {
	if graceful {
		select {
		case a.commands <- command{kind: cmdStop}:
			return nil
		case <-a.done:
			return nil
		}
	}
	a.forceOne.Do(func() {
		a.cancel()
		close(a.force)
	})
	return nil
}

func (a *Actor) requestCommand(kind cmdKind) error {
	select {
	case a.commands <- command{kind: kind}:
		return nil
	case <-a.done:
		return fmt.Errorf("actor %q is no longer running", a.id)
	}
}

// tick runs one cognition pass: drain perceptions, execute, service the
// plan protocol, notify, and persist on cadence. A panic in handler code
// is an invariant violation and moves the actor to Error.
func (a *Actor) tick() {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.fail(fmt.Errorf("actor %q: tick panic: %v", a.id, r))
		}
	}()

	perceptions := a.queue.Drain()
	switch a.tmpl.Mode {
	case ModeDocument:
		a.tickDocument(perceptions)
	case ModeBytecode:
		a.tickBytecode(perceptions)
	}
	if a.ctx.Err() != nil || a.currentState() == StateError {
		return
	}

	a.servicePlan()

	a.mu.Lock()
	a.ticks++
	tick := a.ticks
	a.mu.Unlock()

	a.notify(tick)

	a.sinceSave++
	if a.sinceSave >= a.tmpl.SaveEvery {
		a.sinceSave = 0
		a.persist()
	}

	metricTicks.WithLabelValues(a.tmpl.Name).Inc()
	metricTickDuration.WithLabelValues(a.tmpl.Name).Observe(time.Since(started).Seconds())
}

func (a *Actor) tickDocument(perceptions []Perception) {
	// Hot reload point: a replaced document applies from the next tick,
	// never mid-run.
	if doc, err := a.rt.cache.Document(a.tmpl.Model); err == nil {
		a.doc = doc
	} else {
		log.Warningf("actor %q: document reload failed, keeping version %d: %s",
			a.id, a.doc.Version, err.Error())
	}

	a.ingestPerceptions(perceptions)

	if a.await != nil {
		a.serviceDocumentAwait()
		return
	}
	res := a.rt.executor.Execute(a.ctx, a.doc, "", a.scope)
	a.applyFlowResult(res)
}

func (a *Actor) applyFlowResult(res *flow.Result) {
	switch res.Outcome {
	case flow.Paused:
		a.openAwait(res.Await.Point, res.Await.Timeout, res.Await.DefaultFlow)
	case flow.Faulted:
		// A fatal action aborts the run, not the actor. The next tick
		// starts the cognition pass over.
		log.Warningf("actor %q: cognition pass aborted: %s", a.id, res.Fault.Error())
	case flow.Completed:
		if res.Terminated {
			a.terminated = true
		}
	}
}

func (a *Actor) openAwait(point string, timeout time.Duration, defaultFlow string) {
	id, ch := a.rt.engine.Open(point, timeout, defaultFlow)
	a.await = &pendingAwait{
		id:          id,
		ch:          ch,
		point:       point,
		timeout:     timeout,
		defaultFlow: defaultFlow,
	}
	a.mu.Lock()
	a.awaitID = id
	a.awaitPoint = point
	a.mu.Unlock()
}

// clearAwait drops the loop-owned pending await and its status mirror.
func (a *Actor) clearAwait() {
	a.await = nil
	a.mu.Lock()
	a.awaitID = ""
	a.awaitPoint = ""
	a.mu.Unlock()
}

// serviceDocumentAwait polls the pending continuation. While unresolved
// the cognition pass stays suspended; perceptions keep accruing.
func (a *Actor) serviceDocumentAwait() {
	pending := a.await
	select {
	case resolution := <-pending.ch:
		a.clearAwait()
		a.rt.engine.Resolve(resolution.ID)
		switch resolution.State {
		case continuation.StateTimedOut:
			res := a.rt.executor.Execute(a.ctx, a.doc, pending.defaultFlow, a.scope)
			a.applyFlowResult(res)
		case continuation.StateExtended:
			if err := a.runExtension(resolution.Extension); err != nil {
				log.Warningf("actor %q: extension at %q unusable, falling back to default flow: %s",
					a.id, pending.point, err.Error())
				res := a.rt.executor.Execute(a.ctx, a.doc, pending.defaultFlow, a.scope)
				a.applyFlowResult(res)
			}
		}
	default:
	}
}

// runExtension evaluates an extension model over the document scope:
// input slots are read from scope paths of the same name, output slots
// written back. The extension replaces the awaited flow's remainder
// wholesale.
func (a *Actor) runExtension(ext *bytecode.Model) error {
	machine, err := bytecode.NewMachine(ext, a.seed())
	if err != nil {
		return err
	}
	in := make([]float64, len(ext.Inputs))
	for i, name := range ext.Inputs {
		v, _ := a.scope.Number(name)
		in[i] = v
	}
	res, err := machine.Evaluate(in)
	if err != nil {
		return err
	}
	for i, name := range ext.Outputs {
		a.scope.Set(name, res.Output[i])
	}
	return nil
}

func (a *Actor) tickBytecode(perceptions []Perception) {
	a.ingestPerceptions(perceptions)

	if a.await != nil {
		a.serviceMachineAwait()
		return
	}

	model := a.machine.Model()
	for i, name := range model.Inputs {
		v, _ := a.scope.Number(name)
		a.input[i] = v
	}
	res, err := a.machine.Evaluate(a.input)
	if err != nil {
		a.fail(fmt.Errorf("actor %q: evaluate: %w", a.id, err))
		return
	}
	a.applyMachineResult(res)
}

func (a *Actor) applyMachineResult(res bytecode.Result) {
	if res.Status == bytecode.StatusPaused {
		a.openAwait(res.Point.Name,
			time.Duration(res.Point.TimeoutMillis)*time.Millisecond, "")
		return
	}
	model := a.machine.Model()
	if a.lastOutputs == nil {
		a.lastOutputs = make(map[string]float64, len(model.Outputs))
	}
	for i, name := range model.Outputs {
		a.lastOutputs[name] = res.Output[i]
		a.scope.Set(name, res.Output[i])
	}
}

func (a *Actor) serviceMachineAwait() {
	pending := a.await
	select {
	case resolution := <-pending.ch:
		a.clearAwait()
		a.rt.engine.Resolve(resolution.ID)

		var res bytecode.Result
		var err error
		switch resolution.State {
		case continuation.StateTimedOut:
			res, err = a.machine.ResumeWithDefault()
		case continuation.StateExtended:
			res, err = a.machine.ResumeWithExtension(resolution.Extension)
			if errors.Is(err, bytecode.ErrIncompatible) {
				log.Warningf("actor %q: extension at %q rejected, resuming default: %s",
					a.id, pending.point, err.Error())
				res, err = a.machine.ResumeWithDefault()
			}
		}
		if err != nil {
			a.fail(fmt.Errorf("actor %q: resume: %w", a.id, err))
			return
		}
		a.applyMachineResult(res)
	default:
	}
}

// ingestPerceptions exposes the tick's drained perceptions to the
// behavior. Each batch replaces the last; perceptions are consumed
// exactly once.
func (a *Actor) ingestPerceptions(perceptions []Perception) {
	a.scope.Set(keyPerceptionCount, float64(len(perceptions)))
	list := make([]interface{}, len(perceptions))
	for i, p := range perceptions {
		list[i] = map[string]interface{}{
			"type":    p.Type,
			"source":  p.Source,
			"urgency": p.Urgency,
			"payload": p.Payload,
		}
	}
	a.scope.Set(keyPerceptions, list)
	if len(perceptions) > 0 {
		a.scope.Set(keyPerceptionLatest, list[len(perceptions)-1])
	} else {
		a.scope.Delete(keyPerceptionLatest)
	}
}

// registerPlanKind binds the "plan" action kind: the one-action form of
// the scope protocol. Goal literals land under plan.goal, the optional
// urgency at plan.urgency, and the request flag is raised for the same
// tick's plan service pass. A caller-supplied binding for "plan" wins.
func registerPlanKind(reg *flow.Registry) {
	if _, ok := reg.Lookup("plan"); ok {
		return
	}
	_ = reg.RegisterFunc("plan", func(ctx context.Context, sc *flow.Scope, action *document.Action) error {
		goal, ok := action.Args["goal"].(map[string]interface{})
		if !ok || len(goal) == 0 {
			return fmt.Errorf("plan: missing goal arg")
		}
		for name, raw := range goal {
			switch t := raw.(type) {
			case bool:
				sc.Set(keyPlanGoal+"."+name, t)
			case float64:
				sc.Set(keyPlanGoal+"."+name, t != 0)
			case int:
				sc.Set(keyPlanGoal+"."+name, t != 0)
			case int64:
				sc.Set(keyPlanGoal+"."+name, t != 0)
			default:
				return fmt.Errorf("plan: goal %q is not a boolean literal", name)
			}
		}
		if u := document.ArgString(action.Args, "urgency"); u != "" {
			sc.Set(keyPlanUrgency, u)
		}
		sc.Set(keyPlanRequest, true)
		return nil
	})
}

// servicePlan runs the scope protocol: advance the cursor when asked,
// replan when asked, and publish the current step.
func (a *Actor) servicePlan() {
	if a.flagSet(keyPlanAdvance) {
		a.scope.Delete(keyPlanAdvance)
		if a.plan != nil {
			a.plan.Advance()
		}
	}
	if a.flagSet(keyPlanRequest) {
		a.scope.Delete(keyPlanRequest)
		a.replan()
	}
	a.publishPlan()
}

func (a *Actor) flagSet(path string) bool {
	v, ok := a.scope.Get(path)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return false
}

func (a *Actor) replan() {
	goal := a.goalFromScope()
	if len(goal) == 0 {
		log.Debugf("actor %q requested a plan without a goal", a.id)
		return
	}
	urgency := planner.ParseUrgency(a.scope.Text(keyPlanUrgency))
	world := a.rt.world.WorldState(a.id)

	plan, err := a.rt.planner.Plan(a.ctx, world, goal, urgency)
	switch {
	case err == nil:
		a.plan = plan
		metricReplans.WithLabelValues(a.tmpl.Name, "planned").Inc()
	case errors.Is(err, planner.ErrNoPlan):
		metricReplans.WithLabelValues(a.tmpl.Name, "no_plan").Inc()
		// A starved actor (no plan to fall back on) escalates one tier
		// and retries once; otherwise the previous plan stands.
		if a.plan == nil && urgency < planner.UrgencyCritical {
			plan, err = a.rt.planner.Plan(a.ctx, world, goal, urgency+1)
			if err == nil {
				a.plan = plan
				metricReplans.WithLabelValues(a.tmpl.Name, "planned").Inc()
			} else {
				log.Debugf("actor %q: no plan at %s even after escalation", a.id, urgency+1)
			}
		}
	default:
		metricReplans.WithLabelValues(a.tmpl.Name, "error").Inc()
		log.Debugf("actor %q: plan search ended early: %s", a.id, err.Error())
	}
}

// goalFromScope reads the plan.goal subtree as world-state literals.
func (a *Actor) goalFromScope() planner.WorldState {
	v, ok := a.scope.Get(keyPlanGoal)
	if !ok {
		return nil
	}
	tree, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	goal := make(planner.WorldState, len(tree))
	for name, raw := range tree {
		switch t := raw.(type) {
		case bool:
			goal[name] = t
		case float64:
			goal[name] = t != 0
		case int:
			goal[name] = t != 0
		case int64:
			goal[name] = t != 0
		}
	}
	return goal
}

func (a *Actor) publishPlan() {
	if step, ok := a.plan.Current(); ok {
		a.scope.Set(keyPlanStep, step.Action)
		a.scope.Set(keyPlanActive, true)
	} else {
		a.scope.Set(keyPlanStep, "")
		a.scope.Set(keyPlanActive, false)
	}
}

// notify publishes the externally interesting slice of this tick's
// state. The snapshot copy keeps subscribers isolated from the live
// scope.
func (a *Actor) notify(tick uint64) {
	update := StateUpdate{
		ActorID:   a.id,
		Template:  a.tmpl.Name,
		Tick:      tick,
		Lifecycle: a.currentState(),
		At:        time.Now(),
	}

	snapshot := a.scope.Snapshot()
	if feelings, ok := snapshot["feelings"].(map[string]interface{}); ok {
		update.Feelings = make(map[string]float64, len(feelings))
		for name, raw := range feelings {
			if v, ok := asFloat(raw); ok {
				update.Feelings[name] = v
			}
		}
	}
	if goals, ok := snapshot["goal"].(map[string]interface{}); ok {
		update.Goals = goals
	}
	if len(a.lastOutputs) > 0 {
		update.Outputs = make(map[string]float64, len(a.lastOutputs))
		for name, v := range a.lastOutputs {
			update.Outputs[name] = v
		}
	}
	if step, ok := a.plan.Current(); ok {
		update.PlanStep = step.Action
	}
	if a.await != nil {
		update.ContinuationID = a.await.id
		update.AwaitingPoint = a.await.point
	}

	a.rt.notifier.Publish(update)
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

// persist snapshots the actor and writes it through the state store. A
// failed write is logged and retried on the next cadence; the actor
// keeps its in-memory state either way.
func (a *Actor) persist() {
	snap := a.buildSnapshot()
	data, err := MarshalSnapshot(snap)
	if err != nil {
		metricSaveFailures.WithLabelValues(a.tmpl.Name).Inc()
		log.Errorf("actor %q: snapshot encode failed: %s", a.id, err.Error())
		return
	}
	if err := a.rt.states.Save(a.id, data); err != nil {
		metricSaveFailures.WithLabelValues(a.tmpl.Name).Inc()
		log.Errorf("actor %q: snapshot save failed, retrying next cadence: %s", a.id, err.Error())
		return
	}
	log.Debugf("actor %q: snapshot saved at tick %d", a.id, snap.Ticks)
}

func (a *Actor) buildSnapshot() *ActorSnapshot {
	snap := &ActorSnapshot{
		Version:  SnapshotVersion,
		ActorID:  a.id,
		Template: a.tmpl.Name,
		ModelRef: a.tmpl.Model,
		Mode:     a.tmpl.Mode,
		Ticks:    a.ticksSeen(),
		SavedAt:  time.Now().Unix(),
		Scope:    a.scope.Snapshot(),
		Plan:     snapshotPlan(a.plan),
	}
	switch a.tmpl.Mode {
	case ModeDocument:
		if a.await != nil {
			snap.Await = &AwaitSnapshot{
				Point:         a.await.point,
				TimeoutMillis: uint32(a.await.timeout / time.Millisecond),
				DefaultFlow:   a.await.defaultFlow,
			}
		}
	case ModeBytecode:
		st := a.machine.Snapshot()
		snap.Machine = &st
	}
	return snap
}

func (a *Actor) ticksSeen() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ticks
}

// status is safe to call from any goroutine.
func (a *Actor) status() StatusInfo {
	a.mu.Lock()
	state := a.state
	fault := ""
	if a.lastFault != nil {
		fault = a.lastFault.Error()
	}
	ticks := a.ticks
	awaitID := a.awaitID
	awaitPoint := a.awaitPoint
	a.mu.Unlock()

	return StatusInfo{
		ActorID:        a.id,
		Template:       a.tmpl.Name,
		State:          state,
		LastFault:      fault,
		Ticks:          ticks,
		QueueLen:       a.queue.Len(),
		QueueDropped:   a.queue.Dropped(),
		ContinuationID: awaitID,
		AwaitingPoint:  awaitPoint,
	}
}

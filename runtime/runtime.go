// Package runtime hosts actors: one execution loop per entity, a shared
// model cache, the continuation engine, the planner, and the persistence
// cadence. The control surface exposes spawn, stop, send, status, and
// extension attach.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/continuation"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/flow"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/planner"
	"github.com/beyond-immersion/bannou-service-sub001/store"
)

var log = commonlog.GetLogger("bannou.runtime")

// Template modes.
const (
	ModeDocument = "document"
	ModeBytecode = "bytecode"
)

// Defaults applied to templates that leave fields zero.
const (
	DefaultTickInterval  = 100 * time.Millisecond
	DefaultQueueCapacity = 64
	DefaultSaveEvery     = 10
)

var (
	// ErrActorNotFound reports an unknown actor id.
	ErrActorNotFound = errors.New("runtime: actor not found")

	// ErrActorExists reports a spawn against an id already in use.
	ErrActorExists = errors.New("runtime: actor already exists")

	// ErrTemplateNotFound reports an unknown template name.
	ErrTemplateNotFound = errors.New("runtime: template not found")
)

// Template describes how to run a class of actors: which model, in which
// mode, and on what cadences.
type Template struct {
	Name          string
	Mode          string // ModeDocument or ModeBytecode
	Model         string // model store reference
	TickInterval  time.Duration
	QueueCapacity int
	SaveEvery     int // ticks between snapshots
	Seed          int64
}

func (t *Template) validate() error {
	if t.Name == "" {
		return fmt.Errorf("template has no name")
	}
	if t.Mode != ModeDocument && t.Mode != ModeBytecode {
		return fmt.Errorf("template %q: unknown mode %q", t.Name, t.Mode)
	}
	if t.Model == "" {
		return fmt.Errorf("template %q names no model", t.Name)
	}
	return nil
}

func (t *Template) applyDefaults() {
	if t.TickInterval <= 0 {
		t.TickInterval = DefaultTickInterval
	}
	if t.QueueCapacity <= 0 {
		t.QueueCapacity = DefaultQueueCapacity
	}
	if t.SaveEvery <= 0 {
		t.SaveEvery = DefaultSaveEvery
	}
}

// StatusInfo is the externally visible summary of one actor. When the
// actor is suspended at a continuation point, ContinuationID is the
// handle an extension attaches to.
type StatusInfo struct {
	ActorID        string
	Template       string
	State          State
	LastFault      string
	Ticks          uint64
	QueueLen       int
	QueueDropped   uint64
	ContinuationID string
	AwaitingPoint  string
}

// WorldSource supplies the read-only world-state snapshot a plan search
// runs against.
type WorldSource interface {
	WorldState(actorID string) planner.WorldState
}

// WorldSourceFunc adapts a function to the WorldSource interface.
type WorldSourceFunc func(actorID string) planner.WorldState

func (f WorldSourceFunc) WorldState(actorID string) planner.WorldState {
	return f(actorID)
}

// Option configures a Runtime.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	actions  *planner.Registry
	handlers *flow.Registry
	world    WorldSource
	budgets  []planner.Option
	sweep    time.Duration
	ttl      time.Duration
}

// WithPlannerActions installs the action registry plans are searched
// over.
func WithPlannerActions(reg *planner.Registry) Option {
	return func(c *runtimeConfig) { c.actions = reg }
}

// WithHandlers installs the flow handler registry shared by every
// document actor.
func WithHandlers(reg *flow.Registry) Option {
	return func(c *runtimeConfig) { c.handlers = reg }
}

// WithWorldSource replaces the default scope-backed world source.
func WithWorldSource(src WorldSource) Option {
	return func(c *runtimeConfig) { c.world = src }
}

// WithPlannerBudget overrides one urgency tier's search budget.
func WithPlannerBudget(u planner.Urgency, b planner.Budget) Option {
	return func(c *runtimeConfig) { c.budgets = append(c.budgets, planner.WithBudget(u, b)) }
}

// WithSweep tunes how often resolved continuations are swept and how
// long they linger first.
func WithSweep(interval, ttl time.Duration) Option {
	return func(c *runtimeConfig) { c.sweep = interval; c.ttl = ttl }
}

// Runtime owns the actor table and the services actors share.
type Runtime struct {
	cache    *ModelCache
	states   store.StateStore
	engine   *continuation.Engine
	planner  *planner.Planner
	executor *flow.Executor
	notifier *notifier
	world    WorldSource

	mu        sync.RWMutex
	templates map[string]Template
	actors    map[string]*Actor

	stopSweep func()
}

// New assembles a runtime over the given stores.
func New(models store.ModelStore, states store.StateStore, opts ...Option) *Runtime {
	cfg := &runtimeConfig{
		sweep: time.Minute,
		ttl:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.actions == nil {
		cfg.actions = planner.NewRegistry()
	}
	if cfg.handlers == nil {
		cfg.handlers = flow.NewRegistry()
	}
	registerPlanKind(cfg.handlers)

	rt := &Runtime{
		cache:     NewModelCache(models),
		states:    states,
		engine:    continuation.NewEngine(),
		planner:   planner.New(cfg.actions, cfg.budgets...),
		executor:  flow.NewExecutor(cfg.handlers),
		notifier:  newNotifier(),
		templates: make(map[string]Template),
		actors:    make(map[string]*Actor),
	}
	if cfg.world != nil {
		rt.world = cfg.world
	} else {
		rt.world = scopeWorldSource{rt}
	}
	rt.stopSweep = rt.engine.StartSweeper(cfg.sweep, cfg.ttl)
	return rt
}

// scopeWorldSource is the default world source: the actor's own scope,
// "world" subtree, read as boolean literals. Safe because a plan search
// only ever asks about the actor whose loop is running it.
type scopeWorldSource struct {
	rt *Runtime
}

func (s scopeWorldSource) WorldState(actorID string) planner.WorldState {
	s.rt.mu.RLock()
	a, ok := s.rt.actors[actorID]
	s.rt.mu.RUnlock()
	if !ok {
		return nil
	}
	v, ok := a.scope.Get("world")
	if !ok {
		return nil
	}
	tree, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	world := make(planner.WorldState, len(tree))
	for name, raw := range tree {
		switch t := raw.(type) {
		case bool:
			world[name] = t
		case float64:
			world[name] = t != 0
		case int:
			world[name] = t != 0
		case int64:
			world[name] = t != 0
		}
	}
	return world
}

// Engine exposes the continuation engine, primarily for tests and the
// extension surface.
func (rt *Runtime) Engine() *continuation.Engine {
	return rt.engine
}

// Cache exposes the shared model cache.
func (rt *Runtime) Cache() *ModelCache {
	return rt.cache
}

// RegisterTemplate makes a template spawnable. Replacing a template
// affects future spawns only.
func (rt *Runtime) RegisterTemplate(t Template) error {
	if err := t.validate(); err != nil {
		return err
	}
	t.applyDefaults()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.templates[t.Name] = t
	return nil
}

// Templates lists registered template names.
func (rt *Runtime) Templates() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	names := make([]string, 0, len(rt.templates))
	for name := range rt.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spawn creates and starts an actor from a template. When a snapshot
// exists for the id, the actor resumes from it.
func (rt *Runtime) Spawn(actorID, templateName string) error {
	if actorID == "" {
		return fmt.Errorf("runtime: actor id is empty")
	}

	rt.mu.Lock()
	tmpl, ok := rt.templates[templateName]
	if !ok {
		rt.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, templateName)
	}
	if existing, ok := rt.actors[actorID]; ok {
		state := existing.currentState()
		if !state.Terminal() {
			rt.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrActorExists, actorID)
		}
		// The replaced actor leaves the gauge as its record leaves the table.
		metricActors.WithLabelValues(state.String()).Dec()
	}
	a := newActor(rt, actorID, tmpl)
	rt.actors[actorID] = a
	rt.mu.Unlock()

	if err := a.start(); err != nil {
		return fmt.Errorf("spawn %q: %w", actorID, err)
	}
	log.Infof("spawned actor %q from template %q", actorID, templateName)
	return nil
}

// Stop halts an actor. Graceful stops finish the tick in flight and
// write a final snapshot; forced stops abandon both. Blocks until the
// loop exits or ctx gives up.
func (rt *Runtime) Stop(ctx context.Context, actorID string, graceful bool) error {
	a, err := rt.actor(actorID)
	if err != nil {
		return err
	}
	if a.currentState().Terminal() {
		return nil
	}
	if err := a.requestStop(graceful); err != nil {
		return err
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause suspends ticking without tearing anything down.
func (rt *Runtime) Pause(actorID string) error {
	a, err := rt.actor(actorID)
	if err != nil {
		return err
	}
	return a.requestCommand(cmdPause)
}

// Resume continues a paused actor.
func (rt *Runtime) Resume(actorID string) error {
	a, err := rt.actor(actorID)
	if err != nil {
		return err
	}
	return a.requestCommand(cmdResume)
}

// Send enqueues a perception for an actor. Delivery is at-most-once: a
// full queue drops its oldest entry to admit this one.
func (rt *Runtime) Send(actorID string, p Perception) error {
	a, err := rt.actor(actorID)
	if err != nil {
		return err
	}
	if a.currentState().Terminal() {
		return fmt.Errorf("runtime: actor %q is %s", actorID, a.currentState())
	}
	if p.At.IsZero() {
		p.At = time.Now()
	}
	if a.queue.Push(p) {
		metricPerceptionDrops.WithLabelValues(a.tmpl.Name).Inc()
	}
	return nil
}

// Status reports one actor's lifecycle state and counters.
func (rt *Runtime) Status(actorID string) (StatusInfo, error) {
	a, err := rt.actor(actorID)
	if err != nil {
		return StatusInfo{}, err
	}
	return a.status(), nil
}

// List reports every actor, ordered by id.
func (rt *Runtime) List() []StatusInfo {
	rt.mu.RLock()
	actors := make([]*Actor, 0, len(rt.actors))
	for _, a := range rt.actors {
		actors = append(actors, a)
	}
	rt.mu.RUnlock()

	infos := make([]StatusInfo, len(actors))
	for i, a := range actors {
		infos[i] = a.status()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ActorID < infos[j].ActorID })
	return infos
}

// Attach delivers an extension to a pending continuation. The bytes are
// deserialized and verified before the engine sees them; corrupt models
// are rejected outright.
func (rt *Runtime) Attach(continuationID string, modelBytes []byte) (continuation.AttachResult, error) {
	model, err := bytecode.Deserialize(modelBytes)
	if err != nil {
		metricAttaches.WithLabelValues("corrupt").Inc()
		return 0, fmt.Errorf("extension model: %w", err)
	}
	if err := bytecode.Verify(model); err != nil {
		metricAttaches.WithLabelValues("corrupt").Inc()
		return 0, fmt.Errorf("extension model: %w", err)
	}
	if !model.IsExtension() {
		metricAttaches.WithLabelValues("corrupt").Inc()
		return 0, fmt.Errorf("extension model: not flagged as an extension body")
	}

	result := rt.engine.Attach(continuationID, model)
	metricAttaches.WithLabelValues(result.String()).Inc()
	return result, nil
}

// Subscribe returns a channel of per-tick state updates. Slow readers
// lose updates rather than stalling actors; cancel releases the
// subscription.
func (rt *Runtime) Subscribe(buffer int) (<-chan StateUpdate, func()) {
	return rt.notifier.Subscribe(buffer)
}

// PendingContinuations lists every continuation still open or awaiting
// its resume, ordered by id.
func (rt *Runtime) PendingContinuations() []continuation.Record {
	return rt.engine.Pending()
}

// WatchModels invalidates cached models as the store announces changes.
// Blocks until ctx ends; run it in its own goroutine.
func (rt *Runtime) WatchModels(ctx context.Context) error {
	return rt.cache.WatchInvalidate(ctx)
}

// Shutdown stops every live actor gracefully, forcing any that outlive
// ctx, then releases shared resources. The state store stays open; it
// belongs to the caller.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.RLock()
	actors := make([]*Actor, 0, len(rt.actors))
	for _, a := range rt.actors {
		actors = append(actors, a)
	}
	rt.mu.RUnlock()

	var wg sync.WaitGroup
	for _, a := range actors {
		if a.currentState().Terminal() {
			continue
		}
		wg.Add(1)
		go func(a *Actor) {
			defer wg.Done()
			_ = a.requestStop(true)
			select {
			case <-a.done:
			case <-ctx.Done():
				_ = a.requestStop(false)
				<-a.done
			}
		}(a)
	}
	wg.Wait()

	rt.stopSweep()
	rt.notifier.Close()
	log.Info("runtime shut down")
	return ctx.Err()
}

func (rt *Runtime) actor(actorID string) (*Actor, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	a, ok := rt.actors[actorID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrActorNotFound, actorID)
	}
	return a, nil
}

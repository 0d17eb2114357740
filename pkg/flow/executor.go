package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/document"
)

var log = commonlog.GetLogger("bannou.flow")

// Outcome classifies how a document run ended.
type Outcome int

const (
	// Completed means the run reached the end of a flow, an end
	// action, or a terminate action.
	Completed Outcome = iota
	// Paused means the run stopped at an await action; Result.Await
	// describes the continuation point.
	Paused
	// Faulted means a fatal handler error or an executor limit ended
	// the run early.
	Faulted
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Paused:
		return "paused"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// AwaitRequest describes the continuation point an await action
// paused on. DefaultFlow is where the run resumes if the point times
// out without an extension.
type AwaitRequest struct {
	Point       string
	Timeout     time.Duration
	DefaultFlow string
}

// Result is the outcome of one Execute call.
type Result struct {
	Outcome    Outcome
	Await      *AwaitRequest // set when Outcome is Paused
	Terminated bool          // a terminate action ran
	Fault      error         // set when Outcome is Faulted
	Steps      int           // actions evaluated, skipped conditions included
	Faults     int           // handler failures recorded in the scope
}

const (
	// DefaultMaxSteps caps actions per Execute call, bounding goto
	// cycles.
	DefaultMaxSteps = 10000
	// DefaultMaxCallDepth caps call nesting.
	DefaultMaxCallDepth = 16
)

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	maxSteps  int
	maxDepth  int
	condCache int
}

// WithMaxSteps caps the number of actions one Execute call may
// evaluate before the run faults.
func WithMaxSteps(n int) ExecutorOption {
	return func(c *executorConfig) { c.maxSteps = n }
}

// WithMaxCallDepth caps call-action nesting.
func WithMaxCallDepth(n int) ExecutorOption {
	return func(c *executorConfig) { c.maxDepth = n }
}

// WithCondCacheSize bounds the compiled-condition cache.
func WithCondCacheSize(n int) ExecutorOption {
	return func(c *executorConfig) { c.condCache = n }
}

// Executor runs documents against scopes. One Executor may be shared
// across goroutines; each Execute call is independent and touches only
// the scope it was given.
type Executor struct {
	registry *Registry
	conds    *condCache
	maxSteps int
	maxDepth int
}

// NewExecutor creates an executor dispatching through registry. A nil
// registry gets a fresh one with only the core handlers.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	cfg := &executorConfig{
		maxSteps:  DefaultMaxSteps,
		maxDepth:  DefaultMaxCallDepth,
		condCache: defaultCondCacheSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Executor{
		registry: registry,
		conds:    newCondCache(cfg.condCache),
		maxSteps: cfg.maxSteps,
		maxDepth: cfg.maxDepth,
	}
}

// Registry returns the handler registry the executor dispatches
// through.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs doc starting at startFlow (the document entry when
// empty) until the run completes, pauses at an await, or faults.
func (e *Executor) Execute(ctx context.Context, doc *document.Document, startFlow string, sc *Scope) *Result {
	res := &Result{}
	if doc == nil {
		return e.fatalResult(res, fmt.Errorf("flow: nil document"))
	}
	if sc == nil {
		return e.fatalResult(res, fmt.Errorf("flow: nil scope"))
	}
	name := startFlow
	if name == "" {
		name = doc.EntryFlow()
	}
	if !e.runFlow(ctx, doc, name, sc, 0, res) {
		res.Outcome = Completed
	}
	return res
}

// runFlow walks one flow. It returns true when the whole run is over
// (pause, end, terminate, fatal fault) and false when the flow ran
// out of actions and the caller should continue after its call site.
func (e *Executor) runFlow(ctx context.Context, doc *document.Document, name string, sc *Scope, depth int, res *Result) bool {
	if depth > e.maxDepth {
		return e.fatal(res, fmt.Errorf("flow: call depth exceeds %d at flow %q", e.maxDepth, name))
	}

restart:
	fl, ok := doc.Flows[name]
	if !ok {
		// Unreachable for documents that passed Validate.
		return e.fatal(res, fmt.Errorf("flow: document %q has no flow %q", doc.Name, name))
	}

	for idx := 0; idx < len(fl.Actions); idx++ {
		if err := ctx.Err(); err != nil {
			return e.fatal(res, fmt.Errorf("flow: run canceled in %q: %w", name, err))
		}
		res.Steps++
		if res.Steps > e.maxSteps {
			return e.fatal(res, fmt.Errorf("flow: step limit %d exceeded in document %q", e.maxSteps, doc.Name))
		}

		a := &fl.Actions[idx]

		if a.When != "" {
			pass, err := e.conds.eval(a.When, sc.Env())
			if err != nil {
				if e.degrade(sc, res, a, err) {
					return true
				}
				continue
			}
			if !pass {
				continue
			}
		}

		switch a.Kind {
		case document.KindGoto:
			name = document.ArgString(a.Args, document.ArgFlow)
			goto restart

		case document.KindCall:
			target := document.ArgString(a.Args, document.ArgFlow)
			if e.runFlow(ctx, doc, target, sc, depth+1, res) {
				return true
			}

		case document.KindEnd:
			res.Outcome = Completed
			return true

		case document.KindTerminate:
			res.Outcome = Completed
			res.Terminated = true
			return true

		case document.KindAwait:
			var timeout time.Duration
			if ms, ok := document.ArgNumber(a.Args, document.ArgTimeoutMS); ok {
				timeout = time.Duration(ms) * time.Millisecond
			}
			res.Outcome = Paused
			res.Await = &AwaitRequest{
				Point:       document.ArgString(a.Args, document.ArgPoint),
				Timeout:     timeout,
				DefaultFlow: document.ArgString(a.Args, document.ArgFlow),
			}
			return true

		default:
			h, ok := e.registry.Lookup(a.Kind)
			if !ok {
				if e.degrade(sc, res, a, fmt.Errorf("no handler for kind %q", a.Kind)) {
					return true
				}
				continue
			}
			if err := h.Execute(ctx, sc, a); err != nil {
				if e.degrade(sc, res, a, err) {
					return true
				}
			}
		}
	}

	return false
}

// degrade records a handler failure in the scope and reports whether
// the run must stop.
func (e *Executor) degrade(sc *Scope, res *Result, a *document.Action, err error) bool {
	res.Faults++
	sc.Set(KeyErrorHandled, true)
	sc.Set(KeyErrorLast, err.Error())
	sc.Set(KeyErrorAction, a.Kind)
	if a.Fatal {
		res.Outcome = Faulted
		res.Fault = fmt.Errorf("flow: fatal action %q: %w", a.Kind, err)
		return true
	}
	log.Debugf("action %q degraded: %v", a.Kind, err)
	return false
}

func (e *Executor) fatal(res *Result, err error) bool {
	res.Outcome = Faulted
	res.Fault = err
	return true
}

func (e *Executor) fatalResult(res *Result, err error) *Result {
	e.fatal(res, err)
	return res
}

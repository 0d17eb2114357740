package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/document"
)

func mustParse(t *testing.T, src string) *document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return doc
}

func TestExecuteLinearFlow(t *testing.T) {
	doc := mustParse(t, `
name: linear
flows:
  main:
    - do: set
      args: { key: feeling.fear, value: 0.4 }
    - do: incr
      args: { key: feeling.fear, by: 0.1 }
    - do: incr
      args: { key: ticks }
`)
	e := NewExecutor(nil)
	sc := NewScope()

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed, got %v (fault=%v)", res.Outcome, res.Fault)
	}
	if n, _ := sc.Number("feeling.fear"); n != 0.5 {
		t.Errorf("Expected feeling.fear 0.5, got %v", n)
	}
	if n, _ := sc.Number("ticks"); n != 1 {
		t.Errorf("Expected ticks 1, got %v", n)
	}
	if res.Steps != 3 {
		t.Errorf("Expected 3 steps, got %d", res.Steps)
	}
}

func TestExecuteConditionGates(t *testing.T) {
	doc := mustParse(t, `
name: gated
flows:
  main:
    - do: set
      args: { key: taken, value: 1 }
      when: "feeling.fear > 0.5"
    - do: set
      args: { key: skipped, value: 1 }
      when: "feeling.fear > 0.9"
`)
	e := NewExecutor(nil)
	sc := NewScope()
	sc.Set("feeling.fear", 0.8)

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed, got %v (fault=%v)", res.Outcome, res.Fault)
	}
	if _, ok := sc.Get("taken"); !ok {
		t.Error("Expected passing condition to run its action")
	}
	if _, ok := sc.Get("skipped"); ok {
		t.Error("Expected failing condition to skip its action")
	}
}

func TestExecuteGoto(t *testing.T) {
	doc := mustParse(t, `
name: jumper
flows:
  main:
    - do: set
      args: { key: a, value: 1 }
    - do: goto
      args: { flow: other }
    - do: set
      args: { key: unreachable, value: 1 }
  other:
    - do: set
      args: { key: b, value: 2 }
`)
	e := NewExecutor(nil)
	sc := NewScope()

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed, got %v (fault=%v)", res.Outcome, res.Fault)
	}
	if _, ok := sc.Get("a"); !ok {
		t.Error("Expected action before goto to run")
	}
	if _, ok := sc.Get("b"); !ok {
		t.Error("Expected target flow to run")
	}
	if _, ok := sc.Get("unreachable"); ok {
		t.Error("goto must not return to the jumping flow")
	}
}

func TestExecuteCallReturns(t *testing.T) {
	doc := mustParse(t, `
name: caller
flows:
  main:
    - do: incr
      args: { key: order.first }
    - do: call
      args: { flow: sub }
    - do: incr
      args: { key: order.third }
  sub:
    - do: incr
      args: { key: order.second }
`)
	e := NewExecutor(nil)
	sc := NewScope()

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed, got %v (fault=%v)", res.Outcome, res.Fault)
	}
	for _, key := range []string{"order.first", "order.second", "order.third"} {
		if n, _ := sc.Number(key); n != 1 {
			t.Errorf("Expected %s to run once, got %v", key, n)
		}
	}
}

func TestExecuteEndStopsWholeRun(t *testing.T) {
	doc := mustParse(t, `
name: ender
flows:
  main:
    - do: call
      args: { flow: sub }
    - do: set
      args: { key: after, value: 1 }
  sub:
    - do: end
`)
	e := NewExecutor(nil)
	sc := NewScope()

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed, got %v", res.Outcome)
	}
	if _, ok := sc.Get("after"); ok {
		t.Error("end inside a called flow must stop the whole run")
	}
}

func TestExecuteTerminate(t *testing.T) {
	doc := mustParse(t, `
name: quitter
flows:
  main:
    - do: terminate
`)
	e := NewExecutor(nil)
	res := e.Execute(context.Background(), doc, "", NewScope())
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed, got %v", res.Outcome)
	}
	if !res.Terminated {
		t.Error("Expected Terminated flag")
	}
}

func TestExecuteAwaitPauses(t *testing.T) {
	doc := mustParse(t, `
name: waiter
flows:
  main:
    - do: set
      args: { key: before, value: 1 }
    - do: await
      args: { point: confront, timeout_ms: 2000, flow: fallback }
    - do: set
      args: { key: after, value: 1 }
  fallback:
    - do: set
      args: { key: fell_back, value: 1 }
`)
	e := NewExecutor(nil)
	sc := NewScope()

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Paused {
		t.Fatalf("Expected Paused, got %v (fault=%v)", res.Outcome, res.Fault)
	}
	if res.Await == nil {
		t.Fatal("Expected AwaitRequest")
	}
	if res.Await.Point != "confront" {
		t.Errorf("Expected point confront, got %q", res.Await.Point)
	}
	if res.Await.Timeout != 2*time.Second {
		t.Errorf("Expected 2s timeout, got %v", res.Await.Timeout)
	}
	if res.Await.DefaultFlow != "fallback" {
		t.Errorf("Expected default flow fallback, got %q", res.Await.DefaultFlow)
	}
	if _, ok := sc.Get("after"); ok {
		t.Error("Actions after await must not run in the pausing call")
	}

	// Timeout resume is a fresh run on the default flow.
	res = e.Execute(context.Background(), doc, res.Await.DefaultFlow, sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected resumed run Completed, got %v", res.Outcome)
	}
	if _, ok := sc.Get("fell_back"); !ok {
		t.Error("Expected default flow to run on resume")
	}
}

func TestExecuteHandlerFaultDegrades(t *testing.T) {
	doc := mustParse(t, `
name: degrading
flows:
  main:
    - do: nonexistent
    - do: set
      args: { key: continued, value: 1 }
`)
	e := NewExecutor(nil)
	sc := NewScope()

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed after degraded fault, got %v (fault=%v)", res.Outcome, res.Fault)
	}
	if res.Faults != 1 {
		t.Errorf("Expected 1 recorded fault, got %d", res.Faults)
	}
	if !sc.Bool(KeyErrorHandled) {
		t.Error("Expected error.handled set")
	}
	if got := sc.Text(KeyErrorAction); got != "nonexistent" {
		t.Errorf("Expected error.action nonexistent, got %q", got)
	}
	if sc.Text(KeyErrorLast) == "" {
		t.Error("Expected error.last to carry the failure message")
	}
	if _, ok := sc.Get("continued"); !ok {
		t.Error("Expected run to continue past the degraded action")
	}
}

func TestExecuteFatalFaultAborts(t *testing.T) {
	doc := mustParse(t, `
name: fatal
flows:
  main:
    - do: set
      fatal: true
    - do: set
      args: { key: after, value: 1 }
`)
	e := NewExecutor(nil)
	sc := NewScope()

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Faulted {
		t.Fatalf("Expected Faulted, got %v", res.Outcome)
	}
	if res.Fault == nil || !strings.Contains(res.Fault.Error(), "fatal action") {
		t.Errorf("Expected fatal action fault, got %v", res.Fault)
	}
	if _, ok := sc.Get("after"); ok {
		t.Error("Actions after a fatal fault must not run")
	}
	if !sc.Bool(KeyErrorHandled) {
		t.Error("Fatal faults still record error.* keys")
	}
}

func TestExecuteConditionErrorDegrades(t *testing.T) {
	doc := mustParse(t, `
name: badcond
flows:
  main:
    - do: set
      args: { key: guarded, value: 1 }
      when: ">>>"
    - do: set
      args: { key: continued, value: 1 }
`)
	e := NewExecutor(nil)
	sc := NewScope()

	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed, got %v (fault=%v)", res.Outcome, res.Fault)
	}
	if res.Faults != 1 {
		t.Errorf("Expected 1 fault from the broken condition, got %d", res.Faults)
	}
	if _, ok := sc.Get("guarded"); ok {
		t.Error("Action behind a broken condition must not run")
	}
	if _, ok := sc.Get("continued"); !ok {
		t.Error("Run must continue past a broken condition")
	}
}

func TestExecuteCallDepthLimit(t *testing.T) {
	doc := mustParse(t, `
name: deep
flows:
  main:
    - do: call
      args: { flow: main }
`)
	e := NewExecutor(nil, WithMaxCallDepth(4))
	res := e.Execute(context.Background(), doc, "", NewScope())
	if res.Outcome != Faulted {
		t.Fatalf("Expected Faulted, got %v", res.Outcome)
	}
	if res.Fault == nil || !strings.Contains(res.Fault.Error(), "call depth") {
		t.Errorf("Expected call depth fault, got %v", res.Fault)
	}
}

func TestExecuteGotoCycleHitsStepLimit(t *testing.T) {
	doc := mustParse(t, `
name: cyclic
flows:
  main:
    - do: goto
      args: { flow: back }
  back:
    - do: goto
      args: { flow: main }
`)
	e := NewExecutor(nil, WithMaxSteps(50))
	res := e.Execute(context.Background(), doc, "", NewScope())
	if res.Outcome != Faulted {
		t.Fatalf("Expected Faulted, got %v", res.Outcome)
	}
	if res.Fault == nil || !strings.Contains(res.Fault.Error(), "step limit") {
		t.Errorf("Expected step limit fault, got %v", res.Fault)
	}
}

func TestExecuteCanceledContext(t *testing.T) {
	doc := mustParse(t, `
name: canceled
flows:
  main:
    - do: set
      args: { key: ran, value: 1 }
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExecutor(nil)
	res := e.Execute(ctx, doc, "", NewScope())
	if res.Outcome != Faulted {
		t.Fatalf("Expected Faulted, got %v", res.Outcome)
	}
	if !errors.Is(res.Fault, context.Canceled) {
		t.Errorf("Expected context.Canceled in fault chain, got %v", res.Fault)
	}
}

func TestExecuteCustomHandler(t *testing.T) {
	doc := mustParse(t, `
name: custom
flows:
  main:
    - do: speak
      args: { line: "halt, who goes there" }
`)
	reg := NewRegistry()
	err := reg.RegisterFunc("speak", func(ctx context.Context, sc *Scope, a *document.Action) error {
		sc.Set("spoken", document.ArgString(a.Args, "line"))
		return nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc failed: %v", err)
	}

	e := NewExecutor(reg)
	sc := NewScope()
	res := e.Execute(context.Background(), doc, "", sc)
	if res.Outcome != Completed {
		t.Fatalf("Expected Completed, got %v (fault=%v)", res.Outcome, res.Fault)
	}
	if got := sc.Text("spoken"); got != "halt, who goes there" {
		t.Errorf("Expected custom handler to run, got %q", got)
	}
}

func TestRegisterRejectsControlKinds(t *testing.T) {
	reg := NewRegistry()
	for _, kind := range []string{"goto", "call", "end", "terminate", "await"} {
		err := reg.RegisterFunc(kind, func(ctx context.Context, sc *Scope, a *document.Action) error {
			return nil
		})
		if err == nil {
			t.Errorf("Expected Register(%q) to fail", kind)
		}
	}
}

func TestRegistryCoreKinds(t *testing.T) {
	reg := NewRegistry()
	for _, kind := range []string{"set", "incr", "clear", "log"} {
		if _, ok := reg.Lookup(kind); !ok {
			t.Errorf("Expected core handler %q", kind)
		}
	}

	kinds := reg.Kinds()
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] >= kinds[i] {
			t.Fatalf("Expected sorted kinds, got %v", kinds)
		}
	}
}

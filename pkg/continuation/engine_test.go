package continuation

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
)

func testExtension(t *testing.T) *bytecode.Model {
	t.Helper()
	b := bytecode.NewBuilder().Extension("npc/guard", "confront")
	out := b.Output("goal.flee")
	b.EmitConst(1)
	b.EmitSlot(bytecode.OpStoreOutput, out)
	b.Emit(bytecode.OpHalt)
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return m
}

func TestAttachBeforeDeadline(t *testing.T) {
	e := NewEngine()
	ext := testExtension(t)

	id, ch := e.Open("confront", 200*time.Millisecond, "fallback")
	if got := e.Attach(id, ext); got != Attached {
		t.Fatalf("Expected Attached, got %v", got)
	}

	select {
	case res := <-ch:
		if res.State != StateExtended {
			t.Errorf("Expected StateExtended, got %v", res.State)
		}
		if res.Extension != ext {
			t.Error("Expected the attached extension in the resolution")
		}
		if res.Default != "fallback" {
			t.Errorf("Expected default fallback, got %q", res.Default)
		}
		if res.ID != id {
			t.Errorf("Expected id %s, got %s", id, res.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Resolution never delivered")
	}

	rec, ok := e.Lookup(id)
	if !ok || rec.State != StateExtended {
		t.Errorf("Expected recorded StateExtended, got %v (ok=%v)", rec.State, ok)
	}
}

func TestSecondAttachAlreadyResolved(t *testing.T) {
	e := NewEngine()
	ext := testExtension(t)

	id, ch := e.Open("confront", 200*time.Millisecond, "fallback")
	if got := e.Attach(id, ext); got != Attached {
		t.Fatalf("First attach: expected Attached, got %v", got)
	}
	if got := e.Attach(id, ext); got != AlreadyResolved {
		t.Fatalf("Second attach: expected AlreadyResolved, got %v", got)
	}

	<-ch
	time.Sleep(20 * time.Millisecond)
	if len(ch) != 0 {
		t.Error("Expected exactly one resolution on the channel")
	}
}

func TestAttachUnknownNotFound(t *testing.T) {
	e := NewEngine()
	if got := e.Attach("no-such-id", testExtension(t)); got != NotFound {
		t.Fatalf("Expected NotFound, got %v", got)
	}
}

func TestDeadlineMovesToTimedOut(t *testing.T) {
	e := NewEngine()
	start := time.Now()

	id, ch := e.Open("confront", 50*time.Millisecond, "fallback")

	select {
	case res := <-ch:
		elapsed := time.Since(start)
		if elapsed < 50*time.Millisecond {
			t.Errorf("Resolution fired early: %v", elapsed)
		}
		if elapsed > 500*time.Millisecond {
			t.Errorf("Resolution too late: %v", elapsed)
		}
		if res.State != StateTimedOut {
			t.Errorf("Expected StateTimedOut, got %v", res.State)
		}
		if res.Extension != nil {
			t.Error("Timeout resolution must carry no extension")
		}
		if res.Default != "fallback" {
			t.Errorf("Expected default fallback, got %q", res.Default)
		}
	case <-time.After(time.Second):
		t.Fatal("Deadline never fired")
	}

	rec, _ := e.Lookup(id)
	if rec.State != StateTimedOut {
		t.Errorf("Expected recorded StateTimedOut, got %v", rec.State)
	}
}

func TestAttachAfterTimeoutAlreadyResolved(t *testing.T) {
	e := NewEngine()
	id, ch := e.Open("confront", 30*time.Millisecond, "fallback")

	<-ch
	if got := e.Attach(id, testExtension(t)); got != AlreadyResolved {
		t.Fatalf("Expected AlreadyResolved after timeout, got %v", got)
	}
}

func TestWaitBoundedByDeadline(t *testing.T) {
	e := NewEngine()
	start := time.Now()

	id, _ := e.Open("confront", 60*time.Millisecond, "fallback")

	res, err := e.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	elapsed := time.Since(start)
	if res.State != StateTimedOut {
		t.Errorf("Expected StateTimedOut, got %v", res.State)
	}
	if elapsed < 60*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("Wait not bounded by deadline: %v", elapsed)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	e := NewEngine()
	id, _ := e.Open("confront", 10*time.Second, "fallback")
	defer e.Cancel(id)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := e.Wait(ctx, id)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestWaitUnknownPending(t *testing.T) {
	e := NewEngine()
	_, err := e.Wait(context.Background(), "no-such-id")
	if !errors.Is(err, ErrUnknownPending) {
		t.Fatalf("Expected ErrUnknownPending, got %v", err)
	}
}

func TestResolveLifecycle(t *testing.T) {
	e := NewEngine()
	id, ch := e.Open("confront", 200*time.Millisecond, "fallback")

	if e.Resolve(id) {
		t.Error("Resolve on an Open pending must report false")
	}

	e.Attach(id, testExtension(t))
	<-ch

	if !e.Resolve(id) {
		t.Error("Expected Resolve to succeed after resolution")
	}
	if e.Resolve(id) {
		t.Error("Second Resolve must report false")
	}

	rec, _ := e.Lookup(id)
	if rec.State != StateResolved {
		t.Errorf("Expected StateResolved, got %v", rec.State)
	}

	// Attach after full resolution is still a distinguishable reject.
	if got := e.Attach(id, testExtension(t)); got != AlreadyResolved {
		t.Errorf("Expected AlreadyResolved after Resolve, got %v", got)
	}
}

func TestCancelRemovesPending(t *testing.T) {
	e := NewEngine()
	id, ch := e.Open("confront", 30*time.Millisecond, "fallback")

	if !e.Cancel(id) {
		t.Fatal("Expected Cancel to find the pending")
	}
	if e.Cancel(id) {
		t.Error("Second Cancel must report false")
	}
	if _, ok := e.Lookup(id); ok {
		t.Error("Canceled pending must not be visible")
	}
	if got := e.Attach(id, testExtension(t)); got != NotFound {
		t.Errorf("Expected NotFound after Cancel, got %v", got)
	}

	// The stopped deadline must not deliver anything.
	select {
	case res := <-ch:
		t.Errorf("Unexpected resolution after Cancel: %v", res.State)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSweepKeepsLiveRecords(t *testing.T) {
	e := NewEngine()

	resolvedID, ch := e.Open("a", 100*time.Millisecond, "")
	e.Attach(resolvedID, testExtension(t))
	<-ch
	e.Resolve(resolvedID)

	openID, _ := e.Open("b", 10*time.Second, "")
	defer e.Cancel(openID)

	time.Sleep(5 * time.Millisecond)
	if removed := e.Sweep(0); removed != 1 {
		t.Fatalf("Expected 1 swept record, got %d", removed)
	}
	if _, ok := e.Lookup(resolvedID); ok {
		t.Error("Resolved record should be swept")
	}
	if _, ok := e.Lookup(openID); !ok {
		t.Error("Open record must survive sweeps")
	}
}

func TestStartSweeper(t *testing.T) {
	e := NewEngine()
	id, ch := e.Open("a", 50*time.Millisecond, "")
	<-ch
	e.Resolve(id)

	stop := e.StartSweeper(10*time.Millisecond, 0)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Sweeper never removed the resolved record")
}

func TestPendingSnapshotSorted(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 5; i++ {
		id, _ := e.Open("p", 10*time.Second, "")
		defer e.Cancel(id)
	}

	recs := e.Pending()
	if len(recs) != 5 {
		t.Fatalf("Expected 5 records, got %d", len(recs))
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	if !sort.StringsAreSorted(ids) {
		t.Errorf("Expected sorted ids, got %v", ids)
	}
	if recs[0].PointHash != bytecode.NameHash("p") {
		t.Errorf("Expected point hash %08x, got %08x", bytecode.NameHash("p"), recs[0].PointHash)
	}
}

func TestExactlyOneResolutionUnderRace(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-heavy")
	}
	e := NewEngine()
	ext := testExtension(t)

	for i := 0; i < 20; i++ {
		id, ch := e.Open("race", 15*time.Millisecond, "fallback")

		time.Sleep(15 * time.Millisecond)
		result := e.Attach(id, ext)

		var res Resolution
		select {
		case res = <-ch:
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: no resolution", i)
		}

		switch result {
		case Attached:
			if res.State != StateExtended {
				t.Fatalf("iteration %d: Attached but resolution %v", i, res.State)
			}
		case AlreadyResolved:
			if res.State != StateTimedOut {
				t.Fatalf("iteration %d: AlreadyResolved but resolution %v", i, res.State)
			}
		default:
			t.Fatalf("iteration %d: unexpected attach result %v", i, result)
		}

		// Never a second delivery.
		select {
		case extra := <-ch:
			t.Fatalf("iteration %d: second resolution %v", i, extra.State)
		case <-time.After(30 * time.Millisecond):
		}
	}
}

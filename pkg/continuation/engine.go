package continuation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
)

var log = commonlog.GetLogger("bannou.continuation")

// ErrUnknownPending is returned by Wait for an id the engine has never
// seen (or has already swept).
var ErrUnknownPending = fmt.Errorf("continuation: unknown pending id")

type pendingEntry struct {
	rec        Record
	timer      *time.Timer
	resolved   chan Resolution
	resolvedAt time.Time
}

// Engine tracks pending continuations for any number of owners.
//
// Each pending resolves exactly once: Attach wins while the pending is
// Open, the deadline wins otherwise. The resolution is delivered on
// the channel returned by Open, buffered so the engine never blocks on
// a slow owner. One consumer per pending — either the owner's select
// loop or Wait, never both.
type Engine struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{pending: make(map[string]*pendingEntry)}
}

// Open registers a pending continuation for point and arms its
// deadline. defaultTarget is handed back verbatim in the resolution
// when the deadline wins. Returns the pending id and the channel the
// resolution will arrive on.
func (e *Engine) Open(point string, timeout time.Duration, defaultTarget string) (string, <-chan Resolution) {
	id := uuid.NewString()
	now := time.Now()

	p := &pendingEntry{
		rec: Record{
			ID:        id,
			Point:     point,
			PointHash: bytecode.NameHash(point),
			Opened:    now,
			Deadline:  now.Add(timeout),
			Default:   defaultTarget,
			State:     StateOpen,
		},
		resolved: make(chan Resolution, 1),
	}
	p.timer = time.AfterFunc(timeout, func() { e.expire(id) })

	e.mu.Lock()
	e.pending[id] = p
	e.mu.Unlock()

	return id, p.resolved
}

// Attach delivers an extension to a pending continuation. Accepted
// only while the pending is Open; any later attempt reports
// AlreadyResolved and the extension is discarded.
func (e *Engine) Attach(id string, ext *bytecode.Model) AttachResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[id]
	if !ok {
		return NotFound
	}
	if p.rec.State != StateOpen {
		log.Debugf("late extension for %s discarded (state %s)", id, p.rec.State)
		return AlreadyResolved
	}

	p.rec.State = StateExtended
	p.timer.Stop()
	p.resolved <- Resolution{
		ID:        id,
		State:     StateExtended,
		Extension: ext,
		Default:   p.rec.Default,
	}
	return Attached
}

// expire is the deadline arm. It moves an Open pending to TimedOut and
// delivers the default-path resolution; a pending that already left
// Open is untouched.
func (e *Engine) expire(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[id]
	if !ok || p.rec.State != StateOpen {
		return
	}

	p.rec.State = StateTimedOut
	p.resolved <- Resolution{
		ID:      id,
		State:   StateTimedOut,
		Default: p.rec.Default,
	}
	log.Debugf("pending %s timed out at %s", id, p.rec.Point)
}

// Wait blocks until the pending resolves or ctx ends. The engine's
// deadline guarantees a resolution, so a Wait with a live context is
// bounded by the pending's timeout.
func (e *Engine) Wait(ctx context.Context, id string) (Resolution, error) {
	e.mu.Lock()
	p, ok := e.pending[id]
	e.mu.Unlock()
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownPending, id)
	}

	select {
	case res := <-p.resolved:
		return res, nil
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

// Resolve marks a delivered resolution as consumed. The record moves
// to Resolved and lingers so a late Attach still gets AlreadyResolved
// instead of NotFound, until a sweep removes it.
func (e *Engine) Resolve(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[id]
	if !ok {
		return false
	}
	if p.rec.State != StateExtended && p.rec.State != StateTimedOut {
		return false
	}
	p.rec.State = StateResolved
	p.resolvedAt = time.Now()
	return true
}

// Cancel withdraws a pending entirely, stopping its deadline. Used
// when the owner stops while a point is still open; no resolution is
// delivered. Reports whether the id existed.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(e.pending, id)
	return true
}

// Lookup returns the current record for id.
func (e *Engine) Lookup(id string) (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[id]
	if !ok {
		return Record{}, false
	}
	return p.rec, true
}

// Pending returns a snapshot of every tracked record, sorted by id.
func (e *Engine) Pending() []Record {
	e.mu.Lock()
	recs := make([]Record, 0, len(e.pending))
	for _, p := range e.pending {
		recs = append(recs, p.rec)
	}
	e.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs
}

// Len returns the number of tracked records, resolved ones included.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Sweep removes Resolved records older than ttl. Open, Extended, and
// TimedOut records are never swept.
func (e *Engine) Sweep(ttl time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, p := range e.pending {
		if p.rec.State == StateResolved && p.resolvedAt.Before(cutoff) {
			delete(e.pending, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (e *Engine) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				e.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

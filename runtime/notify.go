package runtime

import (
	"sync"
	"time"
)

// StateUpdate is the per-tick notification emitted after a cognition
// pass: the actor's externally interesting state, not its execution
// internals.
type StateUpdate struct {
	ActorID   string
	Template  string
	Tick      uint64
	Lifecycle State

	// Feelings and Goals are copied out of the document scope's "feelings"
	// and "goal" subtrees. Outputs carries a bytecode actor's named output
	// slots.
	Feelings map[string]float64
	Goals    map[string]interface{}
	Outputs  map[string]float64

	// PlanStep names the plan step the actor is currently on, empty when
	// no plan is active.
	PlanStep string

	// ContinuationID and AwaitingPoint are set while the actor is
	// suspended at a continuation point, so collaborators know where an
	// extension may attach.
	ContinuationID string
	AwaitingPoint  string

	At time.Time
}

// notifier fans StateUpdates out to subscribers. Delivery is best-effort:
// a subscriber that falls behind loses updates rather than stalling actor
// loops.
type notifier struct {
	mu   sync.Mutex
	subs map[int]chan StateUpdate
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan StateUpdate)}
}

// Subscribe registers a new subscriber with the given channel buffer.
// The returned cancel func closes the channel and forgets the subscriber.
func (n *notifier) Subscribe(buffer int) (<-chan StateUpdate, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan StateUpdate, buffer)

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (n *notifier) Publish(u StateUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		select {
		case sub <- u:
		default:
			metricNotifyDrops.Inc()
		}
	}
}

func (n *notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub)
	}
}

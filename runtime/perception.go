package runtime

import (
	"sync"
	"time"
)

// Perception is one inbound event for an actor: something it noticed or a
// message sent to it. Perceptions are immutable once enqueued and consumed
// exactly once by the owning actor's next tick.
type Perception struct {
	Type    string
	Source  string
	Urgency string
	Payload map[string]interface{}
	At      time.Time
}

// perceptionQueue is the bounded per-actor inbox. When full, the oldest
// entry is dropped to admit the newest; drops are counted, never reported
// to the producer. FIFO order is preserved for everything kept.
type perceptionQueue struct {
	mu      sync.Mutex
	buf     []Perception
	head    int
	n       int
	dropped uint64
}

func newPerceptionQueue(capacity int) *perceptionQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &perceptionQueue{buf: make([]Perception, capacity)}
}

// Push enqueues a perception, dropping the oldest entry if the queue is
// full. It reports whether a drop occurred.
func (q *perceptionQueue) Push(p Perception) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if q.n == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		q.dropped++
		dropped = true
	}
	q.buf[(q.head+q.n)%len(q.buf)] = p
	q.n++
	return dropped
}

// Drain removes and returns everything queued, oldest first.
func (q *perceptionQueue) Drain() []Perception {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		return nil
	}
	out := make([]Perception, q.n)
	for i := 0; i < q.n; i++ {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
		q.buf[(q.head+i)%len(q.buf)] = Perception{}
	}
	q.head = 0
	q.n = 0
	return out
}

func (q *perceptionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Dropped returns the total number of perceptions dropped since creation.
func (q *perceptionQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

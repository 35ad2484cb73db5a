// Package queue implements C6: the main FIFO of pending events plus the
// deferred side pool (spec §4.2). The queue is single-consumer (only the
// Interpreter ever calls Pop) and multi-producer (any number of senders,
// plus do-activities and the Timer Service, call Push concurrently), which
// is why Push still goes through an atomic.Pointer swap the way the
// teacher's original hsm.go queue did rather than a plain mutex.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/kind"
)

// Closed is returned by Push once the queue has been closed (spec §4.2:
// "Failure modes: QueueClosed when the machine is stopping").
type Closed struct{}

func (Closed) Error() string { return "queue closed" }

// Queue is the main FIFO with a completion-priority partition and a
// per-state deferred side pool.
type Queue struct {
	events    atomic.Pointer[[]embedded.Event]
	partition int

	closed atomic.Bool

	deferredMu sync.Mutex
	// deferred maps the qualified name of the state that deferred an event
	// to the events it is holding, in original enqueue order. release
	// reinserts them at the head of the main FIFO in that order (spec P5).
	deferred map[string][]embedded.Event
}

func New(maybeSize ...int) *Queue {
	var events []embedded.Event
	if len(maybeSize) > 0 {
		events = make([]embedded.Event, 0, maybeSize[0])
	}
	q := &Queue{deferred: make(map[string][]embedded.Event)}
	q.events.Store(&events)
	return q
}

func (q *Queue) Len() int {
	return len(*q.events.Load())
}

// Pop returns the next event, or nil if the queue is empty.
func (q *Queue) Pop() embedded.Event {
	events := *q.events.Load()
	if len(events) == 0 {
		return nil
	}
	event := events[0]
	events = events[1:]
	if q.partition > 0 {
		q.partition--
	}
	q.events.Store(&events)
	return event
}

// Push appends a plain event to the tail of the main FIFO, or inserts a
// completion event ahead of any already-queued non-completion event but
// behind any previously-queued completion event (spec §4.2:
// "enqueue_completion ... after any already-queued completion events").
// Returns Closed once the queue has been closed.
func (q *Queue) Push(event embedded.Event) error {
	if q.closed.Load() {
		return Closed{}
	}
	events := *q.events.Load()
	if kind.IsKind(event.Kind(), kind.CompletionEvent) {
		merged := make([]embedded.Event, 0, len(events)+1)
		merged = append(merged, events[:q.partition]...)
		merged = append(merged, event)
		merged = append(merged, events[q.partition:]...)
		events = merged
		q.partition++
	} else {
		events = append(events, event)
	}
	q.events.Store(&events)
	return nil
}

// Defer moves event into the side pool owned by stateId, to be released
// when that state is exited (spec §4.2 defer, §5 Deferral).
func (q *Queue) Defer(stateId string, event embedded.Event) {
	q.deferredMu.Lock()
	defer q.deferredMu.Unlock()
	q.deferred[stateId] = append(q.deferred[stateId], event)
}

// Release moves every event deferred by stateId back into the main FIFO,
// in original enqueue order, right behind any queued completion events and
// ahead of every other event enqueued since (spec P5). Safe to call for a
// state with no deferred events (no-op).
func (q *Queue) Release(stateId string) {
	q.deferredMu.Lock()
	held := q.deferred[stateId]
	delete(q.deferred, stateId)
	q.deferredMu.Unlock()
	if len(held) == 0 {
		return
	}
	events := *q.events.Load()
	merged := make([]embedded.Event, 0, len(events)+len(held))
	merged = append(merged, events[:q.partition]...)
	merged = append(merged, held...)
	merged = append(merged, events[q.partition:]...)
	// Released events are ordinary again: they take their place ahead of
	// the rest of the FIFO but behind the completion partition, since they
	// are not themselves completion events.
	q.events.Store(&merged)
}

// ReleaseMany releases deferred events for a set of exited states.
// Callers pass states innermost-first; the released batch is flattened in
// that order (innermost state's events first, each state's own events in
// original enqueue order) and placed as one contiguous block ahead of the
// main FIFO -- this spec's resolution of the deferred-release-ordering
// Open Question (see DESIGN.md).
func (q *Queue) ReleaseMany(stateIds []string) {
	q.deferredMu.Lock()
	var batch []embedded.Event
	for _, id := range stateIds {
		batch = append(batch, q.deferred[id]...)
		delete(q.deferred, id)
	}
	q.deferredMu.Unlock()
	if len(batch) == 0 {
		return
	}
	events := *q.events.Load()
	merged := make([]embedded.Event, 0, len(events)+len(batch))
	merged = append(merged, batch...)
	merged = append(merged, events...)
	q.partition += len(batch)
	q.events.Store(&merged)
}

// Close marks the queue closed: further Push calls fail with Closed, and
// any events currently deferred are dropped (the owning states are gone).
func (q *Queue) Close() {
	q.closed.Store(true)
	q.deferredMu.Lock()
	q.deferred = make(map[string][]embedded.Event)
	q.deferredMu.Unlock()
}

// IsClosed reports whether the queue has been closed.
func (q *Queue) IsClosed() bool {
	return q.closed.Load()
}

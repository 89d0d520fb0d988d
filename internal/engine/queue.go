package engine

import (
	"sync"

	"github.com/roach88/pickboard/internal/ir"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeTransition is a local or remote state transition.
	EventTypeTransition EventType = iota + 1
	// EventTypeFetched carries the result of an on-demand fragment fetch.
	EventTypeFetched
	// EventTypeTask is a continuation posted by a timer or by the engine.
	EventTypeTask
)

func (t EventType) String() string {
	switch t {
	case EventTypeTransition:
		return "transition"
	case EventTypeFetched:
		return "fetched"
	case EventTypeTask:
		return "task"
	}
	return "unknown"
}

// Event is one unit of work for the loop.
type Event struct {
	Type       EventType
	Origin     ir.Origin
	Transition *ir.TransitionEvent
	Fetched    *fetchResult
	Task       func()
	Name       string // task label for logs

	// Confirmed marks a local transition answered by the collaborator.
	Confirmed bool

	// Seq is stamped on enqueue; trace records carry the seq of the event
	// being processed.
	Seq int64
}

// eventQueue is a thread-safe, unbounded FIFO.
//
// Timer callbacks and fetch goroutines enqueue from other goroutines while
// the loop dequeues. The signal channel lets the loop wait with a context.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.appendLocked(e)
}

// EnqueueAndClose appends e as the last event the queue will accept.
// Nothing enqueued concurrently can land behind it.
func (q *eventQueue) EnqueueAndClose(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.appendLocked(e) {
		return false
	}
	q.closeLocked()
	return true
}

func (q *eventQueue) appendLocked(e Event) bool {
	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	// release the task closure and payload pointers for GC
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available. It is
// closed when the queue closes.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close was called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further events and wakes waiters.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

func (q *eventQueue) closeLocked() {
	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

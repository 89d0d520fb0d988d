package clock

import (
	"sync"
	"time"
)

// Fake is a virtual clock. Time only moves when Advance is called, and
// timers that become due fire synchronously on the caller's goroutine in
// due-time order (creation order for ties).
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the internal lock held, so they may schedule further timers.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	nextID  uint64
	timers  map[uint64]*fakeTimer
}

type fakeTimer struct {
	clock *Fake
	id    uint64
	due   time.Time
	f     func()
}

// NewFake creates a Fake clock reading t.
func NewFake(t time.Time) *Fake {
	return &Fake{
		current: t,
		timers:  make(map[uint64]*fakeTimer),
	}
}

// Now returns the virtual time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f to run once the virtual time reaches now+d.
// A non-positive d fires on the next Advance, even Advance(0).
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	t := &fakeTimer{clock: c, id: c.nextID, due: c.current.Add(d), f: f}
	c.timers[t.id] = t
	return t
}

// Advance moves the clock forward by d, firing every timer that becomes
// due along the way. Timers scheduled by callbacks fire too if they fall
// inside the window.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.earliestLocked(target)
		if next == nil {
			c.current = target
			c.mu.Unlock()
			return
		}
		delete(c.timers, next.id)
		if next.due.After(c.current) {
			c.current = next.due
		}
		c.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *Fake) earliestLocked(limit time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range c.timers {
		if t.due.After(limit) {
			continue
		}
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.id < best.id) {
			best = t
		}
	}
	return best
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

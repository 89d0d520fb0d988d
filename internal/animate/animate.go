// Package animate runs the fade-out, relocate, fade-in sequence that moves
// an item to its new position without blocking the event loop.
//
// Each item has its own state machine: Idle → Leaving → Arriving → Idle.
// Phase changes are driven by timers on the injected clock; the timer
// callbacks are posted back to the owner's goroutine, so an Animator must
// only be used from that goroutine.
package animate

import (
	"log/slog"
	"time"

	"github.com/roach88/pickboard/internal/clock"
	"github.com/roach88/pickboard/internal/view"
)

// DefaultFade is the duration of each of the fade-out and fade-in phases.
const DefaultFade = 250 * time.Millisecond

// Phase is an item's position in the transition state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLeaving
	PhaseArriving
)

func (p Phase) String() string {
	switch p {
	case PhaseLeaving:
		return "leaving"
	case PhaseArriving:
		return "arriving"
	}
	return "idle"
}

// Target is the visual surface the animator drives.
type Target interface {
	// SetMarkers replaces the transition markers of the item's node.
	SetMarkers(itemID string, m view.Markers)

	// Relocate moves the item's node to the destination computed against
	// the list's current contents and returns the indices involved.
	Relocate(itemID string) (from, to int, ok bool)
}

type animation struct {
	itemID string
	phase  Phase
	since  time.Time
	timer  clock.Timer
	handle *Handle
}

// Animator owns the per-item transition state machines.
type Animator struct {
	clock     clock.Clock
	post      clock.Poster
	target    Target
	fade      time.Duration
	onSettled func(itemID string)

	active  map[string]*animation
	started int
	settled int
}

// Option configures an Animator.
type Option func(*Animator)

// WithFade sets the fade-out/fade-in duration.
func WithFade(d time.Duration) Option {
	return func(a *Animator) {
		if d > 0 {
			a.fade = d
		}
	}
}

// WithSettled registers a callback run after an item's fade-in completes.
func WithSettled(f func(itemID string)) Option {
	return func(a *Animator) {
		a.onSettled = f
	}
}

// New creates an Animator. post may be nil, in which case timer callbacks
// run inline on the clock's goroutine.
func New(c clock.Clock, post clock.Poster, target Target, opts ...Option) *Animator {
	if post == nil {
		post = clock.Inline
	}
	a := &Animator{
		clock:  c,
		post:   post,
		target: target,
		fade:   DefaultFade,
		active: make(map[string]*animation),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnimateMove moves itemID from index from to index to. A from below zero
// means the node was freshly inserted and only fades in.
//
// Equal indices are a no-op and return an already completed handle. A
// request for an item that is still animating cancels the stale request's
// timers first; the new sequence starts from the node's current position.
func (a *Animator) AnimateMove(itemID string, from, to int) *Handle {
	cancelled := a.cancel(itemID)

	if from == to {
		if cancelled {
			a.target.SetMarkers(itemID, view.Markers{})
		}
		return completedHandle()
	}

	anim := &animation{itemID: itemID, handle: newHandle()}
	a.active[itemID] = anim
	a.started++

	if from < 0 {
		a.arrive(anim)
		return anim.handle
	}

	a.enter(anim, PhaseLeaving)
	a.target.SetMarkers(itemID, view.Markers{Leaving: true})
	anim.timer = a.clock.AfterFunc(a.fade, func() {
		a.post(func() { a.fadedOut(anim) })
	})

	slog.Debug("animation started", "item_id", itemID, "from", from, "to", to)
	return anim.handle
}

// Phase returns the current phase of itemID and when it was entered.
func (a *Animator) Phase(itemID string) (Phase, time.Time) {
	anim, ok := a.active[itemID]
	if !ok {
		return PhaseIdle, time.Time{}
	}
	return anim.phase, anim.since
}

// Active returns the number of items mid-animation.
func (a *Animator) Active() int {
	return len(a.active)
}

// Started counts animations that were not no-ops.
func (a *Animator) Started() int {
	return a.started
}

// Settled counts animations that ran to completion.
func (a *Animator) Settled() int {
	return a.settled
}

// Cancel stops any animation of itemID and clears its markers.
func (a *Animator) Cancel(itemID string) {
	if a.cancel(itemID) {
		a.target.SetMarkers(itemID, view.Markers{})
	}
}

// CancelAll stops every animation without touching the view. Used on
// unmount, when the view is being torn down anyway.
func (a *Animator) CancelAll() {
	for id := range a.active {
		a.cancel(id)
	}
}

func (a *Animator) cancel(itemID string) bool {
	anim, ok := a.active[itemID]
	if !ok {
		return false
	}
	if anim.timer != nil {
		anim.timer.Stop()
	}
	delete(a.active, itemID)
	anim.handle.finish(true)
	slog.Debug("animation cancelled", "item_id", itemID, "phase", anim.phase)
	return true
}

func (a *Animator) enter(anim *animation, p Phase) {
	anim.phase = p
	anim.since = a.clock.Now()
}

func (a *Animator) current(anim *animation) bool {
	return a.active[anim.itemID] == anim
}

func (a *Animator) fadedOut(anim *animation) {
	if !a.current(anim) {
		return
	}
	if from, to, ok := a.target.Relocate(anim.itemID); ok {
		slog.Debug("node relocated", "item_id", anim.itemID, "from", from, "to", to)
	}
	a.arrive(anim)
}

func (a *Animator) arrive(anim *animation) {
	a.enter(anim, PhaseArriving)
	a.target.SetMarkers(anim.itemID, view.Markers{Arriving: true})
	anim.timer = a.clock.AfterFunc(a.fade, func() {
		a.post(func() { a.fadedIn(anim) })
	})
}

func (a *Animator) fadedIn(anim *animation) {
	if !a.current(anim) {
		return
	}
	a.target.SetMarkers(anim.itemID, view.Markers{})
	delete(a.active, anim.itemID)
	a.settled++
	anim.handle.finish(false)

	if a.onSettled != nil {
		a.onSettled(anim.itemID)
	}
}

// Package clock abstracts wall time and timers so the engine's animation
// and suppression timers can run against a virtual clock in tests.
package clock

import "time"

// Clock provides the current time and deferred callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine (Real) or synchronously from
	// Advance (Fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

// Real implements Clock using the system time.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Poster hands f to the goroutine that owns the caller's state. Timer
// callbacks use it to get back onto the engine's event loop.
type Poster func(f func())

// Inline runs f immediately on the calling goroutine.
func Inline(f func()) {
	f()
}

// Package suppress tracks items with a local action in flight so that the
// push channel's echo of that action is not applied a second time.
package suppress

import (
	"log/slog"
	"time"

	"github.com/roach88/pickboard/internal/clock"
)

// DefaultWindow is how long a local mark absorbs a matching remote echo.
// It depends on observed broadcast latency and is configurable.
const DefaultWindow = 2 * time.Second

type record struct {
	marked time.Time
	timer  clock.Timer
}

// Suppressor is the short-lived map of local actions in flight.
//
// Expiry is a deferred deletion scheduled at mark time rather than an
// active sweep. The deletion is posted through the Poster so the map is
// only ever touched by the owner's goroutine; the Suppressor itself is not
// safe for concurrent use.
type Suppressor struct {
	clock   clock.Clock
	post    clock.Poster
	window  time.Duration
	records map[string]*record
}

// New creates a Suppressor. A non-positive window selects DefaultWindow.
func New(c clock.Clock, post clock.Poster, window time.Duration) *Suppressor {
	if window <= 0 {
		window = DefaultWindow
	}
	if post == nil {
		post = clock.Inline
	}
	return &Suppressor{
		clock:   c,
		post:    post,
		window:  window,
		records: make(map[string]*record),
	}
}

// Window returns the configured suppression window.
func (s *Suppressor) Window() time.Duration {
	return s.window
}

// MarkInProgress records a local action for id. Marking again restarts
// the window.
func (s *Suppressor) MarkInProgress(id string) {
	if old, ok := s.records[id]; ok {
		old.timer.Stop()
	}

	rec := &record{marked: s.clock.Now()}
	rec.timer = s.clock.AfterFunc(s.window, func() {
		s.post(func() { s.expire(id, rec) })
	})
	s.records[id] = rec

	slog.Debug("local action marked", "item_id", id, "window", s.window)
}

// IsInProgress reports whether a live record exists for id and logs the
// time elapsed since it was marked.
func (s *Suppressor) IsInProgress(id string) bool {
	rec, ok := s.records[id]
	if !ok {
		return false
	}

	elapsed := s.clock.Now().Sub(rec.marked)
	if elapsed >= s.window {
		// The expiry task has not reached the loop yet.
		s.expire(id, rec)
		slog.Debug("local action record already expired", "item_id", id, "elapsed", elapsed)
		return false
	}

	slog.Debug("local action in progress", "item_id", id, "elapsed", elapsed)
	return true
}

// Consume removes the record for id after it absorbed an echo.
// It returns false when no record existed.
func (s *Suppressor) Consume(id string) bool {
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	rec.timer.Stop()
	delete(s.records, id)
	return true
}

// Len returns the number of live records.
func (s *Suppressor) Len() int {
	return len(s.records)
}

// Clear drops every record and stops their expiry timers.
func (s *Suppressor) Clear() {
	for id, rec := range s.records {
		rec.timer.Stop()
		delete(s.records, id)
	}
}

// expire deletes id only if rec is still the current record, so a stale
// expiry never removes a newer mark.
func (s *Suppressor) expire(id string, rec *record) {
	if cur, ok := s.records[id]; ok && cur == rec {
		delete(s.records, id)
		slog.Debug("local action record expired", "item_id", id)
	}
}

package engine

import "sync/atomic"

// SeqClock stamps ingress events with a strictly increasing sequence
// number. Log records and traces carry it so the order in which the engine
// saw events is explicit regardless of wall time.
//
// Thread-safety: safe for concurrent use; HandleTransition stamps from the
// caller's goroutine.
type SeqClock struct {
	seq atomic.Int64
}

// NewSeqClock creates a clock whose first Next() returns 1.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// Next returns the next sequence number.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}

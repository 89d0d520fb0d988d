package testutil

import (
	"time"

	"github.com/roach88/pickboard/internal/clock"
)

// Epoch is the fixed start time of every fake clock in tests, so traces
// and phase timestamps are reproducible.
var Epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// NewFakeClock returns a virtual clock reading Epoch.
func NewFakeClock() *clock.Fake {
	return clock.NewFake(Epoch)
}

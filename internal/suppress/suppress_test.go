package suppress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/pickboard/internal/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSuppressor_MarkAndExpire(t *testing.T) {
	c := clock.NewFake(epoch)
	s := New(c, nil, time.Second)

	s.MarkInProgress("x")
	assert.True(t, s.IsInProgress("x"))
	assert.False(t, s.IsInProgress("y"))

	c.Advance(999 * time.Millisecond)
	assert.True(t, s.IsInProgress("x"))

	c.Advance(time.Millisecond)
	assert.False(t, s.IsInProgress("x"))
	assert.Equal(t, 0, s.Len())
}

func TestSuppressor_RemarkRestartsWindow(t *testing.T) {
	c := clock.NewFake(epoch)
	s := New(c, nil, time.Second)

	s.MarkInProgress("x")
	c.Advance(800 * time.Millisecond)
	s.MarkInProgress("x")
	c.Advance(800 * time.Millisecond)

	assert.True(t, s.IsInProgress("x"), "second mark must not be cut short by the first expiry")
	assert.Equal(t, 1, c.Pending())
}

func TestSuppressor_Consume(t *testing.T) {
	c := clock.NewFake(epoch)
	s := New(c, nil, time.Second)

	s.MarkInProgress("x")
	assert.True(t, s.Consume("x"))
	assert.False(t, s.Consume("x"))
	assert.False(t, s.IsInProgress("x"))
	assert.Equal(t, 0, c.Pending(), "consume stops the expiry timer")
}

func TestSuppressor_ExpiryIsPosted(t *testing.T) {
	c := clock.NewFake(epoch)
	var posted []func()
	s := New(c, func(f func()) { posted = append(posted, f) }, time.Second)

	s.MarkInProgress("x")
	c.Advance(time.Second)
	assert.Len(t, posted, 1)
	assert.Equal(t, 1, s.Len(), "record stays until the posted deletion runs")

	posted[0]()
	assert.Equal(t, 0, s.Len())
}

func TestSuppressor_LazyExpiryBeforePostedTaskRuns(t *testing.T) {
	c := clock.NewFake(epoch)
	s := New(c, func(func()) {}, time.Second)

	s.MarkInProgress("x")
	c.Advance(2 * time.Second)
	assert.False(t, s.IsInProgress("x"))
	assert.Equal(t, 0, s.Len())
}

func TestSuppressor_Clear(t *testing.T) {
	c := clock.NewFake(epoch)
	s := New(c, nil, 0)
	assert.Equal(t, DefaultWindow, s.Window())

	s.MarkInProgress("a")
	s.MarkInProgress("b")
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, c.Pending())
}

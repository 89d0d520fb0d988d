package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickboard/internal/ir"
)

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(Fragment("l", "a", "Apple", ir.StatePending))

	f, err := src.Fetch(context.Background(), "l", "a")
	require.NoError(t, err)
	assert.Equal(t, "Apple", f.DisplayKey)

	src.Put(Fragment("l", "a", "Apple", ir.StatePicked))
	got, ok := src.Get("l", "a")
	require.True(t, ok)
	assert.True(t, got.Flags.Picked)
	_, ok = src.Get("l", "zzz")
	assert.False(t, ok)

	f, err = src.Fetch(context.Background(), "l", "a")
	require.NoError(t, err)
	assert.True(t, f.Flags.Picked)

	_, err = src.Fetch(context.Background(), "l", "missing")
	assert.Error(t, err)

	src.SetFailing(true)
	_, err = src.Fetch(context.Background(), "l", "a")
	assert.True(t, errors.Is(err, ErrFetchFailed))

	assert.Equal(t, []string{"l/a", "l/a", "l/missing", "l/a"}, src.Calls())
}

func TestRecordingReloader(t *testing.T) {
	r := &RecordingReloader{}
	r.Reload(errors.New("boom"))
	require.Len(t, r.Reasons(), 1)
	assert.EqualError(t, r.Reasons()[0], "boom")
}

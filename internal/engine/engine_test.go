package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickboard/internal/animate"
	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/clock"
	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/order"
	"github.com/roach88/pickboard/internal/suppress"
	"github.com/roach88/pickboard/internal/testutil"
	"github.com/roach88/pickboard/internal/view"
)

const (
	testFade   = 100 * time.Millisecond
	testWindow = time.Second
	list       = "order-1"
)

type fixture struct {
	eng     *Engine
	clock   *clock.Fake
	src     *testutil.MemorySource
	reloads *testutil.RecordingReloader
	trace   []TraceEvent
}

func frag(id, key string, tag ir.StateTag) ir.Fragment {
	return testutil.Fragment(list, id, key, tag)
}

func newFixture(t *testing.T, frags ...ir.Fragment) *fixture {
	t.Helper()
	f := &fixture{
		clock:   testutil.NewFakeClock(),
		src:     testutil.NewMemorySource(frags...),
		reloads: &testutil.RecordingReloader{},
	}
	f.eng = New(f.src,
		WithClock(f.clock),
		WithFade(testFade),
		WithSuppressionWindow(testWindow),
		WithReloader(f.reloads),
		WithSynchronousFetch(),
		WithSessionID("test-session"),
		WithObserver(func(ev TraceEvent) { f.trace = append(f.trace, ev) }),
	)
	require.True(t, f.eng.Mount(frags))
	f.drain(t)
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.eng.Drain(ctx))
}

func (f *fixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	f.clock.Advance(d)
	f.drain(t)
}

// settle steps the clock until no animation is in flight.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	for i := 0; i < 20 && f.eng.Animator().Active() > 0; i++ {
		f.advance(t, testFade)
	}
	require.Equal(t, 0, f.eng.Animator().Active(), "animations did not settle")
}

func (f *fixture) local(t *testing.T, id string, tag ir.StateTag) {
	t.Helper()
	require.True(t, f.eng.ApplyLocalTransition(ir.TransitionEvent{ItemID: id, ListID: list, State: tag}))
}

func (f *fixture) remote(t *testing.T, id string, tag ir.StateTag) {
	t.Helper()
	require.True(t, f.eng.ApplyRemoteTransition(ir.TransitionEvent{ItemID: id, ListID: list, State: tag}))
}

func (f *fixture) keys() []string {
	return f.eng.Document().DisplayKeys(list)
}

func (f *fixture) kinds(kind TraceKind) int {
	n := 0
	for _, ev := range f.trace {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func assertOrdered(t *testing.T, doc *view.Document, containerID string) {
	t.Helper()
	c, ok := doc.Lookup(containerID)
	require.True(t, ok)
	nodes := c.Nodes()
	for i := 1; i < len(nodes); i++ {
		assert.LessOrEqual(t, order.Compare(nodeKey(nodes[i-1]), nodeKey(nodes[i])), 0,
			"%s must not sort after %s", nodes[i-1].Fragment.DisplayKey, nodes[i].Fragment.DisplayKey)
	}
}

func TestEngine_New(t *testing.T) {
	eng := New(nil, WithSessionID("s"))

	assert.NotNil(t, eng.queue)
	assert.NotNil(t, eng.animator)
	assert.NotNil(t, eng.suppressor)
	assert.Equal(t, "s", eng.SessionID())
	assert.Equal(t, suppress.DefaultWindow, eng.Suppressor().Window())
}

func TestEngine_GeneratedSessionID(t *testing.T) {
	a, b := New(nil), New(nil)
	assert.Len(t, a.SessionID(), 36)
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestMount_PriorityOrder(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePicked),
		frag("b", "Banana", ir.StatePending),
		frag("c", "Cherry", ir.StateInProcurement),
	)

	assert.Equal(t, []string{"Banana", "Cherry", "Apple"}, f.keys())
	assert.Equal(t, map[ir.StateTag]int{
		ir.StatePending:       1,
		ir.StateInProcurement: 1,
		ir.StatePicked:        1,
	}, f.eng.Counts())
}

func TestMount_KeyTieBreak(t *testing.T) {
	f := newFixture(t,
		frag("2", "Melon", ir.StatePending),
		frag("1", "Mango", ir.StatePending),
	)
	assert.Equal(t, []string{"Mango", "Melon"}, f.keys())
}

func TestMount_CollapsesDuplicates(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePending),
		frag("a", "Apple", ir.StatePicked),
		frag("b", "Banana", ir.StatePending),
	)

	assert.Equal(t, []string{"Banana", "Apple"}, f.keys())
	assert.Len(t, f.eng.Document().Occurrences("a"), 1)
}

func TestLocal_AnimatesThroughPhases(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
		frag("c", "Cherry", ir.StatePending),
	)

	f.local(t, "a", ir.StatePicked)
	f.drain(t)

	// fade-out: still at the old position, marked leaving
	assert.Equal(t, []string{"Apple", "Banana", "Cherry"}, f.keys())
	phase, _ := f.eng.Animator().Phase("a")
	assert.Equal(t, animate.PhaseLeaving, phase)
	assert.True(t, f.eng.Document().Occurrences("a")[0].Node.Markers.Leaving)

	f.advance(t, testFade)
	assert.Equal(t, []string{"Banana", "Cherry", "Apple"}, f.keys())
	phase, _ = f.eng.Animator().Phase("a")
	assert.Equal(t, animate.PhaseArriving, phase)
	assert.True(t, f.eng.Document().Occurrences("a")[0].Node.Markers.Arriving)

	// counter refreshes once the move settles
	assert.Equal(t, 3, f.eng.Counts()[ir.StatePending])

	f.advance(t, testFade)
	assert.True(t, f.eng.Document().Occurrences("a")[0].Node.Markers.Zero())
	assert.Equal(t, 2, f.eng.Counts()[ir.StatePending])
	assert.Equal(t, 1, f.eng.Counts()[ir.StatePicked])
	assert.Equal(t, 1, f.kinds(TraceSettled))
}

func TestSuppression_EchoProducesOneAnimation(t *testing.T) {
	f := newFixture(t,
		frag("x", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
		frag("c", "Cherry", ir.StatePending),
	)

	f.local(t, "x", ir.StatePicked)
	f.remote(t, "x", ir.StatePicked)
	f.drain(t)
	f.settle(t)

	stats := f.eng.Stats()
	assert.Equal(t, 1, stats.Animations)
	assert.Equal(t, 1, stats.Suppressed)
	assert.Equal(t, 0, stats.Fetches, "echo must not trigger a fetch")
	assert.Equal(t, 0, f.eng.Suppressor().Len(), "record is removed after use")

	occ := f.eng.Document().Occurrences("x")
	require.Len(t, occ, 1)
	assert.Equal(t, ir.StatePicked, classify.Classify(occ[0].Node.Fragment.Flags))
	assert.Equal(t, []string{"Banana", "Cherry", "Apple"}, f.keys())
}

func TestSuppression_ExpiredWindowAppliesRemote(t *testing.T) {
	f := newFixture(t,
		frag("x", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)

	f.local(t, "x", ir.StatePicked)
	f.drain(t)
	f.settle(t)
	f.advance(t, testWindow)
	require.Equal(t, 0, f.eng.Suppressor().Len())

	f.src.Put(frag("x", "Apple", ir.StatePending))
	f.remote(t, "x", ir.StatePending)
	f.drain(t)
	f.settle(t)

	assert.Equal(t, 0, f.eng.Stats().Suppressed)
	assert.Equal(t, 1, f.eng.Stats().Fetches)
	assert.Equal(t, []string{"Apple", "Banana"}, f.keys())
}

func TestIdempotence_SameTransitionTwice(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)
	picked := frag("a", "Apple", ir.StatePicked)

	ev := ir.TransitionEvent{ItemID: "a", ListID: list, Fragment: &picked}
	f.eng.ApplyRemoteTransition(ev)
	f.drain(t)
	f.settle(t)

	visible := f.eng.Stats().VisibleChanges
	animations := f.eng.Stats().Animations

	f.eng.ApplyRemoteTransition(ev)
	f.drain(t)

	assert.Len(t, f.eng.Document().Occurrences("a"), 1)
	assert.Equal(t, visible, f.eng.Stats().VisibleChanges, "same target index must not change the frame")
	assert.Equal(t, animations, f.eng.Stats().Animations)
	assert.Equal(t, []string{"Banana", "Apple"}, f.keys())
}

func TestRemote_AbsentItemInsertedFresh(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePending),
		frag("c", "Cherry", ir.StatePicked),
	)
	f.src.Put(frag("b", "Banana", ir.StatePending))

	f.remote(t, "b", ir.StatePending)
	f.drain(t)

	assert.Equal(t, []string{"Apple", "Banana", "Cherry"}, f.keys())
	phase, _ := f.eng.Animator().Phase("b")
	assert.Equal(t, animate.PhaseArriving, phase, "fresh insert only fades in")

	f.settle(t)
	assert.Empty(t, f.reloads.Reasons())
	assert.Equal(t, 0, f.eng.Stats().IntegrityViolations)
	assert.Equal(t, []string{list + "/b"}, f.src.Calls())
}

func TestRemoveAllOccurrences_Duplicate(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)

	// an upstream defect rendered "a" a second time
	c, ok := f.eng.Document().Lookup(list)
	require.True(t, ok)
	c.InsertAt(c.Len(), view.NewNode(frag("a", "Apple", ir.StatePending)))
	require.Len(t, f.eng.Document().Occurrences("a"), 2)

	assert.Equal(t, 2, f.eng.RemoveAllOccurrences("a"))
	assert.Empty(t, f.eng.Document().Occurrences("a"))
	assert.Equal(t, 1, f.kinds(TraceDuplicates))

	f.src.Put(frag("a", "Apple", ir.StatePending))
	f.remote(t, "a", ir.StatePending)
	f.drain(t)
	f.settle(t)

	assert.Len(t, f.eng.Document().Occurrences("a"), 1)
	assert.NoError(t, f.eng.AssertUniqueness("a"))
	assert.Equal(t, []string{"Apple", "Banana"}, f.keys())
}

func TestTransition_RepairsDuplicateFromUpstream(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)
	other := f.eng.Document().Ensure("stale-list")
	other.InsertAt(0, view.NewNode(frag("a", "Apple", ir.StatePending)))

	f.local(t, "a", ir.StatePicked)
	f.drain(t)
	f.settle(t)

	assert.Len(t, f.eng.Document().Occurrences("a"), 1)
	assert.Equal(t, 1, f.eng.Stats().DuplicatesRemoved)
	assert.Equal(t, []string{"Banana", "Apple"}, f.keys())
}

func TestRemoveAllOccurrences_AbsentIsNoOp(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))
	assert.Equal(t, 0, f.eng.RemoveAllOccurrences("nope"))
	assert.Equal(t, []string{"Apple"}, f.keys())
}

func TestAssertUniqueness_NamesContainers(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))
	f.eng.Document().Ensure("list-2").InsertAt(0, view.NewNode(frag("a", "Apple", ir.StatePending)))

	err := f.eng.AssertUniqueness("a")
	require.Error(t, err)
	assert.True(t, IsIntegrityError(err))

	var ie *IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, ErrCodeDuplicateOccurrence, ie.Code)
	assert.Equal(t, 2, ie.Count)
	assert.Equal(t, []string{list, "list-2"}, ie.Containers)
	assert.Contains(t, err.Error(), "containers=order-1,list-2")

	err = f.eng.AssertUniqueness("ghost")
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, ErrCodeMissingOccurrence, ie.Code)
}

func TestRemote_FetchFailureFallsBackToReload(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))
	f.src.SetFailing(true)

	f.remote(t, "a", ir.StatePicked)
	f.drain(t)

	reasons := f.reloads.Reasons()
	require.Len(t, reasons, 1)
	var re *ReloadError
	require.True(t, errors.As(reasons[0], &re))
	assert.Equal(t, "a", re.ItemID)
	assert.True(t, errors.Is(reasons[0], testutil.ErrFetchFailed))

	// the loop keeps going
	f.src.SetFailing(false)
	f.src.Put(frag("a", "Apple", ir.StatePicked))
	f.remote(t, "a", ir.StatePicked)
	f.drain(t)
	assert.Equal(t, 1, f.eng.Stats().Applied)
}

func TestRemote_NoSourceReloads(t *testing.T) {
	reloads := &testutil.RecordingReloader{}
	eng := New(nil, WithClock(testutil.NewFakeClock()), WithReloader(reloads))
	eng.ApplyRemoteTransition(ir.TransitionEvent{ItemID: "a", ListID: list, State: ir.StatePicked})

	require.NoError(t, eng.Drain(context.Background()))
	assert.Len(t, reloads.Reasons(), 1)
}

func TestRemote_StaleFetchDiscarded(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)
	// server still says pending when the fetch runs
	f.remote(t, "a", ir.StatePending)
	f.local(t, "a", ir.StatePicked)
	f.drain(t)
	f.settle(t)

	assert.Equal(t, 1, f.eng.Stats().StaleFetches)
	assert.Equal(t, []string{"Banana", "Apple"}, f.keys(), "newer local state wins")
}

func TestRemote_FragmentInPayloadSkipsFetch(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))
	substituted := frag("a", "Apple", ir.StateSubstituted)
	substituted.SubstituteName = "Pear"

	f.eng.ApplyRemoteTransition(ir.TransitionEvent{ItemID: "a", ListID: list, Fragment: &substituted})
	f.drain(t)

	assert.Empty(t, f.src.Calls())
	assert.Equal(t, "Pear", f.eng.Document().Occurrences("a")[0].Node.Fragment.SubstituteName)
}

func TestLocal_OptimisticKeepsFragmentContent(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))

	f.eng.ApplyLocalTransition(ir.TransitionEvent{ItemID: "a", State: ir.StateSubstituted, SubstituteName: "Pear"})
	f.drain(t)

	node := f.eng.Document().Occurrences("a")[0].Node
	assert.Equal(t, "Apple", node.Fragment.DisplayKey)
	assert.Equal(t, "Apple", node.Fragment.Body)
	assert.Equal(t, "Pear", node.Fragment.SubstituteName)
	assert.True(t, node.Fragment.Flags.Substituted)

	f.eng.ApplyLocalTransition(ir.TransitionEvent{ItemID: "a", State: ir.StatePicked})
	f.drain(t)
	assert.Empty(t, f.eng.Document().Occurrences("a")[0].Node.Fragment.SubstituteName)
}

func TestLocal_SupersedesInFlightAnimation(t *testing.T) {
	f := newFixture(t,
		frag("a", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
		frag("c", "Cherry", ir.StateInProcurement),
	)

	f.local(t, "a", ir.StatePicked)
	f.drain(t)
	f.advance(t, testFade/2)

	// destination is recomputed from the stale visual position
	f.local(t, "a", ir.StateInProcurement)
	f.drain(t)
	f.settle(t)

	assert.Equal(t, []string{"Banana", "Apple", "Cherry"}, f.keys())
	stats := f.eng.Stats()
	assert.Equal(t, 2, stats.Animations)
	assert.Equal(t, 1, stats.AnimationsSettled)
	assert.Len(t, f.eng.Document().Occurrences("a"), 1)
}

func TestTransitions_KeepPriorityOrder(t *testing.T) {
	f := newFixture(t,
		frag("1", "fig", ir.StatePending),
		frag("2", " Date", ir.StatePicked),
		frag("3", "apple", ir.StateSubstituted),
		frag("4", "Elder", ir.StateInProcurement),
		frag("5", "banana", ir.StatePending),
		frag("6", "Cherry", ir.StatePicked),
	)
	assertOrdered(t, f.eng.Document(), list)

	steps := []struct {
		id  string
		tag ir.StateTag
	}{
		{"1", ir.StatePicked},
		{"2", ir.StatePending},
		{"3", ir.StateInProcurement},
		{"6", ir.StateSubstituted},
		{"5", ir.StateUnknown},
		{"4", ir.StatePending},
	}
	for _, s := range steps {
		// the source holds the new truth before the push arrives
		f.src.Put(frag(s.id, keyOf(f, s.id), s.tag))
		f.remote(t, s.id, s.tag)
		f.drain(t)
		f.settle(t)
		assertOrdered(t, f.eng.Document(), list)
	}

	assertOrdered(t, f.eng.Document(), list)
	assert.Equal(t, "banana", f.keys()[len(f.keys())-1], "unknown sorts last")
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		assert.Len(t, f.eng.Document().Occurrences(id), 1)
	}
}

func keyOf(f *fixture, id string) string {
	return f.eng.Document().Occurrences(id)[0].Node.Fragment.DisplayKey
}

func TestEngine_RecoversFromPanickingTask(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))

	f.eng.Post("boom", func() { panic("boom") })
	f.local(t, "a", ir.StatePicked)
	f.drain(t)

	assert.Equal(t, 1, f.eng.Stats().Applied)
}

func TestEngine_InvalidTransitionIsLogged(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))
	f.eng.ApplyRemoteTransition(ir.TransitionEvent{ListID: list, State: ir.StatePicked})
	f.drain(t)

	assert.Equal(t, 1, f.kinds(TraceInvalidDrop))
	assert.Equal(t, []string{"Apple"}, f.keys())
}

func TestEngine_RunAndUnmount(t *testing.T) {
	src := testutil.NewMemorySource(frag("b", "Banana", ir.StatePending))
	var frames []Frame
	eng := New(src,
		WithClock(testutil.NewFakeClock()),
		WithPaintHook(func(fr Frame) { frames = append(frames, fr) }),
	)

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	require.True(t, eng.Mount([]ir.Fragment{frag("a", "Apple", ir.StatePending)}))
	require.True(t, eng.ApplyRemoteTransition(ir.TransitionEvent{ItemID: "b", ListID: list}))
	require.True(t, eng.Unmount())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after unmount")
	}

	assert.False(t, eng.ApplyLocalTransition(ir.TransitionEvent{ItemID: "a"}), "unmounted view rejects events")
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0].Text, `a "Apple" [pending]`)
	assert.Equal(t, 1, frames[0].Counts[ir.StatePending])
}

func TestUnmount_LaterTransitionsNeverReachResetView(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))

	require.True(t, f.eng.Unmount())
	assert.False(t, f.eng.ApplyRemoteTransition(ir.TransitionEvent{ItemID: "a", ListID: list, State: ir.StatePicked}))
	assert.False(t, f.eng.Unmount(), "second unmount is rejected")
	f.drain(t)

	assert.Equal(t, 1, f.kinds(TraceUnmounted))
	assert.Equal(t, 0, f.kinds(TraceApplied))
	assert.Equal(t, 0, f.eng.QueueLen())
}

func TestEngine_RunStopsOnContextCancel(t *testing.T) {
	eng := New(nil, WithClock(testutil.NewFakeClock()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEngine_AsyncFetch(t *testing.T) {
	src := testutil.NewMemorySource(frag("a", "Apple", ir.StatePicked))
	eng := New(src, WithClock(testutil.NewFakeClock()))

	eng.ApplyRemoteTransition(ir.TransitionEvent{ItemID: "a", ListID: list, State: ir.StatePicked})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Drain(ctx))

	assert.Equal(t, []string{"a"}, eng.Document().ItemIDs(list))
}

func TestConfirm_EchoBeforeConfirmationAnimatesOnce(t *testing.T) {
	f := newFixture(t,
		frag("x", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)
	picked := frag("x", "Apple", ir.StatePicked)

	// optimistic apply, then the broadcast, then the HTTP answer
	f.local(t, "x", ir.StatePicked)
	f.drain(t)
	require.True(t, f.eng.ApplyRemoteTransition(ir.TransitionEvent{ItemID: "x", ListID: list, Fragment: &picked}))
	f.drain(t)
	require.True(t, f.eng.ConfirmLocalTransition(ir.TransitionResult{ItemID: "x", ListID: list, Fragment: &picked}.Event()))
	f.drain(t)
	f.settle(t)

	stats := f.eng.Stats()
	assert.Equal(t, 1, stats.Animations)
	assert.Equal(t, 1, stats.Suppressed)
	assert.Equal(t, 1, f.kinds(TraceConfirmed))
	assert.Equal(t, 0, f.eng.Suppressor().Len(), "no record outlives the echo")
	assert.Equal(t, []string{"Banana", "Apple"}, f.keys())

	// another viewer resets the item while the window would still be open
	pending := frag("x", "Apple", ir.StatePending)
	require.True(t, f.eng.ApplyRemoteTransition(ir.TransitionEvent{ItemID: "x", ListID: list, Fragment: &pending}))
	f.drain(t)
	f.settle(t)

	assert.Equal(t, 1, f.eng.Stats().Suppressed)
	assert.Equal(t, []string{"Apple", "Banana"}, f.keys())
}

func TestConfirm_BeforeEchoLeavesRecordForEcho(t *testing.T) {
	f := newFixture(t,
		frag("x", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)

	f.local(t, "x", ir.StatePicked)
	f.eng.ConfirmLocalTransition(ir.TransitionEvent{ItemID: "x", ListID: list, Flags: ir.FlagsFor(ir.StatePicked), HasFlags: true})
	f.drain(t)
	assert.Equal(t, 1, f.eng.Suppressor().Len())

	f.remote(t, "x", ir.StatePicked)
	f.drain(t)
	f.settle(t)

	assert.Equal(t, 1, f.eng.Stats().Animations)
	assert.Equal(t, 1, f.eng.Stats().Suppressed)
	assert.Equal(t, 0, f.eng.Stats().Fetches)
}

func TestConfirm_DisagreeingResultIsPlaced(t *testing.T) {
	f := newFixture(t,
		frag("x", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)

	f.local(t, "x", ir.StatePicked)
	f.drain(t)
	f.settle(t)
	require.Equal(t, []string{"Banana", "Apple"}, f.keys())

	procured := frag("x", "Apple", ir.StateInProcurement)
	f.eng.ConfirmLocalTransition(ir.TransitionEvent{ItemID: "x", ListID: list, Fragment: &procured})
	f.drain(t)
	f.settle(t)

	assert.Equal(t, 0, f.kinds(TraceConfirmed))
	assert.Equal(t, []string{"Banana", "Apple"}, f.keys())
	occ := f.eng.Document().Occurrences("x")
	require.Len(t, occ, 1)
	assert.Equal(t, ir.StateInProcurement, classify.Classify(occ[0].Node.Fragment.Flags))
	assert.Equal(t, 1, f.eng.Suppressor().Len(), "the original record still waits for its echo")
}

func TestRefresh_RestoresRejectedAction(t *testing.T) {
	f := newFixture(t,
		frag("x", "Apple", ir.StatePending),
		frag("b", "Banana", ir.StatePending),
	)

	f.local(t, "x", ir.StatePicked)
	f.drain(t)
	require.True(t, f.eng.Refresh(list, "x"))
	f.drain(t)
	f.settle(t)

	assert.Equal(t, 0, f.eng.Suppressor().Len())
	assert.Equal(t, 1, f.eng.Stats().Fetches)
	assert.Equal(t, []string{"Apple", "Banana"}, f.keys())
	assert.Len(t, f.eng.Document().Occurrences("x"), 1)
}

func TestLocal_ItemNotOnBoardIsRejected(t *testing.T) {
	f := newFixture(t, frag("a", "Apple", ir.StatePending))

	f.local(t, "ghost", ir.StatePicked)
	f.drain(t)

	assert.Equal(t, 1, f.kinds(TraceInvalidDrop))
	assert.Equal(t, 0, f.eng.Suppressor().Len())
	assert.Equal(t, []string{"Apple"}, f.keys())
}

package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/pickboard/internal/animate"
	"github.com/roach88/pickboard/internal/clock"
	"github.com/roach88/pickboard/internal/engine"
	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/testutil"
	"github.com/roach88/pickboard/internal/view"
)

// maxSettleRounds bounds the settle step.
const maxSettleRounds = 100

// Harness is the scenario execution engine. It runs scenarios with a
// virtual clock, a fixed session id and synchronous fetches, so the same
// scenario always produces the same trace.
type Harness struct {
	scenario *Scenario
	engine   *engine.Engine
	clock    *clock.Fake
	source   *testutil.MemorySource
	reloads  *testutil.RecordingReloader
	result   *Result
	fade     time.Duration
}

// Run executes a scenario and returns the result. The error is non-nil
// only when the scenario could not be executed; failed expectations are
// reported in Result.Errors.
//
// Execution flow:
// 1. Mount the initial load
// 2. Execute each step, draining the engine after it
// 3. Capture the final board and check expectations
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewFakeClock(),
		source:   testutil.NewMemorySource(),
		reloads:  &testutil.RecordingReloader{},
		result:   NewResult(scenario.Name),
	}

	opts := []engine.EngineOption{
		engine.WithClock(h.clock),
		engine.WithReloader(h.reloads),
		engine.WithSynchronousFetch(),
		engine.WithSessionID("scenario-" + scenario.Name),
		engine.WithObserver(h.result.addEvent),
	}
	h.fade = animate.DefaultFade
	if d, ok := scenario.fade(); ok {
		h.fade = d
		opts = append(opts, engine.WithFade(d))
	}
	if d, ok := scenario.suppressionWindow(); ok {
		opts = append(opts, engine.WithSuppressionWindow(d))
	}
	h.engine = engine.New(h.source, opts...)

	ctx := context.Background()

	frags := make([]ir.Fragment, 0, len(scenario.Items))
	for _, it := range scenario.Items {
		f := h.fragment(it.List, it.ID, it.Key, it.State, it.Substitute)
		frags = append(frags, f)
		h.source.Put(f)
	}
	h.engine.Mount(frags)
	if err := h.engine.Drain(ctx); err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	for i, step := range scenario.Steps {
		h.result.addStep(step.describe())
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := h.engine.Drain(ctx); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	h.capture()
	checkExpectations(scenario.Expect, h.result)
	return h.result, nil
}

func (h *Harness) execute(st Step) error {
	switch {
	case st.Local != nil:
		return h.local(st.Local)
	case st.Remote != nil:
		return h.remote(st.Remote)
	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
	case st.Settle:
		return h.settle()
	case st.FailFetch != nil:
		h.source.SetFailing(*st.FailFetch)
	case st.Duplicate != nil:
		h.duplicate(st.Duplicate)
	}
	return nil
}

// local persists the action and applies its synchronous result.
func (h *Harness) local(st *LocalStep) error {
	list := h.listOf(st.ID)
	f, ok := h.source.Get(list, st.ID)
	if !ok {
		return fmt.Errorf("local action on unknown item %q", st.ID)
	}
	f = h.fragment(list, st.ID, f.DisplayKey, st.State, st.Substitute)
	h.source.Put(f)

	tag := ir.StateTag(st.State)
	h.engine.ApplyLocalTransition(ir.TransitionEvent{
		ItemID:         st.ID,
		ListID:         list,
		State:          tag,
		SubstituteName: st.Substitute,
	})
	return nil
}

// remote persists the change (unless stale) and delivers the push.
func (h *Harness) remote(st *RemoteStep) error {
	list := st.List
	if list == "" {
		list = h.listOf(st.ID)
	}

	key := st.Key
	if key == "" {
		cur, ok := h.source.Get(list, st.ID)
		if !ok {
			return fmt.Errorf("remote for unknown item %q needs a key", st.ID)
		}
		key = cur.DisplayKey
	}

	f := h.fragment(list, st.ID, key, st.State, st.Substitute)
	if !st.Stale {
		h.source.Put(f)
	}

	ev := ir.TransitionEvent{ItemID: st.ID, ListID: list, State: ir.StateTag(st.State)}
	if st.Inline {
		ev.Fragment = &f
	}
	h.engine.ApplyRemoteTransition(ev)
	return nil
}

func (h *Harness) settle() error {
	for i := 0; i < maxSettleRounds; i++ {
		if h.engine.Animator().Active() == 0 {
			return nil
		}
		h.clock.Advance(h.fade)
		if err := h.engine.Drain(context.Background()); err != nil {
			return err
		}
	}
	return fmt.Errorf("animations did not settle after %d rounds", maxSettleRounds)
}

// duplicate appends a copy of the item's first node to a list, on the
// loop goroutine like any other mutation.
func (h *Harness) duplicate(st *DuplicateStep) {
	h.engine.Post("inject duplicate", func() {
		doc := h.engine.Document()
		occ := doc.Occurrences(st.ID)
		if len(occ) == 0 {
			return
		}
		c := doc.Ensure(st.List)
		c.InsertAt(c.Len(), view.NewNode(occ[0].Node.Fragment))
	})
}

// listOf returns the list currently holding id, else the default list.
func (h *Harness) listOf(id string) string {
	for _, it := range h.scenario.Items {
		if it.ID == id && it.List != "" {
			return it.List
		}
	}
	return h.scenario.List
}

func (h *Harness) fragment(list, id, key, state, substitute string) ir.Fragment {
	if list == "" {
		list = h.scenario.List
	}
	f := testutil.Fragment(list, id, key, ir.StateTag(state))
	f.SubstituteName = substitute
	return f
}

// capture records the final board. The loop is idle, so reading the
// document from this goroutine is safe.
func (h *Harness) capture() {
	doc := h.engine.Document()
	r := h.result

	r.Final = doc.Render()
	r.Counts = h.engine.Counts()
	r.Stats = h.engine.Stats()
	r.Reloads = h.reloads.Reasons()

	for _, c := range doc.Containers() {
		r.Order[c.ID] = doc.DisplayKeys(c.ID)
		for _, n := range c.Nodes() {
			r.Occurrences[n.ItemID]++
			r.States[n.ItemID] = stateOf(n)
		}
	}
}

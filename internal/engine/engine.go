package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/pickboard/internal/animate"
	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/clock"
	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/suppress"
	"github.com/roach88/pickboard/internal/view"
)

// Engine is the single-writer reconciliation loop for one mounted view.
//
// Thread-safety model:
//   - HandleTransition, Mount, Unmount, Post: safe from any goroutine
//   - Run or Drain: exactly one goroutine at a time
//   - every other method: loop goroutine only (inside a posted task, an
//     observer, or while no loop is running)
//
// INVARIANTS:
//   - only the loop goroutine mutates doc, index, generations
//   - after a transition is processed, each item has exactly one node
type Engine struct {
	clock      clock.Clock
	seq        *SeqClock
	queue      *eventQueue
	doc        *view.Document
	index      map[string][]*view.Node
	suppressor *suppress.Suppressor
	animator   *animate.Animator

	source    FragmentSource
	reloader  Reloader
	observer  Observer
	paintHook func(Frame)
	syncFetch bool

	suppressionWindow time.Duration
	fade              time.Duration

	// generations[id] increments on every accepted transition for id, so a
	// fetch started for an older generation can be recognized as stale.
	generations map[string]uint64
	counts      map[ir.StateTag]int
	stats       Stats
	curSeq      int64
	sessionID   string

	fetching    atomic.Int64
	fetchCtx    context.Context
	cancelFetch context.CancelFunc
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the clock driving animation and suppression timers.
// Default: the real system clock.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSuppressionWindow sets how long a local action absorbs its echo.
func WithSuppressionWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.suppressionWindow = d
	}
}

// WithFade sets the duration of each fade phase.
func WithFade(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.fade = d
	}
}

// WithReloader sets the full-reload fallback.
func WithReloader(r Reloader) EngineOption {
	return func(e *Engine) {
		e.reloader = r
	}
}

// WithObserver registers a trace observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithPaintHook registers a callback run after every visible change.
func WithPaintHook(f func(Frame)) EngineOption {
	return func(e *Engine) {
		e.paintHook = f
	}
}

// WithSynchronousFetch performs fragment fetches on the loop goroutine
// instead of a fresh goroutine. The result is still delivered as a
// separate continuation event. Used by the scenario harness so traces are
// reproducible.
func WithSynchronousFetch() EngineOption {
	return func(e *Engine) {
		e.syncFetch = true
	}
}

// WithSessionID overrides the generated view session id.
func WithSessionID(id string) EngineOption {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// New creates an Engine for a view. source may be nil only if every
// remote transition carries a fragment; otherwise fetches fall back to a
// reload.
func New(source FragmentSource, opts ...EngineOption) *Engine {
	e := &Engine{
		clock:             clock.Real{},
		seq:               NewSeqClock(),
		queue:             newEventQueue(),
		doc:               view.NewDocument(),
		index:             make(map[string][]*view.Node),
		source:            source,
		reloader:          logReloader{},
		suppressionWindow: suppress.DefaultWindow,
		fade:              animate.DefaultFade,
		generations:       make(map[string]uint64),
		counts:            make(map[ir.StateTag]int),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.sessionID == "" {
		e.sessionID = newSessionID()
	}
	e.fetchCtx, e.cancelFetch = context.WithCancel(context.Background())
	e.suppressor = suppress.New(e.clock, e.postFunc("suppression expiry"), e.suppressionWindow)
	e.animator = animate.New(e.clock, e.postFunc("animation phase"), viewTarget{e},
		animate.WithFade(e.fade),
		animate.WithSettled(e.settled),
	)

	return e
}

// HandleTransition is the single ingress for transitions of either origin.
// Safe from any goroutine. Returns false if the view has been unmounted.
func (e *Engine) HandleTransition(ev ir.TransitionEvent, origin ir.Origin) bool {
	ev.Seq = e.seq.Next()
	return e.queue.Enqueue(Event{
		Type:       EventTypeTransition,
		Origin:     origin,
		Transition: &ev,
		Seq:        ev.Seq,
	})
}

// ApplyLocalTransition enqueues the echo of this viewer's own action.
func (e *Engine) ApplyLocalTransition(ev ir.TransitionEvent) bool {
	return e.HandleTransition(ev, ir.OriginLocal)
}

// ConfirmLocalTransition reconciles an action already applied with
// ApplyLocalTransition against the collaborator's confirmed result. A
// result that agrees with the board is a no-op; one that disagrees is
// placed without registering a new suppression record.
func (e *Engine) ConfirmLocalTransition(ev ir.TransitionEvent) bool {
	ev.Seq = e.seq.Next()
	return e.queue.Enqueue(Event{
		Type:       EventTypeTransition,
		Origin:     ir.OriginLocal,
		Transition: &ev,
		Confirmed:  true,
		Seq:        ev.Seq,
	})
}

// Refresh drops any suppression record for itemID and refetches its
// fragment. Used when a local action was applied but the collaborator
// rejected it.
func (e *Engine) Refresh(listID, itemID string) bool {
	return e.Post("refresh", func() { e.refresh(listID, itemID) })
}

// ApplyRemoteTransition enqueues a transition received from the push channel.
func (e *Engine) ApplyRemoteTransition(ev ir.TransitionEvent) bool {
	return e.HandleTransition(ev, ir.OriginRemote)
}

// Post enqueues f to run on the loop goroutine.
func (e *Engine) Post(name string, f func()) bool {
	return e.queue.Enqueue(Event{Type: EventTypeTask, Task: f, Name: name, Seq: e.seq.Next()})
}

func (e *Engine) postFunc(name string) clock.Poster {
	return func(f func()) {
		if !e.Post(name, f) {
			slog.Debug("dropping task after unmount", "task", name, "session", e.sessionID)
		}
	}
}

// Mount renders the initial load. Fragments are grouped by list and sorted
// by the order policy; duplicate identifiers in the load are collapsed to
// one node (the last fragment wins) and logged.
func (e *Engine) Mount(frags []ir.Fragment) bool {
	copied := make([]ir.Fragment, len(frags))
	copy(copied, frags)
	return e.Post("mount", func() { e.mount(copied) })
}

// Unmount tears the view down: animations and suppression timers are
// cancelled, in-flight fetches are abandoned and the loop stops accepting
// events. Run returns once the queue has drained.
func (e *Engine) Unmount() bool {
	return e.queue.EnqueueAndClose(Event{Type: EventTypeTask, Task: e.unmount, Name: "unmount", Seq: e.seq.Next()})
}

// Run starts the event loop. It blocks until ctx is cancelled or the view
// is unmounted and every queued event has been processed.
//
// ERROR HANDLING: a failing event is logged with its context and the loop
// continues with the next one.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "session", e.sessionID)

	for {
		if event, ok := e.queue.TryDequeue(); ok {
			e.process(event)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled", "session", e.sessionID)
			e.queue.Close()
			e.cancelFetch()
			return ctx.Err()

		case <-e.queue.Wait():
			// closed channel fires immediately; stop once nothing is left
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: view unmounted", "session", e.sessionID)
				return nil
			}
		}
	}
}

// Drain processes events until the queue is empty and no fetch is in
// flight. Timers that have not fired yet are not waited for. Tests and the
// scenario harness use Drain together with a fake clock instead of Run.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		if event, ok := e.queue.TryDequeue(); ok {
			e.process(event)
			continue
		}

		// Fetch goroutines enqueue before decrementing, so a zero count
		// read first makes the emptiness check below authoritative.
		if e.fetching.Load() == 0 && e.queue.Len() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.queue.Wait():
		}
	}
}

// process runs one event under a recover guard and paints the frame.
func (e *Engine) process(event Event) {
	e.curSeq = event.Seq
	defer func() {
		if r := recover(); r != nil {
			logEventError(event, fmt.Errorf("panic: %v", r))
		}
		e.paint()
	}()

	if err := e.processEvent(event); err != nil {
		logEventError(event, err)
	}
}

// processEvent routes an event to the appropriate handler.
func (e *Engine) processEvent(event Event) error {
	switch event.Type {
	case EventTypeTransition:
		if event.Transition == nil {
			return fmt.Errorf("transition event missing transition data")
		}
		switch event.Origin {
		case ir.OriginLocal:
			if event.Confirmed {
				return e.applyConfirmed(event.Transition)
			}
			return e.applyLocal(event.Transition)
		case ir.OriginRemote:
			return e.applyRemote(event.Transition)
		default:
			return fmt.Errorf("unknown origin: %s", event.Origin)
		}

	case EventTypeFetched:
		if event.Fetched == nil {
			return fmt.Errorf("fetched event missing result")
		}
		return e.onFetched(event.Fetched)

	case EventTypeTask:
		if event.Task == nil {
			return fmt.Errorf("task event %q missing function", event.Name)
		}
		event.Task()
		return nil

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func (e *Engine) paint() {
	if !e.doc.Paint() {
		return
	}
	if e.paintHook != nil {
		e.paintHook(Frame{Seq: e.curSeq, Text: e.doc.Render(), Counts: e.Counts()})
	}
}

func (e *Engine) mount(frags []ir.Fragment) {
	last := make(map[string]int, len(frags))
	for i, f := range frags {
		if f.ItemID == "" {
			slog.Warn("skipping fragment without item id in initial load", "list_id", f.ListID)
			continue
		}
		if _, dup := last[f.ItemID]; dup {
			slog.Warn("duplicate item in initial load, keeping the latest fragment",
				"item_id", f.ItemID,
				"list_id", f.ListID,
			)
		}
		last[f.ItemID] = i
	}

	lists := make(map[string]bool)
	for i, f := range frags {
		if f.ItemID == "" || last[f.ItemID] != i {
			continue
		}
		e.removeAll(f.ItemID, false)
		c := e.doc.Ensure(f.ListID)
		lists[f.ListID] = true
		node := view.NewNode(f)
		c.InsertAt(e.locateFresh(c, f), node)
		e.index[f.ItemID] = []*view.Node{node}
	}

	e.refreshCounts()
	e.trace(TraceMounted, "", 0, fmt.Sprintf("lists=%d items=%d", len(lists), len(last)))
	slog.Info("view mounted", "session", e.sessionID, "lists", len(lists), "items", len(last))
}

func (e *Engine) unmount() {
	e.animator.CancelAll()
	e.suppressor.Clear()
	e.cancelFetch()
	e.doc.Reset()
	e.index = make(map[string][]*view.Node)
	e.generations = make(map[string]uint64)
	e.counts = make(map[ir.StateTag]int)
	e.trace(TraceUnmounted, "", 0, "")
	slog.Info("view unmounted", "session", e.sessionID)
}

func (e *Engine) settled(itemID string) {
	e.stats.AnimationsSettled++
	e.refreshCounts()
	e.trace(TraceSettled, itemID, 0, "")
}

func (e *Engine) refreshCounts() {
	counts := make(map[ir.StateTag]int)
	for _, c := range e.doc.Containers() {
		for _, n := range c.Nodes() {
			counts[classify.Classify(n.Fragment.Flags)]++
		}
	}
	e.counts = counts
}

func (e *Engine) trace(kind TraceKind, itemID string, origin ir.Origin, detail string) {
	if e.observer == nil {
		return
	}
	e.observer(TraceEvent{Seq: e.curSeq, Kind: kind, ItemID: itemID, Origin: origin, Detail: detail})
}

// Counts returns the number of items per state as of the last settled
// animation. Loop goroutine only.
func (e *Engine) Counts() map[ir.StateTag]int {
	out := make(map[ir.StateTag]int, len(e.counts))
	for k, v := range e.counts {
		out[k] = v
	}
	return out
}

// Stats returns cumulative counters. Loop goroutine only.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Animations = e.animator.Started()
	s.VisibleChanges = e.doc.VisibleChanges()
	return s
}

// Document exposes the visible list for rendering and assertions. Loop
// goroutine only; callers must not mutate it.
func (e *Engine) Document() *view.Document {
	return e.doc
}

// Animator exposes the animator for phase inspection. Loop goroutine only.
func (e *Engine) Animator() *animate.Animator {
	return e.animator
}

// Suppressor exposes the local-action suppressor. Loop goroutine only.
func (e *Engine) Suppressor() *suppress.Suppressor {
	return e.suppressor
}

// SessionID identifies this mounted view in logs.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// QueueLen returns the number of pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// logEventError logs an event processing failure with full context.
func logEventError(event Event, err error) {
	switch event.Type {
	case EventTypeTransition:
		if event.Transition != nil {
			slog.Error("transition processing failed",
				"error", err,
				"item_id", event.Transition.ItemID,
				"list_id", event.Transition.ListID,
				"origin", event.Origin,
				"seq", event.Seq,
			)
			return
		}
	case EventTypeFetched:
		if event.Fetched != nil {
			slog.Error("fetched fragment processing failed",
				"error", err,
				"item_id", event.Fetched.itemID,
				"list_id", event.Fetched.listID,
				"seq", event.Seq,
			)
			return
		}
	case EventTypeTask:
		slog.Error("task failed",
			"error", err,
			"task", event.Name,
			"seq", event.Seq,
		)
		return
	}
	slog.Error("event processing failed",
		"error", err,
		"event_type", event.Type,
		"seq", event.Seq,
	)
}

package engine

import "github.com/roach88/pickboard/internal/ir"

// TraceKind names an observable engine decision.
type TraceKind string

const (
	TraceMounted     TraceKind = "mounted"
	TraceApplied     TraceKind = "applied"
	TraceSuppressed  TraceKind = "suppressed"
	TraceFetch       TraceKind = "fetch"
	TraceStaleFetch  TraceKind = "stale_fetch"
	TraceDuplicates  TraceKind = "duplicates_removed"
	TraceConfirmed   TraceKind = "confirmed"
	TraceAnimation   TraceKind = "animation"
	TraceSettled     TraceKind = "settled"
	TraceIntegrity   TraceKind = "integrity"
	TraceReload      TraceKind = "reload"
	TraceUnmounted   TraceKind = "unmounted"
	TraceInvalidDrop TraceKind = "invalid"
)

// TraceEvent is one record of the engine's decision trace.
type TraceEvent struct {
	Seq    int64
	Kind   TraceKind
	ItemID string
	Origin ir.Origin // zero when not tied to a transition
	Detail string
}

// Observer receives trace events on the loop goroutine. It must not block.
type Observer func(TraceEvent)

// Frame is handed to the paint hook after a visible change.
type Frame struct {
	Seq    int64
	Text   string
	Counts map[ir.StateTag]int
}

// Stats are cumulative counters for tests and diagnostics.
type Stats struct {
	Applied             int
	Suppressed          int
	Fetches             int
	StaleFetches        int
	Reloads             int
	IntegrityViolations int
	DuplicatesRemoved   int
	Animations          int
	AnimationsSettled   int
	VisibleChanges      int
}

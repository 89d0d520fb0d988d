package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/pickboard/internal/engine"
	"github.com/roach88/pickboard/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	Name string

	// Pass is true if every expectation matched.
	Pass bool

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string

	// Trace holds step markers and engine trace events in order.
	Trace []string

	// Final is the rendered board after the last step.
	Final string

	Order       map[string][]string
	States      map[string]ir.StateTag
	Occurrences map[string]int
	Counts      map[ir.StateTag]int
	Stats       engine.Stats
	Reloads     []error
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:        name,
		Pass:        true,
		Errors:      []string{},
		Trace:       []string{},
		Order:       make(map[string][]string),
		States:      make(map[string]ir.StateTag),
		Occurrences: make(map[string]int),
		Counts:      make(map[ir.StateTag]int),
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addStep records a step marker.
func (r *Result) addStep(desc string) {
	r.Trace = append(r.Trace, "-- "+desc)
}

// addEvent records one engine trace event.
func (r *Result) addEvent(ev engine.TraceEvent) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", ev.Seq, ev.Kind)
	if ev.ItemID != "" {
		b.WriteString(" " + ev.ItemID)
	}
	if ev.Origin != 0 {
		fmt.Fprintf(&b, " (%s)", ev.Origin)
	}
	if ev.Detail != "" {
		b.WriteString(": " + ev.Detail)
	}
	r.Trace = append(r.Trace, b.String())
}

// Text renders the deterministic report compared against golden files.
func (r *Result) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", r.Name)

	b.WriteString("trace:\n")
	for _, line := range r.Trace {
		b.WriteString("  " + line + "\n")
	}

	b.WriteString("final:\n")
	b.WriteString(r.Final)

	b.WriteString("counts:")
	for _, tag := range append(append([]ir.StateTag{}, ir.ValidStates...), ir.StateUnknown) {
		fmt.Fprintf(&b, " %s=%d", tag, r.Counts[tag])
	}
	b.WriteString("\n")

	s := r.Stats
	fmt.Fprintf(&b,
		"stats: applied=%d suppressed=%d fetches=%d stale_fetches=%d reloads=%d integrity=%d duplicates=%d animations=%d settled=%d\n",
		s.Applied, s.Suppressed, s.Fetches, s.StaleFetches, s.Reloads,
		s.IntegrityViolations, s.DuplicatesRemoved, s.Animations, s.AnimationsSettled,
	)
	return b.String()
}

package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/pickboard/internal/classify"
	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/view"
)

// AssertionError is returned when an expectation fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, line := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}
	return buf.String()
}

func stateOf(n *view.Node) ir.StateTag {
	return classify.Classify(n.Fragment.Flags)
}

// checkExpectations evaluates expect against the captured result. Every
// item must end with exactly one occurrence regardless of expect.
func checkExpectations(expect Expect, r *Result) {
	for _, err := range evaluate(expect, r) {
		r.AddError(err.Error())
	}
}

func evaluate(expect Expect, r *Result) []error {
	var errs []error

	if err := assertUnique(r); err != nil {
		errs = append(errs, err)
	}

	lists := make([]string, 0, len(expect.Order))
	for list := range expect.Order {
		lists = append(lists, list)
	}
	sort.Strings(lists)
	for _, list := range lists {
		if err := assertOrder(r, list, expect.Order[list]); err != nil {
			errs = append(errs, err)
		}
	}

	ids := make([]string, 0, len(expect.State))
	for id := range expect.State {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := assertState(r, id, ir.StateTag(expect.State[id])); err != nil {
			errs = append(errs, err)
		}
	}

	counters := []struct {
		name string
		want *int
		got  int
	}{
		{"animations", expect.Animations, r.Stats.Animations},
		{"suppressed", expect.Suppressed, r.Stats.Suppressed},
		{"fetches", expect.Fetches, r.Stats.Fetches},
		{"stale_fetches", expect.StaleFetches, r.Stats.StaleFetches},
		{"reloads", expect.Reloads, len(r.Reloads)},
		{"duplicates", expect.Duplicates, r.Stats.DuplicatesRemoved},
	}
	for _, c := range counters {
		if c.want != nil && *c.want != c.got {
			errs = append(errs, &AssertionError{
				Type:     "count",
				Expected: fmt.Sprintf("%s=%d", c.name, *c.want),
				Actual:   fmt.Sprintf("%s=%d", c.name, c.got),
				Trace:    r.Trace,
			})
		}
	}
	return errs
}

// assertOrder compares display keys of a list in visual order.
func assertOrder(r *Result, list string, want []string) error {
	got := r.Order[list]
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     "order",
		Expected: fmt.Sprintf("%s: %v", list, want),
		Actual:   fmt.Sprintf("%s: %v", list, got),
		Trace:    r.Trace,
	}
}

func assertState(r *Result, id string, want ir.StateTag) error {
	got, ok := r.States[id]
	if !ok {
		return &AssertionError{
			Type:     "state",
			Expected: fmt.Sprintf("%s in state %s", id, want),
			Actual:   "item not on the board",
			Trace:    r.Trace,
		}
	}
	if got != want {
		return &AssertionError{
			Type:     "state",
			Expected: fmt.Sprintf("%s in state %s", id, want),
			Actual:   fmt.Sprintf("%s in state %s", id, got),
			Trace:    r.Trace,
		}
	}
	return nil
}

// assertUnique reports every item rendered more than once.
func assertUnique(r *Result) error {
	var dups []string
	for id, n := range r.Occurrences {
		if n > 1 {
			dups = append(dups, fmt.Sprintf("%s x%d", id, n))
		}
	}
	if len(dups) == 0 {
		return nil
	}
	sort.Strings(dups)
	return &AssertionError{
		Type:     "uniqueness",
		Expected: "one occurrence per item",
		Actual:   strings.Join(dups, ", "),
		Trace:    r.Trace,
	}
}

// Package harness runs board scenarios against the real reconciliation
// engine with a virtual clock and an in-memory fragment source, and
// produces a deterministic text trace for golden comparison.
//
// # Scenario Format
//
// Scenarios are YAML files validated against an embedded CUE schema:
//
//	name: echo_suppressed
//	description: "A local pick and its push echo animate once"
//	config:
//	  fade: 100ms
//	  suppression_window: 1s
//	items:
//	  - { list: L1, id: x, key: Apple, state: pending }
//	steps:
//	  - local: { id: x, state: picked }
//	  - remote: { id: x, state: picked }
//	  - settle: true
//	expect:
//	  order: { L1: [Apple] }
//	  animations: 1
//	  suppressed: 1
//
// # Steps
//
//   - local: the viewer's own action; the server truth is updated and the
//     synchronous result is applied as a local transition
//   - remote: a push notification; the server truth is updated unless
//     stale is set, and the fragment ships inline when inline is set
//   - advance: moves the virtual clock
//   - settle: advances by the fade duration until no animation is active
//   - fail_fetch: makes on-demand fetches fail (or succeed again)
//   - duplicate: renders an extra node for an item, as a faulty upstream
//     renderer would
//
// The engine is drained after every step, so a step's consequences are in
// the trace before the next step starts.
//
// # Golden Files
//
// RunWithGolden compares the trace with testdata/golden/{name}.golden. To
// regenerate:
//
//	go test ./internal/harness -update
package harness

// Package engine implements the reconciliation engine of the picking board.
//
// The engine is the sole owner of the visible list. It receives transition
// events from two origins (this viewer's own actions and the push channel),
// decides whether to apply them, places the item at its ordered position
// and hands the visual move to the animator.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every mutation happens on one goroutine (Run or Drain). Transitions,
// fragment fetch results and timer callbacks all arrive as events on a
// FIFO queue, so the list needs no locks:
//   - HandleTransition(): safe from any goroutine, enqueues
//   - fragment fetches: run in their own goroutine, result re-enqueued
//   - animator/suppressor timers: post a task event when they fire
//
// Event Processing Flow:
//  1. Event stamped with a monotonic seq and enqueued
//  2. Run()/Drain() dequeues events one at a time
//  3. processEvent() routes to the local, remote, fetched or task handler
//  4. The frame is painted once per event, so several mutations made in one
//     turn (remove every occurrence, then reinsert) are seen as one change
//
// Same-Identifier Serialization:
// Events for distinct items interleave freely. For one item, the animator's
// cancel-and-restart rule, the suppression gate and a per-item generation
// counter guarantee that a newer transition always wins: a fetch result for
// a superseded generation is dropped instead of overwriting newer state.
//
// Own Actions:
// A viewer applies its action with ApplyLocalTransition before sending it,
// so the suppression record exists before the server can broadcast the
// echo. The server's answer goes through ConfirmLocalTransition, which
// changes nothing when it agrees with the board. A rejected action is
// undone with Refresh.
//
// Failure Policy:
// Handlers log and continue. A panic inside a handler is recovered and
// logged, since stopping the loop would freeze the board for every later
// event. The only user-visible failure is the full-reload fallback, used
// when a fragment cannot be fetched or the push transport breaks.
package engine

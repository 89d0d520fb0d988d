// Package store is the SQLite persistence collaborator behind the reference
// server: the pick lists themselves and an append-only log of the actions
// applied to them.
//
// # Tables
//
//   - items: one row per (list_id, id) with the four state flags
//   - transitions: one row per applied action, keyed by event_id
//
// # Ordering
//
// ListItems returns rows by id (COLLATE BINARY). Display order is the
// viewer's concern; the store never sorts by state.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

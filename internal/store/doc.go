// Package store provides SQLite-backed durable storage for chart traces.
//
// A trace is an append-only log of everything that moved a chart:
//   - Events: dataset loads and parameter changes, in dispatch order
//   - Passes: one row per layer recomputed while handling an event
//   - Scenes: the content hash of the scene each event produced
//
// # Ordering
//
// All ordering uses the seq column (the chart's logical clock), never
// timestamps. Reads order by seq ASC, id ASC COLLATE BINARY so replays see
// identical results.
//
// # Idempotency
//
// Event IDs are content-addressed (see ir.EventID). Writing the same event
// or the same pass twice is a no-op.
//
// # Database Configuration
//
//   - WAL mode (file databases only): concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

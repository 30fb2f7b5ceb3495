// Package store provides SQLite-backed durable storage for simulation
// traces.
//
// The store is an append-only log of:
//   - Designs: compiled designs keyed by content hash
//   - Runs: one simulation of a design (run ID, scheduler version)
//   - Cycles: per-cycle readiness, firing set and digest
//   - Method calls: the data that crossed the multiplexer each cycle
//
// # Critical Patterns
//
// Logical Time
//   - All ordering uses cycle and seq INTEGER columns, never timestamps
//   - Replay compares recorded cycles by digest regardless of wall time
//
// Deterministic Query Results
//   - Cycles: ORDER BY cycle ASC
//   - Calls: ORDER BY cycle ASC, seq ASC
//   - Runs: ORDER BY id COLLATE BINARY ASC (UUIDv7 IDs sort by creation)
//
// Idempotent Writes
//   - Designs are content addressed; rewriting one is a no-op
//   - Cycle rows use ON CONFLICT DO NOTHING so re-recording is safe
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Store implements engine.Recorder.
package store

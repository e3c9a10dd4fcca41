// Package store provides SQLite-backed durable storage for modeseq runs.
//
// A run is one sequence of ticks evaluated against one table. The store is
// an append-only log with two tables:
//   - runs: run id, table name, table content hash, free-form label
//   - ticks: one row per evaluated tick, keyed by (run_id, seq)
//
// # Ordering
//
// Ticks are ordered by seq, the logical tick counter, never by timestamps,
// so reading a run back yields exactly the sequence that was evaluated.
// Runs are listed by id; run ids are UUIDv7 and sort by creation time.
//
// # Rewrites
//
// Writing a run or tick that is already recorded with the same content is a
// no-op. Writing different content under a recorded run id or (run, seq)
// fails with ErrConflict and leaves the log as it was.
//
// The log runs in WAL mode with foreign keys on, so trace and replay can
// read a file that serve is still appending to, and ticks cannot outlive
// their run.
//
// Input and output maps are stored as canonical JSON (see package trace).
package store

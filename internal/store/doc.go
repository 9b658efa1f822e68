// Package store provides SQLite-backed durable storage for agent runs and
// expected configurations.
//
// Store implements both collaborators of the cache coordinator:
//   - cache.RunStore: UpsertRuns and ReadLastRuns
//   - cache.ConfigResolver: Resolve
//
// # Critical Patterns
//
// Monotonic completion:
//   - A run stored as completed is never overwritten with "not completed".
//     The upsert only updates rows WHERE is_completed = 0; a rejected
//     downgrade is reported as a *run.WriteError wrapping run.ErrAlreadyCompleted.
//   - Resubmitting a completed run as completed is an idempotent no-op.
//
// Arrival ordering:
//   - "Last run" means the highest insertion_seq for a node, never the
//     latest run_timestamp. Node clocks are not trusted.
//
// Per-run independence:
//   - Each run of a batch is written by its own statement; one failure
//     never blocks its siblings.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Expected-config documents are stored as canonical JSON (run.MarshalCanonical)
// together with their content digest.
package store

// Package cache implements the last-run cache coordinator.
//
// The Coordinator owns an in-memory projection from node id to that node's
// last run, and sits in front of two slow collaborators: a RunStore (durable
// runs) and a ConfigResolver (expected configurations).
//
// ARCHITECTURE:
//
// Single Critical Section:
// Every operation (GetLastRuns, SubmitRuns, ClearCache) holds one exclusive
// mutex for its entire duration, backend calls included. Releasing the lock
// around I/O would let a clear or a second writer interleave between "read
// cache state" and "write merged state" and lose a completed run. Operations
// therefore observe a total order equal to lock acquisition order.
//
// Key Presence:
// A node id present as a key is authoritative, even when mapped to nil
// ("no run yet"). An absent key means "unknown, fetch from the RunStore".
//
// Reconciliation:
// Completed runs are attached to their expected configuration before being
// cached. A cached ExpectedConfig is reused when the new run carries exactly
// the same ConfigVersion; everything else is resolved in one batched,
// deduplicated ConfigResolver call. Planning and merging are pure functions
// (Plan, Reconcile) so they can be tested without backends.
//
// Failure Policy:
//   - RunStore read failure: the read fails (BackendUnavailableError), no mutation.
//   - RunStore per-run write failure: reported in that run's result slot only.
//   - ConfigResolver failure: logged (ResolverUnavailableError) and the runs
//     are cached as unresolved. Resolution is best-effort; writes are not.
//
// Cancellation:
// Once an operation holds the lock it runs to completion. Backend calls use
// context.WithoutCancel, so a caller abandoning its context cannot revoke
// work already dispatched, and that work still updates the cache.
package cache

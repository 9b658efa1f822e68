// Package ingest feeds reported runs into the cache coordinator.
//
// ARCHITECTURE:
//
// Single-Consumer Loop:
// Reports may be enqueued from any goroutine. One goroutine runs
// Ingester.Run, which drains the queue in batches and hands each batch to
// Coordinator.SubmitRuns. Batches are correlated in logs by a UUIDv7 id.
//
// Ordering:
// Every report is stamped with InsertionSeq from a monotonic Clock at
// enqueue time, under the queue lock, so queue order and seq order agree.
// After a restart the clock resumes from the store's highest seq.
//
// Failure Handling:
// Per-run write failures are logged with the batch id and surfaced to the
// optional result hook. The loop never stops on a failed write.
package ingest

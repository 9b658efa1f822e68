// Package run defines the data model shared by the run store, the cache
// coordinator and the ingestion loop.
//
// This package contains type definitions and pure helpers only. Every other
// internal package imports run; run imports nothing internal.
//
// Key design constraints:
//   - Runs are ordered by InsertionSeq (arrival order), never by Timestamp.
//     Node clocks are not trusted.
//   - A run ID is (NodeID, Timestamp) and is unique per node per timestamp.
//   - Expected-config documents are serialised with MarshalCanonical so the
//     stored bytes and digests are stable across processes.
package run

// Package harness runs YAML scenarios against a real cache coordinator.
//
// Each scenario gets a fresh in-memory SQLite store. The coordinator talks
// to it through counting decorators, so every step records exactly which
// nodes were read from the store and which keys were sent to the resolver.
// Steps can take either backend down to exercise the failure paths.
//
// Step operations:
//
//	submit         enqueue runs through an ingest.Ingester and drain it
//	get            GetLastRuns for a list of nodes
//	clear          ClearCache
//	expect         register expected configs (inline or from a .yaml/.cue
//	               file) and clear the cache as a topology change
//	resolver_down  make the resolver fail every call
//	resolver_up    restore the resolver
//	store_down     make every store call fail
//	store_up       restore the store
//
// Per-step `want` blocks assert write outcomes, backend calls and returned
// runs. Scenario-level `final_keys` and `metrics` assert the end state.
// RunWithGolden additionally snapshots the step log and the final cache as
// canonical JSON under testdata/golden.
//
// Timestamps in scenarios are minutes after BaseTime. InsertionSeq values
// come from the ingest clock, starting at 1.
package harness

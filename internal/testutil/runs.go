// Package testutil builds run fixtures and deterministic ids for tests and
// the scenario harness.
package testutil

import (
	"sync"
	"time"

	"github.com/roach88/runcache/internal/run"
)

// Run builds a run of node reported minute minutes after base.
// An empty version leaves ConfigVersion nil.
func Run(base time.Time, node string, minute int, completed bool, seq int64, version string) run.Run {
	r := run.Run{
		ID: run.ID{
			NodeID:    run.NodeID(node),
			Timestamp: base.Add(time.Duration(minute) * time.Minute),
		},
		Completed:    completed,
		InsertionSeq: seq,
	}
	if version != "" {
		r.ConfigVersion = run.Version(version)
	}
	return r
}

// Expected builds an expected configuration. A nil doc becomes empty.
func Expected(node, version string, doc map[string]any) run.ExpectedConfig {
	if doc == nil {
		doc = map[string]any{}
	}
	return run.ExpectedConfig{
		NodeID:   run.NodeID(node),
		Version:  run.ConfigVersion(version),
		Document: doc,
	}
}

// RunFactory builds runs stamped with consecutive insertion sequence
// numbers, starting at 1. Safe for concurrent use.
//
// Unlike ingest.Clock, a RunFactory can be reset so the same fixture set
// can be rebuilt with identical seq values.
type RunFactory struct {
	mu   sync.Mutex
	base time.Time
	seq  int64
}

// NewRunFactory creates a factory whose timestamps are offsets from base.
func NewRunFactory(base time.Time) *RunFactory {
	return &RunFactory{base: base}
}

// Next builds a run stamped with the next sequence number.
func (f *RunFactory) Next(node string, minute int, completed bool, version string) run.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return Run(f.base, node, minute, completed, f.seq, version)
}

// Current returns the last sequence number handed out.
func (f *RunFactory) Current() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// Reset makes the next run start at seq 1 again.
func (f *RunFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq = 0
}

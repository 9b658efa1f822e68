package testutil

import (
	"fmt"
	"sync"
)

// SequentialBatchIDs numbers batches "<prefix>-001", "<prefix>-002", ...
// so logs and golden snapshots stay deterministic. It implements
// ingest.BatchIDGenerator.
type SequentialBatchIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialBatchIDs creates a generator. An empty prefix becomes "batch".
func NewSequentialBatchIDs(prefix string) *SequentialBatchIDs {
	if prefix == "" {
		prefix = "batch"
	}
	return &SequentialBatchIDs{prefix: prefix}
}

// Generate returns the next batch id.
func (g *SequentialBatchIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%03d", g.prefix, g.n)
}

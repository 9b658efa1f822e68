package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/runcache/internal/run"
	"github.com/roach88/runcache/internal/testutil"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new temp-file store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run minutes after baseTime.
func createTestRun(node string, minute int, completed bool, seq int64, version string) run.Run {
	return testutil.Run(baseTime, node, minute, completed, seq, version)
}

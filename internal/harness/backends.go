package harness

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/roach88/runcache/internal/cache"
	"github.com/roach88/runcache/internal/run"
)

var (
	errStoreDown    = errors.New("store unavailable")
	errResolverDown = errors.New("resolver unavailable")
)

// countingStore records every ReadLastRuns call and can be taken down.
type countingStore struct {
	inner cache.RunStore

	mu    sync.Mutex
	down  bool
	reads [][]run.NodeID
}

func (s *countingStore) ReadLastRuns(ctx context.Context, nodeIDs []run.NodeID) (map[run.NodeID]*run.ResolvedRun, error) {
	s.mu.Lock()
	s.reads = append(s.reads, slices.Clone(nodeIDs))
	down := s.down
	s.mu.Unlock()

	if down {
		return nil, errStoreDown
	}
	return s.inner.ReadLastRuns(ctx, nodeIDs)
}

func (s *countingStore) UpsertRuns(ctx context.Context, runs []run.Run) ([]run.WriteResult, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()

	if down {
		return nil, errStoreDown
	}
	return s.inner.UpsertRuns(ctx, runs)
}

func (s *countingStore) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// takeReads returns the reads recorded since the last call.
func (s *countingStore) takeReads() [][]run.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.reads
	s.reads = nil
	return out
}

// countingResolver records every Resolve call and can be taken down.
type countingResolver struct {
	inner cache.ConfigResolver

	mu    sync.Mutex
	down  bool
	calls [][]run.ResolveKey
}

func (r *countingResolver) Resolve(ctx context.Context, keys []run.ResolveKey) (map[run.ResolveKey]*run.ExpectedConfig, error) {
	r.mu.Lock()
	r.calls = append(r.calls, slices.Clone(keys))
	down := r.down
	r.mu.Unlock()

	if down {
		return nil, errResolverDown
	}
	return r.inner.Resolve(ctx, keys)
}

func (r *countingResolver) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

// takeCalls returns the calls recorded since the last call.
func (r *countingResolver) takeCalls() [][]run.ResolveKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

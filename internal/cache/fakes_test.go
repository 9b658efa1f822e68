package cache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/roach88/runcache/internal/run"
	"github.com/roach88/runcache/internal/testutil"
)

var errBackendDown = errors.New("backend down")

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory RunStore with call recording and fault injection.
type fakeStore struct {
	mu sync.Mutex

	runs map[run.NodeID][]run.ResolvedRun
	seq  int64

	readCalls   [][]run.NodeID
	upsertCalls [][]run.Run

	readErr   error
	upsertErr error
	omit      map[run.NodeID]bool
	reject    map[run.NodeID]bool
	shortBy   int

	// onUpsert runs before the upsert is applied, outside the fake's lock.
	onUpsert func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:   make(map[run.NodeID][]run.ResolvedRun),
		omit:   make(map[run.NodeID]bool),
		reject: make(map[run.NodeID]bool),
	}
}

// seed stores a run directly, bypassing upsert bookkeeping.
func (s *fakeStore) seed(r run.Run, info *run.ConfigInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.InsertionSeq == 0 {
		s.seq++
		r.InsertionSeq = s.seq
	} else if r.InsertionSeq > s.seq {
		s.seq = r.InsertionSeq
	}
	s.runs[r.ID.NodeID] = append(s.runs[r.ID.NodeID], run.ResolvedRun{
		ID:           r.ID,
		ConfigInfo:   info.Clone(),
		Completed:    r.Completed,
		InsertionSeq: r.InsertionSeq,
	})
}

func (s *fakeStore) ReadLastRuns(ctx context.Context, nodeIDs []run.NodeID) (map[run.NodeID]*run.ResolvedRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readCalls = append(s.readCalls, slices.Clone(nodeIDs))
	if s.readErr != nil {
		return nil, s.readErr
	}

	out := make(map[run.NodeID]*run.ResolvedRun, len(nodeIDs))
	for _, id := range nodeIDs {
		if s.omit[id] {
			continue
		}
		var last *run.ResolvedRun
		for i := range s.runs[id] {
			r := s.runs[id][i]
			if !r.Completed {
				continue
			}
			if last == nil || r.InsertionSeq > last.InsertionSeq {
				last = &r
			}
		}
		out[id] = last.Clone()
	}
	return out, nil
}

func (s *fakeStore) UpsertRuns(ctx context.Context, runs []run.Run) ([]run.WriteResult, error) {
	s.mu.Lock()
	hook := s.onUpsert
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertCalls = append(s.upsertCalls, slices.Clone(runs))
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}

	results := make([]run.WriteResult, 0, len(runs))
	for _, r := range runs {
		results = append(results, s.apply(r))
	}
	if s.shortBy > 0 {
		results = results[:max(0, len(results)-s.shortBy)]
	}
	return results, nil
}

// apply upserts one run. Called with mu held.
func (s *fakeStore) apply(r run.Run) run.WriteResult {
	if s.reject[r.ID.NodeID] {
		return run.WriteResult{Run: r, Err: run.NewRejectedError(r.ID, run.ErrInvalidRun)}
	}

	list := s.runs[r.ID.NodeID]
	for i := range list {
		if !list[i].ID.Timestamp.Equal(r.ID.Timestamp) {
			continue
		}
		if list[i].Completed && !r.Completed {
			return run.WriteResult{Run: r, Err: run.NewRejectedError(r.ID, run.ErrAlreadyCompleted)}
		}
		if list[i].Completed {
			return run.WriteResult{Run: storedRun(list[i])}
		}
		list[i].Completed = r.Completed
		list[i].InsertionSeq = r.InsertionSeq
		list[i].ConfigInfo = nil
		if r.ConfigVersion != nil {
			list[i].ConfigInfo = &run.ConfigInfo{Version: *r.ConfigVersion}
		}
		return run.WriteResult{Run: r}
	}

	var info *run.ConfigInfo
	if r.ConfigVersion != nil {
		info = &run.ConfigInfo{Version: *r.ConfigVersion}
	}
	s.runs[r.ID.NodeID] = append(list, run.ResolvedRun{
		ID:           r.ID,
		ConfigInfo:   info,
		Completed:    r.Completed,
		InsertionSeq: r.InsertionSeq,
	})
	if r.InsertionSeq > s.seq {
		s.seq = r.InsertionSeq
	}
	return run.WriteResult{Run: r}
}

func storedRun(rr run.ResolvedRun) run.Run {
	r := run.Run{ID: rr.ID, Completed: rr.Completed, InsertionSeq: rr.InsertionSeq}
	if rr.ConfigInfo != nil {
		r.ConfigVersion = run.Version(string(rr.ConfigInfo.Version))
	}
	return r
}

func (s *fakeStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readCalls)
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upsertCalls)
}

// fakeResolver answers from a fixed table and records every call.
type fakeResolver struct {
	mu      sync.Mutex
	configs map[run.ResolveKey]*run.ExpectedConfig
	calls   [][]run.ResolveKey
	err     error
}

func newFakeResolver(configs ...run.ExpectedConfig) *fakeResolver {
	r := &fakeResolver{configs: make(map[run.ResolveKey]*run.ExpectedConfig)}
	for _, cfg := range configs {
		r.configs[cfg.Key()] = cfg.Clone()
	}
	return r
}

func (r *fakeResolver) Resolve(ctx context.Context, keys []run.ResolveKey) (map[run.ResolveKey]*run.ExpectedConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, slices.Clone(keys))
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[run.ResolveKey]*run.ExpectedConfig)
	for _, k := range keys {
		if cfg, ok := r.configs[k]; ok {
			out[k] = cfg.Clone()
		}
	}
	return out, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeResolver) lastCall() []run.ResolveKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func (r *fakeResolver) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// newRun builds a run at baseTime plus minute minutes.
func newRun(node string, minute int, completed bool, seq int64, version string) run.Run {
	return testutil.Run(baseTime, node, minute, completed, seq, version)
}

func expected(node, version string, doc map[string]any) run.ExpectedConfig {
	return run.ExpectedConfig{
		NodeID:   run.NodeID(node),
		Version:  run.ConfigVersion(version),
		Document: doc,
	}
}

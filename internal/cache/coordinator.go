package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/runcache/internal/observability"
	"github.com/roach88/runcache/internal/run"
)

// RunStore is the durable store of agent runs.
//
// ReadLastRuns must map every requested id to its last completed run or nil;
// omitting an id is an invalid response. UpsertRuns must return one result
// per input run, in input order, and must refuse to downgrade a completed
// run. A successful result carries the row as stored.
type RunStore interface {
	ReadLastRuns(ctx context.Context, nodeIDs []run.NodeID) (map[run.NodeID]*run.ResolvedRun, error)
	UpsertRuns(ctx context.Context, runs []run.Run) ([]run.WriteResult, error)
}

// ConfigResolver resolves expected configurations. Keys missing from a
// successful answer mean "no expected config found", not an error.
type ConfigResolver interface {
	Resolve(ctx context.Context, keys []run.ResolveKey) (map[run.ResolveKey]*run.ExpectedConfig, error)
}

// Operation names used for metrics and logs.
const (
	opGetLastRuns = "get_last_runs"
	opSubmitRuns  = "submit_runs"
	opClearCache  = "clear_cache"
)

// Coordinator owns the last-run projection.
//
// Thread-safety model:
//   - All methods are safe from any goroutine.
//   - mu is held for the whole of every operation, backend calls included.
//   - entries values are never mutated after insertion; callers only ever
//     receive clones.
//
// INVARIANTS:
//   - A key is present iff it was fetched or reconciled since the last clear.
//   - A nil value under a present key means "no run yet" and is authoritative.
//   - An entry is only replaced by a run with an equal or higher InsertionSeq.
type Coordinator struct {
	mu       sync.Mutex
	entries  map[run.NodeID]*run.ResolvedRun
	store    RunStore
	resolver ConfigResolver
	metrics  *observability.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records coordinator activity in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a Coordinator with an empty cache.
//
// A nil resolver is allowed: every versioned run is then cached as unresolved.
func New(store RunStore, resolver ConfigResolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		entries:  make(map[run.NodeID]*run.ResolvedRun),
		store:    store,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLastRuns returns the last run of every requested node.
//
// Cached nodes are served directly; the rest are fetched with exactly one
// RunStore call and merged into the cache, including nodes without any run.
// The result has exactly the requested keys and is a deep copy.
//
// If the store read fails, a *BackendUnavailableError is returned and the
// cache is not modified.
func (c *Coordinator) GetLastRuns(ctx context.Context, nodeIDs []run.NodeID) (map[run.NodeID]*run.ResolvedRun, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.metrics.ObserveOperation(opGetLastRuns, time.Since(start)) }()

	requested := dedupeNodeIDs(nodeIDs)

	var missing []run.NodeID
	for _, id := range requested {
		if _, ok := c.entries[id]; !ok {
			missing = append(missing, id)
		}
	}
	c.metrics.RecordLookups(len(requested)-len(missing), len(missing))

	if len(missing) > 0 {
		fetched, err := c.fetch(ctx, missing)
		if err != nil {
			slog.Error("last-run read failed",
				"nodes", len(missing),
				"error", err,
			)
			return nil, err
		}
		for _, id := range missing {
			c.entries[id] = fetched[id].Clone()
		}
		c.metrics.SetEntries(len(c.entries))

		slog.Debug("last runs fetched",
			"requested", len(requested),
			"fetched", len(missing),
			"entries", len(c.entries),
		)
	}

	result := make(map[run.NodeID]*run.ResolvedRun, len(requested))
	for _, id := range requested {
		result[id] = c.entries[id].Clone()
	}
	return result, nil
}

// fetch reads missing nodes from the store and validates completeness.
// Called with mu held.
func (c *Coordinator) fetch(ctx context.Context, missing []run.NodeID) (map[run.NodeID]*run.ResolvedRun, error) {
	fetched, err := c.store.ReadLastRuns(context.WithoutCancel(ctx), missing)
	if err == nil {
		for _, id := range missing {
			if _, ok := fetched[id]; !ok {
				err = fmt.Errorf("%w: %s", ErrIncompleteResponse, id)
				break
			}
		}
	}
	c.metrics.RecordStoreRead(err == nil)
	if err != nil {
		return nil, &BackendUnavailableError{Op: "read last runs", NodeIDs: missing, Err: err}
	}
	return fetched, nil
}

// SubmitRuns persists runs and reconciles the completed ones into the cache.
//
// The returned slice has one result per input run, in input order, exactly
// as reported by the RunStore. Reconciliation never changes a reported
// write outcome: resolver failures are logged and the affected runs are
// cached with an unresolved expected config.
func (c *Coordinator) SubmitRuns(ctx context.Context, runs []run.Run) []run.WriteResult {
	if len(runs) == 0 {
		return []run.WriteResult{}
	}

	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.metrics.ObserveOperation(opSubmitRuns, time.Since(start)) }()

	bctx := context.WithoutCancel(ctx)

	results := c.upsert(bctx, runs)

	var completed []run.Run
	for i, res := range results {
		if res.Err != nil {
			slog.Warn("run write failed",
				"run", runs[i].ID.String(),
				"completed", runs[i].Completed,
				"error", res.Err,
			)
			continue
		}
		// The stored row, not the submitted one: a completed resubmit
		// leaves the original seq and version in place.
		if res.Run.Completed {
			completed = append(completed, res.Run)
		}
	}

	if len(completed) == 0 {
		return results
	}

	candidates := Candidates(c.entries, completed)
	planned, keys := Plan(c.entries, candidates)
	resolved := c.resolve(bctx, keys)
	updates := Reconcile(planned, resolved)

	for node, rr := range updates {
		c.entries[node] = rr
	}
	c.metrics.SetEntries(len(c.entries))
	c.metrics.RecordReuse(countKind(planned, Resolved))

	slog.Debug("runs reconciled",
		"submitted", len(runs),
		"completed", len(completed),
		"updated", len(updates),
		"resolver_keys", len(keys),
	)

	return results
}

// upsert forwards runs to the store. A batch-level failure or a malformed
// answer turns every slot into a WriteError. Called with mu held.
func (c *Coordinator) upsert(ctx context.Context, runs []run.Run) []run.WriteResult {
	results, err := c.store.UpsertRuns(ctx, runs)
	if err == nil && len(results) != len(runs) {
		err = fmt.Errorf("%w: got %d for %d runs", ErrResultCountMismatch, len(results), len(runs))
	}
	if err != nil {
		slog.Error("run batch write failed",
			"runs", len(runs),
			"error", err,
		)
		out := make([]run.WriteResult, len(runs))
		for i, r := range runs {
			out[i] = run.WriteResult{Run: r, Err: run.NewFailedError(r.ID, err)}
		}
		c.metrics.RecordStoreWrites(0, len(runs))
		return out
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	c.metrics.RecordStoreWrites(len(results)-failed, failed)
	return results
}

// resolve issues the single batched resolver call. It returns nil when
// there is nothing to resolve or the resolver failed. Called with mu held.
func (c *Coordinator) resolve(ctx context.Context, keys []run.ResolveKey) map[run.ResolveKey]*run.ExpectedConfig {
	if len(keys) == 0 || c.resolver == nil {
		return nil
	}

	resolved, err := c.resolver.Resolve(ctx, keys)
	c.metrics.RecordResolverCall(err == nil)
	if err != nil {
		rerr := &ResolverUnavailableError{Keys: keys, Err: err}
		// Log and continue: runs are cached as unresolved.
		slog.Warn("expected config resolution failed",
			"keys", len(keys),
			"error", rerr,
		)
		return nil
	}
	return resolved
}

// ClearCache empties the cache. No backend calls are made.
func (c *Coordinator) ClearCache() {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := len(c.entries)
	c.entries = make(map[run.NodeID]*run.ResolvedRun)

	c.metrics.RecordClear()
	c.metrics.SetEntries(0)
	c.metrics.ObserveOperation(opClearCache, time.Since(start))

	slog.Info("cache cleared", "entries", dropped)
}

// Snapshot returns a deep copy of the whole projection, nil entries included.
func (c *Coordinator) Snapshot() map[run.NodeID]*run.ResolvedRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	return run.CloneMap(c.entries)
}

// Len returns the number of node keys present in the cache.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func dedupeNodeIDs(ids []run.NodeID) []run.NodeID {
	seen := make(map[run.NodeID]struct{}, len(ids))
	out := make([]run.NodeID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func countKind(planned []Planned, kind ResolutionKind) int {
	n := 0
	for _, p := range planned {
		if p.Resolution.Kind == kind {
			n++
		}
	}
	return n
}

package cache

import (
	"cmp"
	"slices"

	"github.com/roach88/runcache/internal/run"
)

// ResolutionKind tags how a completed run obtains its expected config.
type ResolutionKind int

const (
	// Unversioned: the run carries no config version; ConfigInfo stays nil.
	Unversioned ResolutionKind = iota + 1

	// NeedsResolution: the version must be looked up in the resolver.
	NeedsResolution

	// Resolved: the expected config was reused from the cache.
	Resolved
)

func (k ResolutionKind) String() string {
	switch k {
	case Unversioned:
		return "unversioned"
	case NeedsResolution:
		return "needs_resolution"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Resolution is the per-run strategy chosen by Plan.
// Expected is set only for Resolved.
type Resolution struct {
	Kind     ResolutionKind
	Expected *run.ExpectedConfig
}

// Planned pairs a completed run with its resolution strategy.
type Planned struct {
	Run        run.Run
	Resolution Resolution
}

// Candidates selects the completed runs that may replace cache entries.
//
// Per node only the run with the highest InsertionSeq is kept (ties keep the
// later one in input order), and a run older than the currently cached entry
// is dropped so the projection never moves backwards in arrival order.
// Output is ordered by node id.
func Candidates(entries map[run.NodeID]*run.ResolvedRun, completed []run.Run) []run.Run {
	latest := make(map[run.NodeID]run.Run, len(completed))
	for _, r := range completed {
		if prev, ok := latest[r.ID.NodeID]; ok && prev.InsertionSeq > r.InsertionSeq {
			continue
		}
		latest[r.ID.NodeID] = r
	}

	out := make([]run.Run, 0, len(latest))
	for node, r := range latest {
		if cached := entries[node]; cached != nil && cached.InsertionSeq > r.InsertionSeq {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b run.Run) int { return cmp.Compare(a.ID.NodeID, b.ID.NodeID) })
	return out
}

// Plan chooses a resolution for every candidate run and returns the
// deduplicated resolver keys, sorted by node then version.
//
// A cached expected config is reused only when the cached entry's version
// equals the run's version exactly and the cached config was resolved.
func Plan(entries map[run.NodeID]*run.ResolvedRun, candidates []run.Run) ([]Planned, []run.ResolveKey) {
	planned := make([]Planned, 0, len(candidates))
	seen := make(map[run.ResolveKey]struct{})
	var keys []run.ResolveKey

	for _, r := range candidates {
		if r.ConfigVersion == nil {
			planned = append(planned, Planned{Run: r, Resolution: Resolution{Kind: Unversioned}})
			continue
		}

		if expected := reusable(entries[r.ID.NodeID], *r.ConfigVersion); expected != nil {
			planned = append(planned, Planned{Run: r, Resolution: Resolution{Kind: Resolved, Expected: expected}})
			continue
		}

		planned = append(planned, Planned{Run: r, Resolution: Resolution{Kind: NeedsResolution}})
		key := run.ResolveKey{NodeID: r.ID.NodeID, Version: *r.ConfigVersion}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	slices.SortFunc(keys, func(a, b run.ResolveKey) int {
		if c := cmp.Compare(a.NodeID, b.NodeID); c != 0 {
			return c
		}
		return cmp.Compare(a.Version, b.Version)
	})
	return planned, keys
}

func reusable(cached *run.ResolvedRun, version run.ConfigVersion) *run.ExpectedConfig {
	if cached == nil || cached.ConfigInfo == nil || cached.ConfigInfo.Expected == nil {
		return nil
	}
	if cached.ConfigInfo.Version != version {
		return nil
	}
	return cached.ConfigInfo.Expected
}

// Reconcile builds the cache entries for planned runs.
//
// resolved holds the resolver's answer; a nil map (resolver failed or was
// not called) or a missing key leaves the run unresolved. The returned map
// contains only the nodes to replace; merging it into the cache is the
// caller's single atomic step.
func Reconcile(planned []Planned, resolved map[run.ResolveKey]*run.ExpectedConfig) map[run.NodeID]*run.ResolvedRun {
	out := make(map[run.NodeID]*run.ResolvedRun, len(planned))
	for _, p := range planned {
		rr := &run.ResolvedRun{
			ID:           p.Run.ID,
			Completed:    p.Run.Completed,
			InsertionSeq: p.Run.InsertionSeq,
		}

		switch p.Resolution.Kind {
		case Resolved:
			rr.ConfigInfo = &run.ConfigInfo{Version: *p.Run.ConfigVersion, Expected: p.Resolution.Expected}
		case NeedsResolution:
			key := run.ResolveKey{NodeID: p.Run.ID.NodeID, Version: *p.Run.ConfigVersion}
			rr.ConfigInfo = &run.ConfigInfo{Version: key.Version, Expected: resolved[key].Clone()}
		}

		out[p.Run.ID.NodeID] = rr
	}
	return out
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runcache/internal/run"
)

func TestResolutionKind_String(t *testing.T) {
	assert.Equal(t, "unversioned", Unversioned.String())
	assert.Equal(t, "needs_resolution", NeedsResolution.String())
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "unknown", ResolutionKind(0).String())
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name      string
		entries   map[run.NodeID]*run.ResolvedRun
		completed []run.Run
		wantSeqs  map[run.NodeID]int64
	}{
		{
			name:      "empty",
			completed: nil,
			wantSeqs:  map[run.NodeID]int64{},
		},
		{
			name: "latest seq per node wins",
			completed: []run.Run{
				newRun("A", 1, true, 3, ""),
				newRun("A", 2, true, 5, ""),
				newRun("A", 3, true, 4, ""),
				newRun("B", 1, true, 1, ""),
			},
			wantSeqs: map[run.NodeID]int64{"A": 5, "B": 1},
		},
		{
			name: "equal seq keeps later input",
			completed: []run.Run{
				newRun("A", 1, true, 3, ""),
				newRun("A", 9, true, 3, ""),
			},
			wantSeqs: map[run.NodeID]int64{"A": 3},
		},
		{
			name: "older than cached entry is dropped",
			entries: map[run.NodeID]*run.ResolvedRun{
				"A": {InsertionSeq: 10},
				"B": nil,
			},
			completed: []run.Run{
				newRun("A", 1, true, 9, ""),
				newRun("B", 1, true, 1, ""),
			},
			wantSeqs: map[run.NodeID]int64{"B": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Candidates(tt.entries, tt.completed)
			seqs := make(map[run.NodeID]int64, len(got))
			for _, r := range got {
				seqs[r.ID.NodeID] = r.InsertionSeq
			}
			assert.Equal(t, tt.wantSeqs, seqs)
		})
	}
}

func TestCandidates_EqualSeqKeepsLaterTimestamp(t *testing.T) {
	got := Candidates(nil, []run.Run{
		newRun("A", 1, true, 3, ""),
		newRun("A", 9, true, 3, ""),
	})
	require.Len(t, got, 1)
	assert.Equal(t, baseTime.Add(9 * time.Minute), got[0].ID.Timestamp)
}

func TestCandidates_SortedByNode(t *testing.T) {
	got := Candidates(nil, []run.Run{
		newRun("c", 1, true, 1, ""),
		newRun("a", 1, true, 2, ""),
		newRun("b", 1, true, 3, ""),
	})
	require.Len(t, got, 3)
	assert.Equal(t, run.NodeID("a"), got[0].ID.NodeID)
	assert.Equal(t, run.NodeID("b"), got[1].ID.NodeID)
	assert.Equal(t, run.NodeID("c"), got[2].ID.NodeID)
}

func TestPlan(t *testing.T) {
	e1 := expected("A", "v1", map[string]any{"k": "v"})
	entries := map[run.NodeID]*run.ResolvedRun{
		"A": {ConfigInfo: &run.ConfigInfo{Version: "v1", Expected: &e1}},
		"B": {ConfigInfo: &run.ConfigInfo{Version: "v1"}},
		"C": nil,
	}

	planned, keys := Plan(entries, []run.Run{
		newRun("A", 1, true, 1, "v1"),
		newRun("B", 1, true, 2, "v1"),
		newRun("C", 1, true, 3, "v2"),
		newRun("D", 1, true, 4, ""),
	})

	require.Len(t, planned, 4)
	assert.Equal(t, Resolved, planned[0].Resolution.Kind)
	assert.Same(t, &e1, planned[0].Resolution.Expected)
	assert.Equal(t, NeedsResolution, planned[1].Resolution.Kind)
	assert.Equal(t, NeedsResolution, planned[2].Resolution.Kind)
	assert.Equal(t, Unversioned, planned[3].Resolution.Kind)

	assert.Equal(t, []run.ResolveKey{
		{NodeID: "B", Version: "v1"},
		{NodeID: "C", Version: "v2"},
	}, keys)
}

func TestPlan_VersionMismatchNeedsResolution(t *testing.T) {
	e1 := expected("A", "v1", nil)
	entries := map[run.NodeID]*run.ResolvedRun{
		"A": {ConfigInfo: &run.ConfigInfo{Version: "v1", Expected: &e1}},
	}

	planned, keys := Plan(entries, []run.Run{newRun("A", 1, true, 1, "v1.0")})

	require.Len(t, planned, 1)
	assert.Equal(t, NeedsResolution, planned[0].Resolution.Kind)
	assert.Equal(t, []run.ResolveKey{{NodeID: "A", Version: "v1.0"}}, keys)
}

func TestReconcile(t *testing.T) {
	e1 := expected("A", "v1", map[string]any{"k": "cached"})
	e2 := expected("B", "v2", map[string]any{"k": "resolved"})

	planned := []Planned{
		{Run: newRun("A", 1, true, 1, "v1"), Resolution: Resolution{Kind: Resolved, Expected: &e1}},
		{Run: newRun("B", 1, true, 2, "v2"), Resolution: Resolution{Kind: NeedsResolution}},
		{Run: newRun("C", 1, true, 3, "v3"), Resolution: Resolution{Kind: NeedsResolution}},
		{Run: newRun("D", 1, true, 4, ""), Resolution: Resolution{Kind: Unversioned}},
	}
	resolved := map[run.ResolveKey]*run.ExpectedConfig{e2.Key(): &e2}

	got := Reconcile(planned, resolved)

	require.Len(t, got, 4)
	assert.Equal(t, &run.ConfigInfo{Version: "v1", Expected: &e1}, got["A"].ConfigInfo)
	assert.Equal(t, &run.ConfigInfo{Version: "v2", Expected: &e2}, got["B"].ConfigInfo)
	assert.NotSame(t, &e2, got["B"].ConfigInfo.Expected, "resolver answers are copied")
	assert.Equal(t, &run.ConfigInfo{Version: "v3"}, got["C"].ConfigInfo)
	assert.Nil(t, got["D"].ConfigInfo)

	for node, rr := range got {
		assert.True(t, rr.Completed, node)
	}
	assert.Equal(t, int64(4), got["D"].InsertionSeq)
}

func TestReconcile_NilResolvedLeavesUnresolved(t *testing.T) {
	planned := []Planned{
		{Run: newRun("A", 1, true, 1, "v1"), Resolution: Resolution{Kind: NeedsResolution}},
	}

	got := Reconcile(planned, nil)

	require.NotNil(t, got["A"].ConfigInfo)
	assert.Equal(t, run.ConfigVersion("v1"), got["A"].ConfigInfo.Version)
	assert.Nil(t, got["A"].ConfigInfo.Expected)
}

func TestReconcile_DoesNotTouchInputs(t *testing.T) {
	entries := map[run.NodeID]*run.ResolvedRun{
		"A": {InsertionSeq: 1},
	}
	completed := []run.Run{newRun("A", 2, true, 2, "")}

	candidates := Candidates(entries, completed)
	planned, keys := Plan(entries, candidates)
	updates := Reconcile(planned, nil)

	assert.Empty(t, keys)
	assert.Equal(t, int64(1), entries["A"].InsertionSeq)
	assert.Equal(t, int64(2), updates["A"].InsertionSeq)
}

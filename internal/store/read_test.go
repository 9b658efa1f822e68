package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/roach88/runcache/internal/run"
)

func mustUpsert(t *testing.T, s *Store, runs ...run.Run) {
	t.Helper()
	results, err := s.UpsertRuns(context.Background(), runs)
	if err != nil {
		t.Fatalf("UpsertRuns() failed: %v", err)
	}
	for i, res := range results {
		if !res.OK() {
			t.Fatalf("result[%d] failed: %v", i, res.Err)
		}
	}
}

func TestReadLastRuns_EveryRequestedIDPresent(t *testing.T) {
	s := createTestStore(t)
	mustUpsert(t, s, createTestRun("a", 0, true, 1, ""))

	got, err := s.ReadLastRuns(context.Background(), []run.NodeID{"a", "b", "c", "b"})
	if err != nil {
		t.Fatalf("ReadLastRuns() failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3: %v", len(got), got)
	}
	if got["a"] == nil {
		t.Error("node a should have a last run")
	}
	for _, id := range []run.NodeID{"b", "c"} {
		v, ok := got[id]
		if !ok {
			t.Errorf("node %s missing from result", id)
		}
		if v != nil {
			t.Errorf("node %s = %+v, want nil (no run)", id, v)
		}
	}
}

func TestReadLastRuns_OrdersByInsertionSeqNotTimestamp(t *testing.T) {
	s := createTestStore(t)

	// The later-arriving run has an older timestamp (skewed node clock).
	mustUpsert(t, s,
		createTestRun("a", 10, true, 1, ""),
		createTestRun("a", 0, true, 2, ""),
	)

	got, err := s.ReadLastRuns(context.Background(), []run.NodeID{"a"})
	if err != nil {
		t.Fatalf("ReadLastRuns() failed: %v", err)
	}
	if got["a"].InsertionSeq != 2 {
		t.Errorf("last run seq = %d, want 2", got["a"].InsertionSeq)
	}
	if !got["a"].ID.Timestamp.Equal(baseTime) {
		t.Errorf("last run timestamp = %v, want %v", got["a"].ID.Timestamp, baseTime)
	}
}

func TestReadLastRuns_JoinsExpectedConfig(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.PutExpectedConfig(ctx, run.ExpectedConfig{
		NodeID: "a", Version: "v1", Document: map[string]any{"pkg": "nginx"},
	}); err != nil {
		t.Fatalf("PutExpectedConfig() failed: %v", err)
	}
	mustUpsert(t, s,
		createTestRun("a", 0, true, 1, "v1"),
		createTestRun("b", 0, true, 2, "v9"),
		createTestRun("c", 0, true, 3, ""),
	)

	got, err := s.ReadLastRuns(ctx, []run.NodeID{"a", "b", "c"})
	if err != nil {
		t.Fatalf("ReadLastRuns() failed: %v", err)
	}

	a := got["a"]
	if a.ConfigInfo == nil || a.ConfigInfo.Version != "v1" || a.ConfigInfo.Expected == nil {
		t.Fatalf("node a config info = %+v, want resolved v1", a.ConfigInfo)
	}
	if a.ConfigInfo.Expected.Document["pkg"] != "nginx" {
		t.Errorf("node a document = %v", a.ConfigInfo.Expected.Document)
	}

	b := got["b"]
	if b.ConfigInfo == nil || b.ConfigInfo.Version != "v9" || b.ConfigInfo.Expected != nil {
		t.Errorf("node b config info = %+v, want unresolved v9", b.ConfigInfo)
	}

	if got["c"].ConfigInfo != nil {
		t.Errorf("node c config info = %+v, want nil", got["c"].ConfigInfo)
	}
}

func TestReadLastRuns_IgnoresNotCompletedRuns(t *testing.T) {
	s := createTestStore(t)
	mustUpsert(t, s,
		createTestRun("a", 0, true, 1, "v1"),
		createTestRun("a", 5, false, 2, "v2"),
		createTestRun("b", 0, false, 3, ""),
	)

	got, err := s.ReadLastRuns(context.Background(), []run.NodeID{"a", "b"})
	if err != nil {
		t.Fatalf("ReadLastRuns() failed: %v", err)
	}

	a := got["a"]
	if a == nil {
		t.Fatal("node a should have a last run")
	}
	if !a.Completed || a.InsertionSeq != 1 || !a.ID.Timestamp.Equal(baseTime) {
		t.Errorf("node a = %+v, want the completed run at seq 1", a)
	}
	if a.ConfigInfo == nil || a.ConfigInfo.Version != "v1" {
		t.Errorf("node a config info = %+v, want v1", a.ConfigInfo)
	}

	if v, ok := got["b"]; !ok || v != nil {
		t.Errorf("node b = %+v (present=%v), want nil: it has no completed run", v, ok)
	}
}

func TestReadLastRuns_PendingRunBecomesLastOnceCompleted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s,
		createTestRun("a", 0, true, 1, ""),
		createTestRun("a", 5, false, 2, ""),
	)
	mustUpsert(t, s, createTestRun("a", 5, true, 3, ""))

	got, err := s.ReadLastRuns(ctx, []run.NodeID{"a"})
	if err != nil {
		t.Fatalf("ReadLastRuns() failed: %v", err)
	}
	if got["a"] == nil || got["a"].InsertionSeq != 3 || !got["a"].Completed {
		t.Errorf("node a = %+v, want the completed run at seq 3", got["a"])
	}
}

func TestReadLastRuns_ManyIDsAreChunked(t *testing.T) {
	s := createTestStore(t)

	var ids []run.NodeID
	for i := 0; i < maxQueryParams+25; i++ {
		ids = append(ids, run.NodeID(fmt.Sprintf("node-%04d", i)))
	}
	mustUpsert(t, s, createTestRun(string(ids[len(ids)-1]), 0, true, 1, ""))

	got, err := s.ReadLastRuns(context.Background(), ids)
	if err != nil {
		t.Fatalf("ReadLastRuns() failed: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("got %d entries, want %d", len(got), len(ids))
	}
	if got[ids[len(ids)-1]] == nil {
		t.Error("run in the second chunk not found")
	}
}

func TestReadLastRuns_ClosedStoreFails(t *testing.T) {
	s := createTestStore(t)
	s.Close()

	if _, err := s.ReadLastRuns(context.Background(), []run.NodeID{"a"}); err == nil {
		t.Error("expected error from closed store")
	}
}

func TestResolve_OmitsUnknownKeys(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	known := run.ResolveKey{NodeID: "a", Version: "v1"}
	unknown := run.ResolveKey{NodeID: "a", Version: "v2"}
	if err := s.PutExpectedConfig(ctx, run.ExpectedConfig{NodeID: "a", Version: "v1", Document: map[string]any{"n": 1}}); err != nil {
		t.Fatalf("PutExpectedConfig() failed: %v", err)
	}

	got, err := s.Resolve(ctx, []run.ResolveKey{known, unknown, known})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1: %v", len(got), got)
	}
	if got[known].Document["n"] != int64(1) {
		t.Errorf("document = %#v, want n=int64(1)", got[known].Document)
	}
	if _, ok := got[unknown]; ok {
		t.Error("unknown key should be omitted")
	}
}

func TestResolve_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestMaxInsertionSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.MaxInsertionSeq(ctx)
	if err != nil {
		t.Fatalf("MaxInsertionSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("empty store seq = %d, want 0", seq)
	}

	mustUpsert(t, s, createTestRun("a", 0, true, 7, ""), createTestRun("b", 0, true, 3, ""))

	seq, err = s.MaxInsertionSeq(ctx)
	if err != nil {
		t.Fatalf("MaxInsertionSeq() failed: %v", err)
	}
	if seq != 7 {
		t.Errorf("seq = %d, want 7", seq)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), run.ID{NodeID: "nope", Timestamp: baseTime})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("error = %v, want sql.ErrNoRows", err)
	}
}

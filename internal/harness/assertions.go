package harness

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/roach88/runcache/internal/run"
)

// checkStep compares a step record against the step's want block.
// Returns one message per failed assertion.
func checkStep(i int, step Step, rec StepRecord) []string {
	want := step.Want
	if want == nil {
		return nil
	}

	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("steps[%d] %s: ", i, step.Op)+fmt.Sprintf(format, args...))
	}

	if want.Results != nil && !slices.Equal(want.Results, rec.Results) {
		fail("results: expected %v, got %v", want.Results, rec.Results)
	}

	if want.StoreReads != nil {
		got := nodeLists(rec.StoreReads)
		if !equalLists(*want.StoreReads, got) {
			fail("store reads: expected %v, got %v", *want.StoreReads, got)
		}
	}

	if want.ResolverCalls != nil {
		got := keyLists(rec.ResolverCalls)
		if !equalLists(*want.ResolverCalls, got) {
			fail("resolver calls: expected %v, got %v", *want.ResolverCalls, got)
		}
	}

	if want.Error != rec.Error {
		fail("error: expected %q, got %q", want.Error, rec.Error)
	}

	if want.Runs != nil {
		gotKeys := slices.Sorted(maps.Keys(rec.Runs))
		wantKeys := make([]run.NodeID, 0, len(want.Runs))
		for k := range want.Runs {
			wantKeys = append(wantKeys, run.NodeID(k))
		}
		slices.Sort(wantKeys)
		if !slices.Equal(wantKeys, gotKeys) {
			fail("returned nodes: expected %v, got %v", wantKeys, gotKeys)
		}
		for _, node := range wantKeys {
			got, ok := rec.Runs[node]
			if !ok {
				continue
			}
			for _, msg := range matchRun(want.Runs[string(node)], got) {
				fail("node %s: %s", node, msg)
			}
		}
	}

	return errs
}

// matchRun is a subset match of want against got.
func matchRun(want *RunWant, got *run.ResolvedRun) []string {
	if want == nil {
		if got != nil {
			return []string{fmt.Sprintf("expected no run, got %s", got.ID)}
		}
		return nil
	}
	if got == nil {
		return []string{"expected a run, got none"}
	}

	var errs []string
	if want.Minute != nil {
		ts := BaseTime.Add(time.Duration(*want.Minute) * time.Minute)
		if !got.ID.Timestamp.Equal(ts) {
			errs = append(errs, fmt.Sprintf("timestamp: expected minute %d (%s), got %s",
				*want.Minute, ts.Format(time.RFC3339), got.ID.Timestamp.Format(time.RFC3339)))
		}
	}
	if want.Completed != nil && *want.Completed != got.Completed {
		errs = append(errs, fmt.Sprintf("completed: expected %t, got %t", *want.Completed, got.Completed))
	}
	if want.Seq != nil && *want.Seq != got.InsertionSeq {
		errs = append(errs, fmt.Sprintf("seq: expected %d, got %d", *want.Seq, got.InsertionSeq))
	}
	if want.Version != nil {
		gotVersion := ""
		if got.ConfigInfo != nil {
			gotVersion = string(got.ConfigInfo.Version)
		}
		if *want.Version != gotVersion {
			errs = append(errs, fmt.Sprintf("version: expected %q, got %q", *want.Version, gotVersion))
		}
	}
	if want.Resolved != nil {
		resolved := got.ConfigInfo != nil && got.ConfigInfo.Expected != nil
		if *want.Resolved != resolved {
			errs = append(errs, fmt.Sprintf("resolved: expected %t, got %t", *want.Resolved, resolved))
		}
	}
	return errs
}

// checkFinal evaluates the scenario-level assertions.
func checkFinal(s *Scenario, result *Result) []string {
	var errs []string

	if s.FinalKeys != nil {
		got := make([]string, 0, len(result.Final))
		for k := range result.Final {
			got = append(got, string(k))
		}
		slices.Sort(got)
		want := slices.Sorted(slices.Values(s.FinalKeys))
		if !slices.Equal(want, got) {
			errs = append(errs, fmt.Sprintf("final keys: expected %v, got %v", want, got))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(s.Metrics)) {
		want := s.Metrics[name]
		got, ok := result.Metrics[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("metric %s: not recorded", name))
			continue
		}
		if got != want {
			errs = append(errs, fmt.Sprintf("metric %s: expected %v, got %v", name, want, got))
		}
	}

	return errs
}

func nodeLists(calls [][]run.NodeID) [][]string {
	out := make([][]string, len(calls))
	for i, ids := range calls {
		out[i] = make([]string, len(ids))
		for j, id := range ids {
			out[i][j] = string(id)
		}
	}
	return out
}

func keyLists(calls [][]run.ResolveKey) [][]string {
	out := make([][]string, len(calls))
	for i, keys := range calls {
		out[i] = make([]string, len(keys))
		for j, k := range keys {
			out[i][j] = k.String()
		}
	}
	return out
}

func equalLists(a, b [][]string) bool {
	return slices.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}

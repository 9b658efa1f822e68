package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/runcache/internal/run"
)

// Snapshot renders the step log and final cache of a result as a canonical
// JSON document. Get results are left out; the final cache covers them.
func Snapshot(name string, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, rec := range result.Steps {
		m := map[string]any{"op": rec.Op}
		if len(rec.StoreReads) > 0 {
			m["store_reads"] = listsToAny(nodeLists(rec.StoreReads))
		}
		if len(rec.ResolverCalls) > 0 {
			m["resolver_calls"] = listsToAny(keyLists(rec.ResolverCalls))
		}
		if len(rec.Results) > 0 {
			m["results"] = stringsToAny(rec.Results)
		}
		if rec.Error != "" {
			m["error"] = rec.Error
		}
		steps[i] = m
	}

	final := make(map[string]any, len(result.Final))
	for node, rr := range result.Final {
		final[string(node)] = resolvedRunToMap(rr)
	}

	return run.MarshalCanonical(map[string]any{
		"scenario": name,
		"steps":    steps,
		"final":    final,
	})
}

func resolvedRunToMap(rr *run.ResolvedRun) any {
	if rr == nil {
		return nil
	}
	m := map[string]any{
		"run_timestamp": rr.ID.Timestamp.UTC().Format(time.RFC3339Nano),
		"completed":     rr.Completed,
		"insertion_seq": rr.InsertionSeq,
	}
	if rr.ConfigInfo != nil {
		info := map[string]any{
			"version":  string(rr.ConfigInfo.Version),
			"expected": nil,
		}
		if rr.ConfigInfo.Expected != nil {
			info["expected"] = rr.ConfigInfo.Expected.Document
		}
		m["config_info"] = info
	}
	return m
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func listsToAny(in [][]string) []any {
	out := make([]any, len(in))
	for i, l := range in {
		out[i] = stringsToAny(l)
	}
	return out
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

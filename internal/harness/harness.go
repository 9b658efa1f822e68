package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/runcache/internal/cache"
	"github.com/roach88/runcache/internal/expect"
	"github.com/roach88/runcache/internal/ingest"
	"github.com/roach88/runcache/internal/observability"
	"github.com/roach88/runcache/internal/run"
	"github.com/roach88/runcache/internal/store"
	"github.com/roach88/runcache/internal/testutil"
)

// BaseTime is minute 0 of every scenario.
var BaseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness holds the per-scenario wiring.
type Harness struct {
	store    *store.Store
	runs     *countingStore
	resolver *countingResolver
	coord    *cache.Coordinator
	ingester *ingest.Ingester
	registry *prometheus.Registry
	dir      string
}

// Run executes a scenario in a fresh in-memory database and returns the
// result. Assertion failures are reported in Result.Errors; the error
// return is reserved for infrastructure failures.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario.dir)
	ctx := context.Background()

	result := NewResult()
	for i, step := range scenario.Steps {
		rec, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		result.Steps = append(result.Steps, rec)
		for _, msg := range checkStep(i, step, rec) {
			result.AddError(msg)
		}
	}

	result.Final = h.coord.Snapshot()

	samples, err := observability.Summarize(h.registry)
	if err != nil {
		return nil, err
	}
	for _, s := range samples {
		result.Metrics[s.Name] = s.Value
	}

	for _, msg := range checkFinal(scenario, result) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, dir string) *Harness {
	runs := &countingStore{inner: st}
	resolver := &countingResolver{inner: st}
	reg := prometheus.NewRegistry()
	coord := cache.New(runs, resolver, cache.WithMetrics(observability.NewMetrics(reg)))

	return &Harness{
		store:    st,
		runs:     runs,
		resolver: resolver,
		coord:    coord,
		ingester: ingest.New(coord, ingest.WithBatchIDs(testutil.NewSequentialBatchIDs("batch"))),
		registry: reg,
		dir:      dir,
	}
}

func (h *Harness) execute(ctx context.Context, step Step) (StepRecord, error) {
	rec := StepRecord{Op: step.Op}

	switch step.Op {
	case OpSubmit:
		results, err := h.submit(ctx, step.Runs)
		if err != nil {
			return rec, err
		}
		rec.Results = results

	case OpGet:
		ids := make([]run.NodeID, len(step.Nodes))
		for i, n := range step.Nodes {
			ids[i] = run.NodeID(n)
		}
		got, err := h.coord.GetLastRuns(ctx, ids)
		switch {
		case err == nil:
			rec.Runs = got
		case cache.IsBackendUnavailable(err):
			rec.Error = string(cache.ErrCodeBackendUnavailable)
		default:
			return rec, err
		}

	case OpClear:
		h.coord.ClearCache()

	case OpExpect:
		if err := h.registerExpected(ctx, step); err != nil {
			return rec, err
		}
		h.coord.ClearCache()

	case OpResolverDown:
		h.resolver.setDown(true)
	case OpResolverUp:
		h.resolver.setDown(false)
	case OpStoreDown:
		h.runs.setDown(true)
	case OpStoreUp:
		h.runs.setDown(false)

	default:
		return rec, fmt.Errorf("unknown op %q", step.Op)
	}

	rec.StoreReads = h.runs.takeReads()
	rec.ResolverCalls = h.resolver.takeCalls()
	return rec, nil
}

func (h *Harness) submit(ctx context.Context, specs []RunSpec) ([]string, error) {
	for _, spec := range specs {
		report := ingest.Report{
			NodeID:        run.NodeID(spec.Node),
			Timestamp:     BaseTime.Add(time.Duration(spec.Minute) * time.Minute),
			Completed:     spec.Completed,
			ConfigVersion: spec.Version,
		}
		if _, ok := h.ingester.Enqueue(report); !ok {
			return nil, errors.New("ingester closed")
		}
	}

	results, err := h.ingester.Drain(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(results))
	for i, r := range results {
		out[i] = resultLabel(r)
	}
	return out, nil
}

func resultLabel(r run.WriteResult) string {
	switch {
	case r.Err == nil:
		return ResultOK
	case run.IsRejected(r.Err):
		return ResultRejected
	default:
		return ResultFailed
	}
}

func (h *Harness) registerExpected(ctx context.Context, step Step) error {
	var cfgs []run.ExpectedConfig
	for _, c := range step.Configs {
		cfgs = append(cfgs, run.ExpectedConfig{
			NodeID:   run.NodeID(c.Node),
			Version:  run.ConfigVersion(c.Version),
			Document: c.Config,
		})
	}
	if step.File != "" {
		path := step.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(h.dir, path)
		}
		loaded, err := expect.LoadFile(path)
		if err != nil {
			return err
		}
		cfgs = append(cfgs, loaded...)
	}

	for _, cfg := range cfgs {
		if err := h.store.PutExpectedConfig(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

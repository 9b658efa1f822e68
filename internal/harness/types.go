package harness

import (
	"github.com/roach88/runcache/internal/run"
)

// StepRecord is what one step did against the backends.
type StepRecord struct {
	Op            string
	StoreReads    [][]run.NodeID
	ResolverCalls [][]run.ResolveKey

	// Results are the write outcomes of a submit step.
	Results []string

	// Error is the error code of a failed get step.
	Error string

	// Runs are the runs returned by a get step.
	Runs map[run.NodeID]*run.ResolvedRun
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool

	// Errors contains assertion failure messages.
	Errors []string

	Steps []StepRecord

	// Final is the cache snapshot after the last step.
	Final map[run.NodeID]*run.ResolvedRun

	// Metrics are the coordinator's flattened metric samples.
	Metrics map[string]float64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Errors:  []string{},
		Steps:   []StepRecord{},
		Metrics: map[string]float64{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/ingest"
	"github.com/roach88/runcache/internal/run"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Database  string
	BatchSize int
}

// SubmitRunResult is the outcome of one reported run.
type SubmitRunResult struct {
	Node          string `json:"node"`
	Timestamp     string `json:"timestamp"`
	Completed     bool   `json:"completed"`
	ConfigVersion string `json:"config_version,omitempty"`
	InsertionSeq  int64  `json:"insertion_seq"`
	Status        string `json:"status"` // "ok" | "rejected" | "failed"
	Error         string `json:"error,omitempty"`
}

// SubmitResult holds the outcome of a submit invocation.
type SubmitResult struct {
	Runs   []SubmitRunResult `json:"runs"`
	Stored int               `json:"stored"`
	Failed int               `json:"failed"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <reports.yaml>",
		Short: "Submit agent run reports",
		Long: `Read run reports from a YAML file and submit them through the cache.

Reports are stamped with insertion sequence numbers in file order, continuing
from the highest sequence already stored, and written in batches.

Report file format:
  runs:
    - node: web-1
      timestamp: 2025-01-01T00:00:00Z
      completed: true
      config_version: v2

Exit codes:
  0 - All runs stored
  1 - At least one run was rejected or failed
  2 - Command error (unreadable file, database not found, etc.)

Examples:
  runcache submit reports.yaml
  runcache submit --db ./runcache.db --batch-size 16 reports.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "runs per batch (default from config)")

	return cmd
}

func runSubmit(opts *SubmitOptions, cmd *cobra.Command, path string) error {
	ctx := context.Background()

	cfg, err := opts.loadConfig(opts.Database)
	if err != nil {
		return err
	}
	batchSize := cfg.Ingest.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	reports, err := ingest.LoadReports(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load reports", err)
	}

	b, err := openBackend(cfg.Database)
	if err != nil {
		return err
	}
	defer b.Close()

	seq, err := b.store.MaxInsertionSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read insertion sequence", err)
	}

	in := ingest.New(b.coord,
		ingest.WithBatchSize(batchSize),
		ingest.WithQueueCapacity(cfg.Ingest.QueueCapacityHint),
		ingest.WithClock(ingest.NewClockAt(seq)),
	)
	for _, r := range reports {
		in.Enqueue(r)
	}

	results, err := in.Drain(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "submit interrupted", err)
	}

	result := SubmitResult{Runs: make([]SubmitRunResult, 0, len(results))}
	for _, wr := range results {
		rr := toSubmitRunResult(wr)
		if wr.OK() {
			result.Stored++
		} else {
			result.Failed++
		}
		result.Runs = append(result.Runs, rr)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if err := outputSubmit(formatter, result); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d run(s) were not stored", result.Failed, len(results)))
	}
	return nil
}

func toSubmitRunResult(wr run.WriteResult) SubmitRunResult {
	rr := SubmitRunResult{
		Node:         string(wr.Run.ID.NodeID),
		Timestamp:    wr.Run.ID.Timestamp.UTC().Format(time.RFC3339Nano),
		Completed:    wr.Run.Completed,
		InsertionSeq: wr.Run.InsertionSeq,
		Status:       "ok",
	}
	if wr.Run.ConfigVersion != nil {
		rr.ConfigVersion = string(*wr.Run.ConfigVersion)
	}
	if wr.Err != nil {
		rr.Status = "failed"
		if run.IsRejected(wr.Err) {
			rr.Status = "rejected"
		}
		rr.Error = wr.Err.Error()
	}
	return rr
}

func outputSubmit(formatter *OutputFormatter, result SubmitResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, r := range result.Runs {
		mark := "✓"
		if r.Status != "ok" {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s %s seq=%d %s\n", mark, r.Node, r.Timestamp, r.InsertionSeq, r.Status)
		if r.Error != "" {
			fmt.Fprintf(w, "    %s\n", r.Error)
		}
	}
	fmt.Fprintf(w, "\nStored %d run(s), %d failed\n", result.Stored, result.Failed)
	return nil
}

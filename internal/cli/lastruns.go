package cli

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/cache"
	"github.com/roach88/runcache/internal/run"
)

// LastRunsOptions holds flags for the last-runs command.
type LastRunsOptions struct {
	*RootOptions
	Database string
}

// LastRunView is the last run of one node as printed by the CLI.
type LastRunView struct {
	Node          string         `json:"node"`
	Found         bool           `json:"found"`
	Timestamp     string         `json:"timestamp,omitempty"`
	Completed     bool           `json:"completed"`
	InsertionSeq  int64          `json:"insertion_seq,omitempty"`
	ConfigVersion string         `json:"config_version,omitempty"`
	Expected      map[string]any `json:"expected,omitempty"`
}

// NewLastRunsCommand creates the last-runs command.
func NewLastRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LastRunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "last-runs <node>...",
		Short: "Show the last completed run of each node",
		Long: `Look up the last completed run of every given node. Runs still in
progress are not reported.

Nodes without a completed run are listed as "no runs".

Exit codes:
  0 - Lookup succeeded
  2 - Command error (run store unavailable, etc.)

Examples:
  runcache last-runs web-1 web-2
  runcache last-runs --db ./runcache.db --format json web-1`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLastRuns(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	return cmd
}

func runLastRuns(opts *LastRunsOptions, cmd *cobra.Command, args []string) error {
	cfg, err := opts.loadConfig(opts.Database)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg.Database)
	if err != nil {
		return err
	}
	defer b.Close()

	runs, err := b.coord.GetLastRuns(context.Background(), toNodeIDs(args))
	if err != nil {
		return lookupError(err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	return outputLastRuns(formatter, lastRunViews(runs))
}

func toNodeIDs(args []string) []run.NodeID {
	ids := make([]run.NodeID, len(args))
	for i, a := range args {
		ids[i] = run.NodeID(a)
	}
	return ids
}

func lookupError(err error) error {
	if cache.IsBackendUnavailable(err) {
		return WrapExitError(ExitCommandError, "run store unavailable", err)
	}
	return WrapExitError(ExitCommandError, "lookup failed", err)
}

// lastRunViews flattens a lookup answer, sorted by node.
func lastRunViews(runs map[run.NodeID]*run.ResolvedRun) []LastRunView {
	views := make([]LastRunView, 0, len(runs))
	for node, rr := range runs {
		v := LastRunView{Node: string(node)}
		if rr != nil {
			v.Found = true
			v.Timestamp = rr.ID.Timestamp.UTC().Format(time.RFC3339Nano)
			v.Completed = rr.Completed
			v.InsertionSeq = rr.InsertionSeq
			if rr.ConfigInfo != nil {
				v.ConfigVersion = string(rr.ConfigInfo.Version)
				if rr.ConfigInfo.Expected != nil {
					v.Expected = rr.ConfigInfo.Expected.Document
				}
			}
		}
		views = append(views, v)
	}
	slices.SortFunc(views, func(a, b LastRunView) int {
		return cmp.Compare(a.Node, b.Node)
	})
	return views
}

func outputLastRuns(formatter *OutputFormatter, views []LastRunView) error {
	if formatter.Format == "json" {
		return formatter.Success(views)
	}

	w := formatter.Writer
	for _, v := range views {
		if !v.Found {
			fmt.Fprintf(w, "%s  no runs\n", v.Node)
			continue
		}
		state := "incomplete"
		if v.Completed {
			state = "completed"
		}
		fmt.Fprintf(w, "%s  %s  %s  seq=%d", v.Node, v.Timestamp, state, v.InsertionSeq)
		if v.ConfigVersion != "" {
			resolved := "unresolved"
			if v.Expected != nil {
				resolved = "resolved"
			}
			fmt.Fprintf(w, "  config=%s (%s)", v.ConfigVersion, resolved)
		}
		fmt.Fprintln(w)
		if v.Expected != nil {
			formatter.VerboseLog("  %s expected: %v", v.Node, v.Expected)
		}
	}
	return nil
}

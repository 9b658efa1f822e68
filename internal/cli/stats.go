package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/observability"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
	Rounds   int
}

// StatsResult holds the coordinator metrics after the lookup rounds.
type StatsResult struct {
	Nodes        []string               `json:"nodes"`
	Rounds       int                    `json:"rounds"`
	CacheEntries int                    `json:"cache_entries"`
	Metrics      []observability.Sample `json:"metrics"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats <node>...",
		Short: "Exercise the cache and print its metrics",
		Long: `Look up the given nodes repeatedly through one coordinator and print
the coordinator's metrics. The first round reads from the run store, later
rounds are answered from the cache.

Exit codes:
  0 - Lookups succeeded
  2 - Command error (run store unavailable, etc.)

Examples:
  runcache stats web-1 web-2
  runcache stats --rounds 5 --format json web-1`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 2, "number of lookup rounds")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command, args []string) error {
	if opts.Rounds < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--rounds must be positive, got %d", opts.Rounds))
	}

	cfg, err := opts.loadConfig(opts.Database)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg.Database)
	if err != nil {
		return err
	}
	defer b.Close()

	ids := toNodeIDs(args)
	for i := 0; i < opts.Rounds; i++ {
		if _, err := b.coord.GetLastRuns(context.Background(), ids); err != nil {
			return lookupError(err)
		}
	}

	samples, err := observability.Summarize(b.registry)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to gather metrics", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(StatsResult{
			Nodes:        args,
			Rounds:       opts.Rounds,
			CacheEntries: b.coord.Len(),
			Metrics:      samples,
		})
	}

	fmt.Fprintf(formatter.Writer, "%d node(s) cached after %d round(s)\n", b.coord.Len(), opts.Rounds)

	for _, s := range samples {
		fmt.Fprintf(formatter.Writer, "%-60s %g\n", s.Name, s.Value)
	}
	return nil
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/expect"
)

// ExpectOptions holds flags for the expect command.
type ExpectOptions struct {
	*RootOptions
	Database string
}

// ExpectedEntry is one registered expected configuration.
type ExpectedEntry struct {
	Node    string `json:"node"`
	Version string `json:"version"`
	Digest  string `json:"digest"`
}

// ExpectResult holds the outcome of an expect invocation.
type ExpectResult struct {
	Registered []ExpectedEntry `json:"registered"`
}

// NewExpectCommand creates the expect command.
func NewExpectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expect <configs.yaml|configs.cue>",
		Short: "Register expected configurations",
		Long: `Register the expected configuration of (node, version) pairs.

Entries replace any configuration already stored for the same pair. The
cache is cleared afterwards so later lookups resolve against the new set.

Exit codes:
  0 - All configurations registered
  2 - Command error (invalid file, database not found, etc.)

Examples:
  runcache expect expected.yaml
  runcache expect --db ./runcache.db expected.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpect(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	return cmd
}

func runExpect(opts *ExpectOptions, cmd *cobra.Command, path string) error {
	ctx := context.Background()

	cfg, err := opts.loadConfig(opts.Database)
	if err != nil {
		return err
	}

	configs, err := expect.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load expected configs", err)
	}

	b, err := openBackend(cfg.Database)
	if err != nil {
		return err
	}
	defer b.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := ExpectResult{Registered: make([]ExpectedEntry, 0, len(configs))}
	for _, ec := range configs {
		digest, err := ec.Digest()
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to digest %s", ec.Key()), err)
		}
		if err := b.store.PutExpectedConfig(ctx, ec); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to store %s", ec.Key()), err)
		}
		formatter.VerboseLog("registered %s (%s)", ec.Key(), digest[:12])
		result.Registered = append(result.Registered, ExpectedEntry{
			Node:    string(ec.NodeID),
			Version: string(ec.Version),
			Digest:  digest,
		})
	}

	// The expected set changed: cached resolutions may be stale.
	b.coord.ClearCache()

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	w := formatter.Writer
	for _, e := range result.Registered {
		fmt.Fprintf(w, "✓ %s/%s %s\n", e.Node, e.Version, e.Digest[:12])
	}
	fmt.Fprintf(w, "\nRegistered %d expected config(s)\n", len(result.Registered))
	return nil
}

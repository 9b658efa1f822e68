package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/runcache/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the runcache CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "runcache",
		Short: "runcache - last-run cache for configuration agents",
		Long: `Record agent run reports and answer "what was the last run of node X"
from a write-through cache in front of a SQLite run store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := opts.loadConfig("")
			if err != nil {
				return err
			}
			level, err := logLevel(cfg, opts.Verbose)
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), opts.Format, level))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to runcache.toml")

	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewLastRunsCommand(opts))
	cmd.AddCommand(NewExpectCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Command errors are reported on stderr in the selected output format.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			// Argument and flag errors from cobra.
			err = WrapExitError(ExitCommandError, "invalid usage", err)
		}
		format, _ := cmd.PersistentFlags().GetString("format")
		return ReportError(format, stderr, err)
	}
	return ExitSuccess
}

// loadConfig resolves the configuration file and applies a non-empty
// --db override.
func (o *RootOptions) loadConfig(database string) (config.Config, error) {
	cfg, err := config.LoadOrDefault(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if database != "" {
		cfg.Database = database
	}
	return cfg, nil
}

// logLevel is the configured level, or debug under --verbose. A level the
// config cannot name is a command error even under --verbose.
func logLevel(cfg config.Config, verbose bool) (slog.Level, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if verbose {
		return slog.LevelDebug, nil
	}
	return level, nil
}

// newLogger returns a JSON handler for machine output and a tint handler
// otherwise. Colour is only used when w is a terminal.
func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(w),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

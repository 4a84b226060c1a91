package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// RootOptions holds the persistent flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string
}

// NewRootCommand builds the vigil command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vigil",
		Short: "Watch a store, react to transitions, supervise invariants",
		Long: `vigil runs YAML scenarios against its coordination engine.

Each scenario seeds a store, starts a single watch (observe_until,
observe_while, observe_and_run or run_while) and then dispatches its steps
one by one. Use --db to journal a run to SQLite and "vigil trace" to read
the journal back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.Format {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("invalid format %q: want text or json", opts.Format)
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine activity to stderr")
	flags.StringVar(&opts.Format, "format", "text", "output format: text or json")

	cmd.AddCommand(
		NewRunCommand(opts),
		NewValidateCommand(opts),
		NewTestCommand(opts),
		NewTraceCommand(opts),
	)
	return cmd
}

// newLogger writes text records to w. Only warnings and errors are shown
// unless verbose is set.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

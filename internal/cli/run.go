package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/harness"
	"github.com/roach88/vigil/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Metrics  bool
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string             `json:"scenario"`
	Result   *harness.Result    `json:"result"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario against the engine",
		Long: `Run a scenario file and report the trace, the watch outcome and
any failed expectations.

With --db, every mutation and the session outcome are appended to a SQLite
journal (created if it doesn't exist). Sequence numbers continue from the
journal's last mutation.

Exit codes:
  0 - Scenario passed
  1 - Scenario expectations failed
  2 - Command error (invalid scenario, database error, etc.)

Example:
  vigil run ./scenarios/horse.yaml
  vigil run ./scenarios/horse.yaml --db ./vigil.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (optional)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report engine metric counters")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = f.Fail(ErrCodeLoad, err)
		return exitError(ExitCommandError, "failed to load scenario", err)
	}
	f.Logf("Loaded scenario %s (%d step(s))", scenario.Name, len(scenario.Steps))

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Database != "" {
		j, err := journal.Open(opts.Database)
		if err != nil {
			_ = f.Fail(ErrCodeJournal, err)
			return exitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithJournal(j))
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		_ = f.Fail(ErrCodeExecute, err)
		return exitError(ExitCommandError, "scenario execution failed", err)
	}

	out := RunResult{Scenario: scenario.Name, Result: result}
	if opts.Metrics {
		out.Metrics, err = engineMetrics(prometheus.DefaultGatherer)
		if err != nil {
			return exitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	var failure *CLIError
	if !result.Pass {
		failure = &CLIError{
			Code:    ErrCodeScenarioFailed,
			Message: fmt.Sprintf("%d expectation(s) failed", len(result.Errors)),
		}
	}

	if err := f.Result(out, failure, func(w io.Writer) { printRunText(w, out) }); err != nil {
		return err
	}

	if failure != nil {
		return exitError(ExitFailure, failure.Message, nil)
	}
	return nil
}

func printRunText(w io.Writer, out RunResult) {
	r := out.Result

	fmt.Fprintf(w, "Scenario: %s (session %s)\n", out.Scenario, r.SessionID)
	fmt.Fprintln(w, "Trace:")
	for _, event := range r.Trace {
		fmt.Fprintf(w, "  [%d] %s %s\n", event.Seq, event.Action, formatState(event.State))
	}

	o := r.Outcome
	fmt.Fprintln(w, "Outcome:")
	fmt.Fprintf(w, "  resolved: %t\n", o.Resolved)
	if o.State != nil {
		fmt.Fprintf(w, "  state: %s\n", formatState(o.State))
	}
	if o.Reactions > 0 {
		fmt.Fprintf(w, "  reactions: %d\n", o.Reactions)
	}
	if len(o.Args) > 0 {
		fmt.Fprintf(w, "  args: %v\n", o.Args)
	}
	if o.Violated {
		fmt.Fprintf(w, "  violations: %s\n", strings.Join(o.Violations, ", "))
	}
	if o.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", o.Error)
	}
	fmt.Fprintf(w, "Final: %s\n", formatState(r.Final))

	if len(out.Metrics) > 0 {
		fmt.Fprintln(w, "Metrics:")
		names := make([]string, 0, len(out.Metrics))
		for name := range out.Metrics {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s %g\n", name, out.Metrics[name])
		}
	}

	fmt.Fprintln(w)
	if r.Pass {
		fmt.Fprintln(w, "✓ Scenario passed")
		return
	}
	fmt.Fprintln(w, "✗ Scenario failed")
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// formatState renders a state map with sorted keys.
func formatState(s harness.State) string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, s[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// engineMetrics flattens the vigil_* counters and gauges of g into
// name{label="value"} keys.
func engineMetrics(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), "vigil_") {
			continue
		}
		for _, m := range family.GetMetric() {
			key := family.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				pairs := make([]string, len(labels))
				for i, l := range labels {
					pairs[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
				}
				key += "{" + strings.Join(pairs, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}

// commandContext returns the command's context, or Background when the
// command is executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

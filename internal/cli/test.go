package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // defaults to <scenarios-dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path,omitempty"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Long: `Run every scenario file in a directory, checking expectations and,
when a golden file exists, comparing the trace and outcome against it.

Golden files are named after the scenario and live in <scenarios-dir>/golden
unless --golden-dir is given. A scenario without a golden file is checked
against its expectations only.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  vigil test ./scenarios
  vigil test ./scenarios --filter "reactor_*"
  vigil test ./scenarios --update
  vigil test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	paths, err := harness.DiscoverScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return exitError(ExitCommandError, "failed to find scenarios", err)
	}

	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(scenariosDir, "golden")
	}

	runOpts := []harness.Option{harness.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose))}
	suite := harness.RunSuite(commandContext(cmd), paths, runOpts...)

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, suite.Total),
		Total:     suite.Total,
	}

	failedByPath := make(map[string]harness.SuiteFailure, len(suite.Failures))
	for _, failure := range suite.Failures {
		failedByPath[failure.ScenarioPath] = failure
	}

	executed := 0
	for _, path := range paths {
		failure, failed := failedByPath[path]
		if failed && failure.Error != "" {
			// Not executed; there is no result to compare.
			result.Scenarios = append(result.Scenarios, ScenarioResult{
				Name:   failure.Name,
				Path:   path,
				Errors: []string{failure.Error},
			})
			continue
		}

		run := suite.Results[executed]
		executed++

		sr := ScenarioResult{Name: run.Scenario, Path: path, Pass: run.Pass, Errors: run.Errors}
		if err := checkGolden(goldenDir, run, opts.Update); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
		}
		f.Logf("%s: pass=%t", path, sr.Pass)
		result.Scenarios = append(result.Scenarios, sr)
	}

	for _, sr := range result.Scenarios {
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	var failure *CLIError
	if result.Failed > 0 {
		failure = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := f.Result(result, failure, func(w io.Writer) { printTestText(w, result, opts.Update) }); err != nil {
		return err
	}

	if failure != nil {
		// Test failures = exit code 1
		return exitError(ExitFailure, failure.Message, nil)
	}
	return nil
}

// checkGolden compares a result against its golden file, or rewrites the
// golden file when update is set. A missing golden file is not an error.
func checkGolden(dir string, run *harness.Result, update bool) error {
	data, err := harness.Snapshot(run.Scenario, run).Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	path := filepath.Join(dir, run.Scenario+".golden")

	if update {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write golden file: %w", err)
		}
		return nil
	}

	golden, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(golden, data) {
		return fmt.Errorf("trace does not match golden file %s (run with --update to regenerate)", path)
	}
	return nil
}

func printTestText(w io.Writer, result TestResult, updated bool) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}

	for _, sr := range result.Scenarios {
		name := sr.Name
		if name == "" {
			name = filepath.Base(sr.Path)
		}
		if sr.Pass {
			suffix := ""
			if updated {
				suffix = " (golden updated)"
			}
			fmt.Fprintf(w, "✓ %s%s\n", name, suffix)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/expr"
	"github.com/roach88/vigil/internal/harness"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                 `json:"valid"`
	Scenarios []ScenarioValidation `json:"scenarios"`
}

// ScenarioValidation is the verdict for one scenario file.
type ScenarioValidation struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Validate scenarios without running them",
		Long: `Validate scenario files without dispatching anything.

Checks the YAML structure, compiles every CUE expression and builds the
watch, so duplicate or reserved invariant tags are reported here.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	compiler := expr.NewCompiler()

	result := ValidationResult{Valid: true, Scenarios: make([]ScenarioValidation, 0, len(paths))}
	for _, path := range paths {
		v := validateScenario(compiler, path)
		f.Logf("Validated %s", path)
		if v.Error != "" {
			result.Valid = false
		}
		result.Scenarios = append(result.Scenarios, v)
	}

	var failure *CLIError
	if !result.Valid {
		failure = &CLIError{Code: ErrCodeCompile, Message: "one or more scenarios are invalid"}
	}

	err := f.Result(result, failure, func(w io.Writer) {
		for _, v := range result.Scenarios {
			if v.Error != "" {
				fmt.Fprintf(w, "✗ %s\n  %s\n", v.Path, v.Error)
				continue
			}
			fmt.Fprintf(w, "✓ %s (%s, %s)\n", v.Path, v.Name, v.Kind)
		}
	})
	if err != nil {
		return err
	}

	if !result.Valid {
		return exitError(ExitFailure, "validation failed", nil)
	}
	return nil
}

func validateScenario(c *expr.Compiler, path string) ScenarioValidation {
	v := ScenarioValidation{Path: path}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.Name = scenario.Name
	v.Kind = scenario.Watch.Kind

	if _, err := harness.Compile(scenario, c); err != nil {
		v.Error = err.Error()
	}
	return v
}

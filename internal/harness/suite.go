package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// SuiteResult contains results from running every scenario in a directory.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Results  []*Result      `json:"-"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure represents a scenario that could not be loaded, could not be
// executed, or failed its expectations.
type SuiteFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Name         string   `json:"name,omitempty"`
	Error        string   `json:"error,omitempty"`
	Failed       []string `json:"failed,omitempty"`
}

// DiscoverScenarios returns the YAML files in dir matching filter, sorted by
// path. An empty filter matches every file.
func DiscoverScenarios(dir, filter string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenarios directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scenarios path is not a directory: %s", dir)
	}

	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}

	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
		paths = slices.DeleteFunc(paths, func(p string) bool {
			base := filepath.Base(p)
			name := base[:len(base)-len(filepath.Ext(base))]
			ok, _ := filepath.Match(filter, name)
			return !ok
		})
	}

	slices.Sort(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario path in order.
// A scenario that fails does not stop the suite.
func RunSuite(ctx context.Context, paths []string, opts ...Option) *SuiteResult {
	result := &SuiteResult{}

	for _, path := range paths {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, SuiteFailure{
				ScenarioPath: path,
				Error:        fmt.Sprintf("failed to load scenario: %v", err),
			})
			continue
		}

		run, err := Run(ctx, scenario, opts...)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, SuiteFailure{
				ScenarioPath: path,
				Name:         scenario.Name,
				Error:        fmt.Sprintf("scenario execution failed: %v", err),
			})
			continue
		}
		result.Results = append(result.Results, run)

		if !run.Pass {
			result.Failed++
			result.Failures = append(result.Failures, SuiteFailure{
				ScenarioPath: path,
				Name:         scenario.Name,
				Failed:       run.Errors,
			})
			continue
		}

		result.Passed++
	}

	return result
}

package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Check    string       // Expect field that failed
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Expectation failed: %s\n", e.Check)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Action, render(event.State))
		}
	}

	return buf.String()
}

// EvaluateExpectations checks every set field of expect against the result.
// Returns a slice of error messages for failed expectations.
func EvaluateExpectations(result *Result, expect Expect) []string {
	var errs []string
	fail := func(check string, expected, actual any) {
		err := &AssertionError{
			Check:    check,
			Expected: render(expected),
			Actual:   render(actual),
			Trace:    result.Trace,
		}
		errs = append(errs, err.Error())
	}

	out := result.Outcome

	if expect.Resolved != nil && *expect.Resolved != out.Resolved {
		fail("resolved", *expect.Resolved, out.Resolved)
	}
	if expect.State != nil && !matchSubset(out.State, expect.State) {
		fail("state", expect.State, out.State)
	}
	if expect.Final != nil && !matchSubset(result.Final, expect.Final) {
		fail("final", expect.Final, result.Final)
	}
	if expect.Reactions != nil && *expect.Reactions != out.Reactions {
		fail("reactions", *expect.Reactions, out.Reactions)
	}
	if expect.Args != nil && !valuesEqual(out.Args, expect.Args) {
		fail("args", expect.Args, out.Args)
	}
	if expect.Violated != nil && *expect.Violated != out.Violated {
		fail("violated", *expect.Violated, out.Violated)
	}
	if expect.Violations != nil && !slices.Equal(expect.Violations, out.Violations) {
		fail("violations", expect.Violations, out.Violations)
	}

	switch {
	case expect.Error != "" && !strings.Contains(out.Error, expect.Error):
		fail("error", expect.Error, out.Error)
	case expect.Error == "" && out.Error != "":
		fail("error", "no session error", out.Error)
	}

	return errs
}

// matchSubset checks if actual contains all expected keys with equal values.
// Extra keys in actual are ignored.
func matchSubset(actual, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	if actual == nil {
		return false
	}

	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values for equality.
// Integral numbers compare equal regardless of their Go type, since YAML
// decodes to int, CUE to int64 and JSON to float64.
func valuesEqual(actual, expected any) bool {
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, val := range n {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, val := range n {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func render(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

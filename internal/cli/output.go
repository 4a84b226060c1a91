package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Failed expectations, golden mismatches, invalid scenarios
	ExitCommandError = 2 // Unreadable input, database errors, execution errors
)

// Error codes reported in CLIError.
const (
	ErrCodeLoad           = "E_LOAD"
	ErrCodeCompile        = "E_COMPILE"
	ErrCodeExecute        = "E_EXECUTE"
	ErrCodeJournal        = "E_JOURNAL"
	ErrCodeScenarioFailed = "E_SCENARIO_FAILED"
	ErrCodeTestFailed     = "E_TEST_FAILED"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode returns the exit code carried by err, or ExitFailure.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope for --format json.
type CLIResponse struct {
	Status    string    `json:"status"` // "ok" or "error"
	Data      any       `json:"data,omitempty"`
	Error     *CLIError `json:"error,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

// CLIError describes a failure in a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Formatter writes command output as text or as a JSON envelope.
// Diagnostics go to Diag so they never mix with JSON on Out.
type Formatter struct {
	JSON    bool
	Verbose bool
	Out     io.Writer
	Diag    io.Writer
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *Formatter {
	return &Formatter{
		JSON:    opts.Format == "json",
		Verbose: opts.Verbose,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
	}
}

// Result writes data. In JSON mode a non-nil failure sets the status to
// "error" and the data is still included. In text mode text renders the
// output.
func (f *Formatter) Result(data any, failure *CLIError, text func(w io.Writer)) error {
	if !f.JSON {
		text(f.Out)
		return nil
	}
	status := "ok"
	if failure != nil {
		status = "error"
	}
	return f.encode(CLIResponse{Status: status, Data: data, Error: failure})
}

// Fail reports a command error without data.
func (f *Formatter) Fail(code string, err error) error {
	if f.JSON {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: err.Error()},
		})
	}
	_, werr := fmt.Fprintf(f.Out, "Error [%s]: %v\n", code, err)
	return werr
}

// Logf writes a diagnostic line when verbose output is on.
func (f *Formatter) Logf(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.Diag
	if w == nil {
		w = f.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func (f *Formatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

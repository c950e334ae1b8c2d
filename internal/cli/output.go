package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/avencourt/fixpoint"
)

// Exit codes. ExitFailure means the tool ran but the solve or check did not
// succeed: a property stayed unresolved, a scenario failed to compile, an
// expectation did not hold, a journaled run is inconsistent. ExitCommandError
// means the invocation itself was bad: missing files, unreadable journal,
// unknown run token.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError carries the process exit code a command wants alongside the
// error it returns through cobra.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code and context to an existing error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from a command error. Errors that are
// not ExitErrors map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope every command emits in --format json.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // command-specific payload
	Error  *CLIError   `json:"error,omitempty"` // set when status is "error"
}

// CLIError describes a failure in a CLIResponse. Code is either one of the
// solver's error codes (UNRESOLVED_PROPERTY, COMPUTATION_PANIC,
// ILLEGAL_REFINEMENT, MISSING_FALLBACK) or a command-level code
// (CHECK_FAILED, TEST_FAILED, VALIDATION_FAILED, SOLVE_FAILED).
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// solveFailureCode maps a completion-join error to the dominant solver
// error code, so JSON consumers see the engine's vocabulary instead of a
// generic failure. Panics outrank unresolved properties: an unresolved
// slot is usually downstream of the computation that blew up.
func solveFailureCode(err error) string {
	switch {
	case fixpoint.IsIllegalRefinement(err):
		return string(fixpoint.ErrCodeIllegalRefinement)
	case fixpoint.IsComputationPanic(err):
		return string(fixpoint.ErrCodeComputationPanic)
	case fixpoint.IsMissingFallback(err):
		return string(fixpoint.ErrCodeMissingFallback)
	case fixpoint.IsUnresolved(err):
		return string(fixpoint.ErrCodeUnresolved)
	default:
		return "SOLVE_FAILED"
	}
}

// Success renders a payload in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error renders a failure in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose mode is on. Diagnostics
// go to ErrWriter so they never corrupt a JSON payload on Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the diagnostic writer, falling back to Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

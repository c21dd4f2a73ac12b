package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/safetydb/internal/config"
	"github.com/roach88/safetydb/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Statement rejected, check found problems
	ExitCommandError = 2 // Command error (bad config, store cannot be opened, etc.)
)

// Error codes reported in the JSON envelope.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeConfig      = "E002" // Invalid configuration
	ErrCodeOpenFailed  = "E003" // Store could not be opened
	ErrCodeCorrupt     = "E004" // Stored image unreadable
	ErrCodeQueryFailed = "E005" // Statement rejected by the engine
	ErrCodeConstraint  = "E006" // Statement violated a constraint
	ErrCodePersist     = "E007" // Write could not be made durable
	ErrCodeCheckFailed = "E008" // Integrity or foreign key check failed
	ErrCodeNotReadOnly = "E009" // Mutating statement passed to query
	ErrCodeSeedFailed  = "E010" // Demo data could not be loaded
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps a store or config error to an error code and exit code.
func classify(err error) (string, int) {
	var qe *store.QueryError
	switch {
	case config.IsConfigError(err):
		return ErrCodeConfig, ExitCommandError
	case store.IsLoadCorruption(err):
		return ErrCodeCorrupt, ExitCommandError
	case store.IsPersistenceError(err):
		return ErrCodePersist, ExitFailure
	case errors.Is(err, store.ErrNotReadOnly):
		return ErrCodeNotReadOnly, ExitFailure
	case errors.As(err, &qe) && qe.Constraint != "":
		return ErrCodeConstraint, ExitFailure
	case errors.As(err, &qe):
		return ErrCodeQueryFailed, ExitFailure
	case store.IsSchemaError(err):
		return ErrCodeOpenFailed, ExitCommandError
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. In text
// mode text is printed; data is only used for JSON.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	_, err := io.WriteString(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
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

	// Errors go to the diagnostic writer in text mode.
	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.GetErrWriter(), "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(message string, err error) *ExitError {
	code, exit := classify(err)
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), errorDetails(err))
	return WrapExitError(exit, message, err)
}

// errorDetails exposes the structured fields of store errors.
func errorDetails(err error) any {
	var qe *store.QueryError
	if errors.As(err, &qe) {
		d := map[string]any{"statement": qe.Statement}
		if qe.Constraint != "" {
			d["constraint"] = string(qe.Constraint)
		}
		return d
	}
	var pe *store.PersistenceError
	if errors.As(err, &pe) {
		return map[string]any{"location": pe.Location, "rolled_back": pe.RolledBack}
	}
	var le *store.LoadCorruptionError
	if errors.As(err, &le) {
		d := map[string]any{"location": le.Location}
		if le.QuarantinedTo != "" {
			d["quarantined_to"] = le.QuarantinedTo
		}
		return d
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/roach88/mailbackup/internal/backup"
	"github.com/roach88/mailbackup/internal/lock"
	"github.com/roach88/mailbackup/internal/record"
	"github.com/roach88/mailbackup/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Data failure (ordering corruption, malformed record, failed index write)
	ExitCommandError = 2 // Command error (bad flags, missing backup, lock busy, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool // already written by an OutputFormatter
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
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Error codes reported in JSON error responses.
const (
	CodeOrdering  = "E_ORDERING"
	CodeMalformed = "E_MALFORMED"
	CodeIndex     = "E_INDEX"
	CodeBusy      = "E_BUSY"
	CodeNotFound  = "E_NOT_FOUND"
	CodeExists    = "E_EXISTS"
	CodeSchema    = "E_SCHEMA"
	CodeMode      = "E_MODE"
	CodeOther     = "E_OTHER"
)

// classify maps a backup error to an error code and exit code. Damage to
// the data itself exits with ExitFailure; everything the caller can fix by
// changing the invocation exits with ExitCommandError.
func classify(err error) (string, int) {
	var (
		oe *backup.OrderingError
		pe *record.ParseError
		ie *backup.IndexError
	)
	switch {
	case errors.As(err, &oe):
		return CodeOrdering, ExitFailure
	case errors.As(err, &pe):
		return CodeMalformed, ExitFailure
	case errors.As(err, &ie):
		return CodeIndex, ExitFailure
	case errors.Is(err, lock.ErrBusy):
		return CodeBusy, ExitCommandError
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, store.ErrNotFound):
		return CodeNotFound, ExitCommandError
	case errors.Is(err, fs.ErrExist):
		return CodeExists, ExitCommandError
	case errors.Is(err, store.ErrSchemaTooNew), errors.Is(err, store.ErrNoSchema):
		return CodeSchema, ExitCommandError
	case errors.Is(err, backup.ErrWrongMode), errors.Is(err, backup.ErrTimestampRegression):
		return CodeMode, ExitCommandError
	}
	return CodeOther, ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostics (defaults to Writer)
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
	Code    string `json:"code"`              // E_ORDERING, E_BUSY, ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// textWriter is implemented by results with their own text rendering.
type textWriter interface {
	WriteText(w io.Writer) error
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}

	if tw, ok := data.(textWriter); ok {
		return tw.WriteText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
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

	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns it as an
// ExitError with the matching exit code.
func (f *OutputFormatter) Fail(message string, err error, details any) error {
	code, exit := classify(err)
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	e := WrapExitError(exit, message, err)
	e.reported = true
	return e
}

// Reported reports whether err was already written to the user by Fail.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

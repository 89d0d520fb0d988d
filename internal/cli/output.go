package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/pickboard/internal/engine"
	"github.com/roach88/pickboard/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failure or a viewer that stopped on an error
	ExitCommandError = 2 // Command error (bad flags, unreadable files, unreachable server)
)

// ExitError represents an error with a specific exit code.
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
// Returns ExitFailure (1) if the error is not an ExitError.
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

// OutputFormatter handles JSON vs text output for CLI commands. It is
// safe for concurrent use, since the watch command paints from the engine
// loop while reporting command results from the input goroutine.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool

	mu sync.Mutex
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_LOAD", "E_ACTION", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// FrameOutput is the JSON form of a painted frame.
type FrameOutput struct {
	Seq    int64               `json:"seq"`
	Lines  []string            `json:"lines"`
	Counts map[ir.StateTag]int `json:"counts"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		if _, err := fmt.Fprintf(f.Writer, "Details: %v\n", details); err != nil {
			return err
		}
	}
	return nil
}

// Frame outputs one painted frame of the board.
func (f *OutputFormatter) Frame(frame engine.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(FrameOutput{
			Seq:    frame.Seq,
			Lines:  strings.Split(strings.TrimSuffix(frame.Text, "\n"), "\n"),
			Counts: frame.Counts,
		})
	}

	fmt.Fprintf(f.Writer, "--- frame %d (%s)\n", frame.Seq, formatCounts(frame.Counts))
	_, err := io.WriteString(f.Writer, frame.Text)
	return err
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// formatCounts renders non-zero counts in precedence order.
func formatCounts(counts map[ir.StateTag]int) string {
	tags := make([]ir.StateTag, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	rank := func(t ir.StateTag) int {
		for i, v := range ir.ValidStates {
			if v == t {
				return i
			}
		}
		return len(ir.ValidStates)
	}
	sort.Slice(tags, func(i, j int) bool { return rank(tags[i]) < rank(tags[j]) })

	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		if counts[tag] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", tag, counts[tag]))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}

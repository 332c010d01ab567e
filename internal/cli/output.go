package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/KiritoRJ/assistenciatecnica/internal/checkout"
	"github.com/KiritoRJ/assistenciatecnica/internal/remote"
	"github.com/KiritoRJ/assistenciatecnica/internal/session"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
	"github.com/KiritoRJ/assistenciatecnica/internal/tenant"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected operation: stock, validation, not found
	ExitCommandError = 2 // bad flags or arguments
	ExitAuth         = 3 // login or admin re-authentication failed
	ExitUnreachable  = 4 // remote store could not be reached
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps domain errors onto exit codes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	switch {
	case errors.Is(err, tenant.ErrInvalidCredentials):
		return WrapExitError(ExitAuth, "login failed", err)
	case errors.Is(err, checkout.ErrUnauthorized):
		return WrapExitError(ExitAuth, "admin password rejected", err)
	case errors.Is(err, remote.ErrTokenRejected), errors.Is(err, session.ErrClosed):
		return WrapExitError(ExitAuth, "session not valid", err)
	case errors.Is(err, remote.ErrUnreachable):
		return WrapExitError(ExitUnreachable, "remote store unreachable", err)
	case errors.Is(err, store.ErrInsufficientStock):
		return WrapExitError(ExitFailure, "insufficient stock", err)
	case errors.Is(err, store.ErrInvalidInput):
		return WrapExitError(ExitFailure, "invalid input", err)
	case errors.Is(err, store.ErrNotFound):
		return WrapExitError(ExitFailure, "not found", err)
	case errors.Is(err, store.ErrPersistence):
		return WrapExitError(ExitFailure, "local store write failed", err)
	default:
		return WrapExitError(ExitFailure, "command failed", err)
	}
}

// OutputFormatter renders command results as text, JSON or YAML.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the envelope for JSON and YAML output.
type CLIResponse struct {
	Status string `json:"status" yaml:"status"`
	Data   any    `json:"data,omitempty" yaml:"data,omitempty"`
}

// Success writes data. In text mode the text callback renders it instead.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	case "yaml":
		plain, err := toPlain(data)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(CLIResponse{Status: "ok", Data: plain}); err != nil {
			return err
		}
		return enc.Close()
	default:
		if text != nil {
			text(f.Writer)
			return nil
		}
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
}

// toPlain round-trips through JSON so YAML keys follow the json tags.
func toPlain(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return plain, nil
}

var brl = message.NewPrinter(language.BrazilianPortuguese)

// money formats an amount in reais, e.g. "R$ 1.234,50".
func money(v float64) string {
	return brl.Sprintf("R$ %.2f", v)
}

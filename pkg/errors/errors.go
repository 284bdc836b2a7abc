// Package errors provides structured error types for distbuilder.
//
// Every fatal condition raised by the resolver, the build scheduler, the
// download cache and the process runner carries a [Code] so that callers can
// branch on the failure kind without matching message text:
//
//	err := errors.New(errors.ErrCodeDependencyNotFound, "no version of %s matches %s", name, rng)
//	if errors.Is(err, errors.ErrCodeDependencyNotFound) {
//	    // report and exit
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeIO, origErr, "create %s", dir)
//
// None of these conditions is retried internally; they propagate to the
// top-level command, which prints [UserMessage] and exits non-zero.
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input errors
	ErrCodeConfiguration Code = "CONFIGURATION_ERROR"
	ErrCodeInvalidPath   Code = "INVALID_PATH"

	// Recipe lookup
	ErrCodeRecipeNotFound Code = "RECIPE_NOT_FOUND"
	ErrCodeRecipeConflict Code = "RECIPE_CONFLICT"

	// Resolution
	ErrCodeDependencyNotFound       Code = "DEPENDENCY_NOT_FOUND"
	ErrCodeDependencyOptionConflict Code = "DEPENDENCY_OPTION_CONFLICT"
	ErrCodeNoAvailableVersion       Code = "NO_AVAILABLE_VERSION"
	ErrCodeUnresolved               Code = "UNRESOLVED"

	// Build phase
	ErrCodeStaleConfiguration  Code = "STALE_CONFIGURATION"
	ErrCodeSignatureMismatch   Code = "SIGNATURE_MISMATCH"
	ErrCodeExternalToolFailure Code = "EXTERNAL_TOOL_FAILURE"

	// Filesystem and network
	ErrCodeIO Code = "IO_ERROR"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
// The outermost *Error wins, so wrapping a coded error in another coded
// error re-classifies it.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// As is errors.As from the standard library, re-exported so callers need
// only one errors import.
func As(err error, target any) bool { return errors.As(err, target) }

// GetCode extracts the error code from an error, if available.
// Returns empty string if the chain holds neither an *Error nor a typed
// error with a Code method such as [ToolFailureError].
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c interface{ Code() Code }
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message followed by the cause, without the
// code prefix. For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + UserMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// ToolFailureError describes a non-zero exit from an external program.
type ToolFailureError struct {
	Program  string
	ExitCode int
	Stderr   string // Trailing standard error, possibly truncated
}

// Error implements the error interface.
func (e *ToolFailureError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Program, e.ExitCode)
}

// Code returns the error code for this error type.
func (e *ToolFailureError) Code() Code {
	return ErrCodeExternalToolFailure
}

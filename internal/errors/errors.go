// Package errors defines the structured error type used at hoofbeat's
// package boundaries, with a small taxonomy matching the server's failure
// surfaces: configuration, scanning, watching, serving, and internal state.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Category represents different classes of errors.
type Category string

const (
	CategoryConfig   Category = "config"
	CategoryScan     Category = "scan"
	CategoryWatch    Category = "watch"
	CategoryServer   Category = "server"
	CategoryInternal Category = "internal"
)

// Error is a structured error with a category, the operation that failed,
// and the filesystem path involved where one exists.
type Error struct {
	Category Category
	Op       string
	Path     string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Category))
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	msg := strings.Join(parts, ": ")

	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same category so callers can branch on class
// without caring about the specific failure.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Category == other.Category
	}
	return false
}

// ConfigError wraps a configuration failure.
func ConfigError(msg string, cause error) *Error {
	return &Error{Category: CategoryConfig, Message: msg, Cause: cause}
}

// ScanError wraps a directory-scan failure. A single scan error aborts the
// whole scan, so these carry the path where traversal stopped.
func ScanError(op, path string, cause error) *Error {
	return &Error{Category: CategoryScan, Op: op, Path: path, Cause: cause}
}

// WatchError wraps a filesystem-watcher failure.
func WatchError(op, path string, cause error) *Error {
	return &Error{Category: CategoryWatch, Op: op, Path: path, Cause: cause}
}

// ServerError wraps an HTTP-surface failure such as a listener bind error.
func ServerError(op string, cause error) *Error {
	return &Error{Category: CategoryServer, Op: op, Cause: cause}
}

// InternalError wraps an invariant violation.
func InternalError(msg string, cause error) *Error {
	return &Error{Category: CategoryInternal, Message: msg, Cause: cause}
}

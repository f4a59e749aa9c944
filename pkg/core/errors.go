// Package core provides the graphmem client: the mutation service and
// query facade over the persistent memory graph.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidInput indicates that the caller passed empty or invalid
	// input. Not retryable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("entity not found")

	// ErrStorageOperation indicates that a record log read or write
	// failed. The requested mutation is not reflected in the graph.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrLLMOperation indicates that an LLM provider operation failed.
	ErrLLMOperation = errors.New("llm operation failed")
)

// MemoryError wraps errors with operation context.
//
// It records which operation failed, making error messages more
// informative for debugging:
//
//	err := &MemoryError{Op: "Remember", Err: ErrInvalidInput}
//	// Error() returns: "graphmem: Remember: invalid input"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *MemoryError) Error() string {
	return fmt.Sprintf("graphmem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("Remember", err)
//	}
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{Op: op, Err: err}
}

// storageError tags err as an ErrStorageOperation while keeping the
// underlying cause in the message.
func storageError(op string, err error) error {
	return NewMemoryError(op, fmt.Errorf("%w: %v", ErrStorageOperation, err))
}

// inputError tags a validation failure as ErrInvalidInput.
func inputError(op, reason string) error {
	return NewMemoryError(op, fmt.Errorf("%w: %s", ErrInvalidInput, reason))
}

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrTransactionFailed is returned when a database transaction fails
	// to begin or commit.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrRollbackFailed is returned when a failed transaction could not be
	// rolled back. The original failure is wrapped alongside it.
	ErrRollbackFailed = errors.New("rollback failed")
)

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Object    string // The database object involved (e.g., "users", "users_id_seq")
	Operation string // The operation that failed (e.g., "truncate", "restart")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s of %s failed: %s: %v", e.Operation, e.Object, e.Message, e.Err)
	}
	return fmt.Sprintf("%s of %s failed: %s", e.Operation, e.Object, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given object, operation, message, and wrapped error.
func NewStoreError(object, operation, message string, err error) *StoreError {
	return &StoreError{
		Object:    object,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

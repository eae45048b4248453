package dbretry

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports an operation that ran past its budget or was
// cancelled by a timeout. Err is the failure the operation returned.
type TimeoutError struct {
	Budget  time.Duration
	Elapsed time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %s (budget %s): %v",
		e.Elapsed.Round(time.Millisecond), e.Budget, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// MaxRetriesExceededError reports that every attempt failed with a
// transient error. Err is the last failure.
type MaxRetriesExceededError struct {
	Attempts int
	Err      error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is or wraps a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsMaxRetriesExceeded reports whether err is or wraps a *MaxRetriesExceededError.
func IsMaxRetriesExceeded(err error) bool {
	var me *MaxRetriesExceededError
	return errors.As(err, &me)
}

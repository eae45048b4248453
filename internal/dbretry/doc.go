// Package dbretry wraps database operations with bounded retries and a
// wall-clock budget.
//
// Wrappers are plain higher-order functions: each takes an operation and a
// Config and returns a new operation with the same signature, so they can be
// stacked. Retry re-runs transient failures with exponential backoff,
// WithTimeout turns overruns into a *TimeoutError, WithSession additionally
// sets a server-side statement_timeout before the operation runs, and Safe
// and SafeSession combine both with the timeout innermost so every attempt
// gets its own budget.
package dbretry

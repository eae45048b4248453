package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
const (
	// foreignKeyViolationCode is the PostgreSQL error code for foreign key violations
	foreignKeyViolationCode = "23503"

	// queryCanceledCode is raised when statement_timeout or a cancel request stops a query
	queryCanceledCode = "57014"

	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
	lockNotAvailableCode     = "55P03"
)

// FailureClass tells the retry wrapper how to treat an error.
type FailureClass int

const (
	// Permanent failures fail identically when repeated.
	Permanent FailureClass = iota
	// Transient failures are likely to succeed on a later attempt.
	Transient
	// Timeout failures ran out of time, either on the server or in the caller.
	Timeout
)

func (c FailureClass) String() string {
	switch c {
	case Transient:
		return "transient"
	case Timeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// Classify maps err onto a FailureClass. Server errors are classified by
// SQLSTATE: connection exceptions (08), insufficient resources (53),
// administrator shutdowns (57P0x), serialization failures, deadlocks and
// lock timeouts are transient, query_canceled is a timeout, everything else
// is permanent. Client side connection failures are transient. Anything
// unrecognised is permanent.
func Classify(err error) FailureClass {
	if err == nil {
		return Permanent
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case IsQueryCanceled(pgErr):
			return Timeout
		case pgErr.Code == serializationFailureCode,
			pgErr.Code == deadlockDetectedCode,
			pgErr.Code == lockNotAvailableCode,
			strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57P0"):
			return Transient
		default:
			return Permanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, context.Canceled) {
		return Permanent
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case pgconn.SafeToRetry(err),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.As(err, &connErr),
		errors.As(err, &netErr):
		return Transient
	}

	return Permanent
}

// IsForeignKeyViolation checks if the given error is a PostgreSQL foreign key constraint violation.
// This occurs when an operation would violate referential integrity constraints.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode
}

// IsQueryCanceled checks if the given error is a query cancelled by statement_timeout
// or an explicit cancel request.
func IsQueryCanceled(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == queryCanceledCode
}

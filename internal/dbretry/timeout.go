package dbretry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/phrazzld/scry-dbreset/internal/platform/postgres"
	"github.com/phrazzld/scry-dbreset/internal/store"
)

const setStatementTimeoutQuery = `SELECT set_config('statement_timeout', $1, $2)`

// WithTimeout returns fn bounded by cfg.Timeout. A failure is reported as a
// *TimeoutError when the attempt took longer than the budget, when the
// budget's deadline fired, or when the server cancelled the statement.
// Failures caused by the caller's own context are returned unchanged, and a
// successful result is returned even when it arrived late.
func WithTimeout[T any](cfg Config, fn Func[T], opts ...Option) Func[T] {
	o := newOptions(opts)
	return func(ctx context.Context) (T, error) {
		if cfg.Timeout <= 0 {
			return fn(ctx)
		}

		var zero T
		tctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		start := time.Now()
		v, err := fn(tctx)
		elapsed := time.Since(start)
		if err == nil {
			if elapsed > cfg.Timeout {
				o.logger.WarnContext(ctx, "database operation exceeded its budget but succeeded",
					"budget", cfg.Timeout,
					"elapsed", elapsed,
				)
			}
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		if elapsed > cfg.Timeout ||
			errors.Is(tctx.Err(), context.DeadlineExceeded) ||
			o.classify(err) == postgres.Timeout {
			o.logger.ErrorContext(ctx, "database operation timed out",
				"budget", cfg.Timeout,
				"elapsed", elapsed,
				"error", err,
			)
			return zero, &TimeoutError{Budget: cfg.Timeout, Elapsed: elapsed, Err: err}
		}
		return zero, err
	}
}

// WithSession returns fn bound to s. Before the operation runs the session's
// statement_timeout is set to cfg.Timeout; the call is then bounded like
// WithTimeout.
func WithSession[T any](cfg Config, s store.DBTX, fn SessionFunc[T], opts ...Option) Func[T] {
	return WithTimeout(cfg, func(ctx context.Context) (T, error) {
		if cfg.Timeout > 0 {
			if err := SetStatementTimeout(ctx, s, cfg.Timeout, false); err != nil {
				var zero T
				return zero, err
			}
		}
		return fn(ctx, s)
	}, opts...)
}

// SetStatementTimeout sets statement_timeout on s to d, rounded down to
// milliseconds. With local set the value only lasts until the end of the
// current transaction.
func SetStatementTimeout(ctx context.Context, s store.DBTX, d time.Duration, local bool) error {
	ms := strconv.FormatInt(d.Milliseconds(), 10)
	if _, err := s.ExecContext(ctx, setStatementTimeoutQuery, ms, local); err != nil {
		return fmt.Errorf("failed to set statement timeout: %w", err)
	}
	return nil
}

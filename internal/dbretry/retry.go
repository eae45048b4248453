package dbretry

import (
	"context"
	"time"

	"github.com/phrazzld/scry-dbreset/internal/platform/postgres"
	"github.com/phrazzld/scry-dbreset/internal/store"
	"github.com/sethvargo/go-retry"
)

// Func is a database operation that can be wrapped.
type Func[T any] func(ctx context.Context) (T, error)

// SessionFunc is a database operation bound to a session.
type SessionFunc[T any] func(ctx context.Context, s store.DBTX) (T, error)

// Retry returns fn wrapped so that transient failures are retried up to
// cfg.MaxRetries times with exponential backoff. Permanent failures and
// timeouts are returned unchanged after the attempt that produced them.
// When every attempt fails transiently the last failure is returned inside
// a *MaxRetriesExceededError. Cancelling ctx ends the wait between attempts.
func Retry[T any](cfg Config, fn Func[T], opts ...Option) Func[T] {
	o := newOptions(opts)
	return func(ctx context.Context) (T, error) {
		var (
			result    T
			zero      T
			calls     int
			retries   int
			exhausted bool
			lastErr   error
		)

		backoff := retry.BackoffFunc(func() (time.Duration, bool) {
			if retries >= cfg.MaxRetries {
				exhausted = true
				return 0, true
			}
			delay := cfg.Delay(retries)
			retries++
			o.logger.WarnContext(ctx, "transient database failure, retrying",
				"attempt", retries,
				"max_retries", cfg.MaxRetries,
				"delay", delay,
				"error", lastErr,
			)
			o.onRetry(retries, delay, lastErr)
			return delay, false
		})

		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			calls++
			v, err := fn(ctx)
			if err == nil {
				result = v
				return nil
			}
			lastErr = err
			if IsTimeout(err) || o.classify(err) != postgres.Transient {
				return err
			}
			return retry.RetryableError(err)
		})
		if err == nil {
			return result, nil
		}
		if exhausted {
			o.logger.ErrorContext(ctx, "database operation failed after retries",
				"attempts", calls,
				"error", err,
			)
			return zero, &MaxRetriesExceededError{Attempts: calls, Err: err}
		}
		return zero, err
	}
}

// Safe bounds every attempt of fn by cfg.Timeout and retries transient
// failures.
func Safe[T any](cfg Config, fn Func[T], opts ...Option) Func[T] {
	return Retry(cfg, WithTimeout(cfg, fn, opts...), opts...)
}

// SafeSession is Safe for an operation bound to session s. The statement
// timeout is set again before every attempt.
func SafeSession[T any](cfg Config, s store.DBTX, fn SessionFunc[T], opts ...Option) Func[T] {
	return Retry(cfg, WithSession(cfg, s, fn, opts...), opts...)
}

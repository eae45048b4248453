package dbretry

import (
	"log/slog"
	"time"

	"github.com/phrazzld/scry-dbreset/internal/platform/postgres"
)

// Option customises a wrapper.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	classify func(error) postgres.FailureClass
	onRetry  func(attempt int, delay time.Duration, err error)
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:   slog.Default(),
		classify: postgres.Classify,
		onRetry:  func(int, time.Duration, error) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used for retry and timeout messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClassifier replaces postgres.Classify as the failure classifier.
func WithClassifier(fn func(error) postgres.FailureClass) Option {
	return func(o *options) {
		if fn != nil {
			o.classify = fn
		}
	}
}

// WithRetryHook registers fn to be called before every backoff sleep with
// the retry number (starting at 1), the upcoming delay and the failure that
// caused it.
func WithRetryHook(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onRetry = fn
		}
	}
}

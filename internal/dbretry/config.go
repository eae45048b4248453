package dbretry

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config controls retries and timeouts.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries    int           `validate:"gte=0"`
	InitialDelay  time.Duration `validate:"gt=0"`
	MaxDelay      time.Duration `validate:"gtefield=InitialDelay"`
	BackoffFactor float64       `validate:"gte=1"`
	// Timeout is the wall-clock budget of a single attempt. Zero disables it.
	Timeout time.Duration `validate:"gte=0"`
}

// DefaultConfig returns 3 retries starting at 500ms, doubling up to 5s,
// with a 10s budget per attempt.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
		Timeout:       10 * time.Second,
	}
}

// Validate checks c against its struct tags.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}
	return nil
}

// Delay returns the wait before retry number attempt, counting from zero:
// min(InitialDelay * BackoffFactor^attempt, MaxDelay).
func (c Config) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	if c.MaxDelay > 0 && (d > float64(c.MaxDelay) || math.IsInf(d, 1)) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Package retry implements exponential backoff with optional jitter
// for transient failures against the database and integration targets.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig shapes the retry schedule.
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig suits short-lived transient failures such as a
// locked database file.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// Backoff retries operations on a growing delay schedule.
type Backoff struct {
	config BackoffConfig
}

// NewBackoff builds a Backoff. MaxAttempts below one is raised to one
// so the operation always runs at least once.
func NewBackoff(config BackoffConfig) *Backoff {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Backoff{config: config}
}

// Retry runs the operation until it succeeds or attempts run out. Every
// error counts as retryable.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate runs the operation until it succeeds, attempts run
// out, or the predicate declares an error permanent. Context
// cancellation wins over the schedule at every step.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, retryable func(error) bool) error {
	var lastErr error
	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == b.config.MaxAttempts {
			break
		}

		if err := sleep(ctx, b.NextDelay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// NextDelay returns the wait after the given attempt number, starting
// at one.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(attempt-1))
	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	if b.config.Jitter {
		// Spread retries across 75% to 125% of the computed delay so
		// callers that failed together do not retry together.
		delay *= 0.75 + rand.Float64()*0.5
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}
	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

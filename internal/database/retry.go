package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"whatscrm/internal/constants"
	"whatscrm/internal/retry"
)

// Retry schedule for storage operations. SQLite has a single writer
// lock, so a busy error usually clears after a short pause.
var dbBackoff = retry.NewBackoff(retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond,
	MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
	Multiplier:   2.0,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
})

// withRetry runs a storage operation under the database retry policy.
// Only errors that look transient are retried; constraint violations
// and schema mismatches fail on the first attempt.
func withRetry(ctx context.Context, operation func() error, operationName string) error {
	if err := dbBackoff.RetryWithPredicate(ctx, operation, isRetryableDBError); err != nil {
		return fmt.Errorf("%s: %w", operationName, err)
	}
	return nil
}

// Substrings of SQLite and driver errors worth retrying. Lock
// contention clears when the competing writer commits; I/O and
// connection errors may be a transient mount or network hiccup.
var transientDBErrors = []string{
	"database is locked",
	"database table is locked",
	"disk I/O error",
	"connection refused",
	"no such host",
}

func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	// A canceled or expired context means the caller gave up; retrying
	// would only mask that.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	for _, pattern := range transientDBErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

package util

import (
	"context"
	"time"
)

// Retry calls fn up to maxAttempts times, doubling the delay between
// attempts starting from baseDelay. It returns nil on the first success
// and the last error once attempts run out; a context cancellation during
// a backoff wait ends the loop early with ctx.Err(). The result-API
// client wraps fn to flag permanent failures, which it reports as success
// here so they are not retried.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// No sleep after the final attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}

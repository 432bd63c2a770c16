// Package retry provides the bounded fixed-interval retry loop shared by the
// transfer and verification stages.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted reports that the attempt budget ran out. The last underlying
// error is attached by wrapping.
var ErrExhausted = errors.New("retry attempts exhausted")

// Always treats every error as retryable.
func Always(error) bool { return true }

// Do runs fn up to attempts times, sleeping delay between attempts. An error
// for which retryable returns false is returned immediately. Once the budget
// runs out the last error is returned wrapped together with ErrExhausted;
// callers detect exhaustion with errors.Is.
func Do(ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

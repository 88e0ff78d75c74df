package backend

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn, retrying up to tries times total with exponential
// backoff starting at initialWait and scaled by multiplier after each
// failure. Grounded on the original implementation's exponential_backoff
// (_examples/original_source/src/cicadad/util/backoff.py), generalized
// from "construct a client, retrying on one error class" to "retry any
// operation", since Go's HTTPClient is constructed eagerly and only the
// first call against a freshly-provisioned backend needs retrying.
//
// Callers pass an operation like HTTPClient.Ping while a launcher waits
// for a newly-provisioned worker's backend connection to come up.
func Retry(ctx context.Context, tries int, initialWait time.Duration, multiplier float64, fn func(ctx context.Context) error) error {
	wait := initialWait
	var lastErr error

	for attempt := 0; attempt < tries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == tries-1 {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait = time.Duration(float64(wait) * multiplier)
	}

	return fmt.Errorf("backend: exhausted %d attempt(s) waiting for backend to become reachable: %w", tries, lastErr)
}

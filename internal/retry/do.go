package retry

import (
	"context"
	"fmt"
	"time"
)

// Do runs fn under the given options: up to MaxNumberOfAttempts tries,
// backoff between attempts growing by BackoffCoefficient from
// FirstRetryInterval up to MaxRetryInterval, and a hard RetryTimeout ceiling
// on total elapsed time regardless of attempts remaining.
func Do(ctx context.Context, clock Clock, opts Options, handle HandleFunc, fn func(context.Context) error) error {
	if clock == nil {
		clock = RealClock{}
	}

	deadline := clock.Now().Add(opts.RetryTimeout)
	interval := opts.FirstRetryInterval

	var lastErr error
	for attempt := 1; attempt <= opts.MaxNumberOfAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == opts.MaxNumberOfAttempts {
			break
		}
		if handle != nil && !handle(lastErr) {
			break
		}
		if !clock.Now().Add(interval).Before(deadline) {
			return fmt.Errorf("retry timeout after %d attempts: %w", attempt, lastErr)
		}

		if err := clock.Sleep(ctx, interval); err != nil {
			return err
		}

		interval = time.Duration(float64(interval) * opts.BackoffCoefficient)
		if interval > opts.MaxRetryInterval {
			interval = opts.MaxRetryInterval
		}
	}

	return lastErr
}

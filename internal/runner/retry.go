package runner

import (
	"context"
	"fmt"
	"time"

	"devsetup/internal/logger"
)

// Retry calls fn up to attempts times, sleeping delay between failures.
// It is not idempotency-aware: a partially applied step is simply run again and
// relies on the underlying tool to cope. The last error is returned, wrapped
// with the attempt count. Cancelling ctx stops the loop early.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		logger.Warn("[WARN] Attempt %d/%d failed: %v. Retrying in %s...\n", i, attempts, err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// RunWithRetry runs cmd through r under Retry and returns the output of the last attempt.
func RunWithRetry(ctx context.Context, r Runner, attempts int, delay time.Duration, cmd Cmd) ([]byte, error) {
	var out []byte
	err := Retry(ctx, attempts, delay, func() error {
		var err error
		out, err = r.Run(ctx, cmd)
		return err
	})
	return out, err
}

package breaker

import (
	"context"
	"time"

	"github.com/gatewarden/gatewarden/pkg/errors"
)

// ExecuteWithTimeout runs fn under the breaker with a per-call deadline.
// When the deadline fires the call counts as a failure even if fn later
// finishes; its result is discarded.
func (b *Breaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	return b.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- fn(ctx) }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return errors.New(errors.ErrCodeBreakerTimeout, "call timed out").WithCause(ctx.Err())
		}
	})
}

// ExecuteWithRetry runs fn under the breaker, retrying failures up to
// maxAttempts times with a linearly growing delay (delay, 2*delay, ...).
// The whole retried operation counts as a single breaker observation: only
// the final outcome is recorded, so transient flaps that recover do not
// trip the breaker.
func (b *Breaker) ExecuteWithRetry(ctx context.Context, maxAttempts int, delay time.Duration, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return b.Execute(ctx, func(ctx context.Context) error {
		var lastErr error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			lastErr = fn(ctx)
			if lastErr == nil {
				return nil
			}
			if attempt == maxAttempts {
				break
			}
			select {
			case <-time.After(delay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return lastErr
	})
}

package lastfm

import (
	"context"
	"time"
)

// RetryPolicy decides how many times a failed call is attempted again and how
// long to wait in between. The zero value makes a single attempt.
type RetryPolicy struct {
	MaxRetries int

	// Backoff returns the wait before retry number attempt (1-based).
	Backoff func(attempt int) time.Duration

	// Sleep waits for d or until ctx is done. Tests inject a no-op.
	Sleep func(ctx context.Context, d time.Duration) error

	// Retryable reports whether err is worth another attempt.
	Retryable func(err error) bool
}

// FixedBackoff waits the same duration before every retry.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// DefaultRetryPolicy retries twice with a fixed backoff of twice the
// inter-request delay.
func DefaultRetryPolicy(requestDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    FixedBackoff(2 * requestDelay),
		Sleep:      sleepContext,
		Retryable:  retryableError,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		// Wait before retry (skip on first attempt)
		if attempt > 0 {
			if err := p.sleep(ctx, p.backoff(attempt)); err != nil {
				return err
			}
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.retryable(err) {
			return err
		}
	}
	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return sleepContext(ctx, d)
	}
	return p.Sleep(ctx, d)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return retryableError(err)
	}
	return p.Retryable(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

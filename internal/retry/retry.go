// Package retry provides retry strategies for operations that may fail
// transiently, such as network connections and database writes.
package retry

import (
	"context"
	"errors"
	"time"
)

// Strategy decides whether and when a failed operation is attempted
// again.
type Strategy interface {
	// Execute runs fn until it succeeds, the strategy gives up, or the
	// context is cancelled. The returned error is the last error from
	// fn, or the context error on cancellation.
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoRetry runs the operation exactly once.
type NoRetry struct{}

// Execute runs fn once and returns its error unchanged.
func (NoRetry) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 5 * time.Minute
)

// BackOff retries indefinitely with exponentially growing delays.
//
// The delay starts at InitialDelay, doubles after each failure and is
// capped at MaxDelay. If Expected is non-empty, only errors matching
// one of its entries (via errors.Is) are retried; anything else is
// returned immediately.
type BackOff struct {
	// InitialDelay is the wait before the second attempt. Defaults to
	// one second.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts. Defaults to five
	// minutes.
	MaxDelay time.Duration

	// Expected lists the errors considered transient. Empty means all
	// errors are retried.
	Expected []error

	// OnRetry, if set, is called before each sleep with the attempt
	// number (starting at 1), the error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Execute runs fn, sleeping between attempts, until it succeeds, an
// unexpected error occurs or the context is cancelled.
func (b BackOff) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	initial := b.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := initial
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !b.retryable(err) {
			return err
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (b BackOff) retryable(err error) bool {
	if len(b.Expected) == 0 {
		return true
	}
	for _, expected := range b.Expected {
		if errors.Is(err, expected) {
			return true
		}
	}
	return false
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

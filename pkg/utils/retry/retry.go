package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetry marks an error as retryable.
//
// Wrap a cause with it to ask Blocking for another attempt:
//
//	fmt.Errorf("%w: %w", retry.ErrRetry, cause)
var ErrRetry = errors.New("retry")

// Backoff is a (blocking) function returning when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// For the N-th call, it waits for `initialInterval * r^N` or for context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			i := float64(interval) * r
			interval = time.Duration(int64(i))
			return nil
		}
	}
}

// Blocking calls f until it returns nil or a non-retryable error.
//
// The first attempt runs immediately; b runs between attempts.
// f decides when to give up: returning an error without ErrRetry in its
// chain terminates the loop with that error.
//
// # Args
//
// - ctx: context
//
// - b: backoff function
//
// - f: function to be called. If f returns an error wrapping ErrRetry,
// Blocking calls f again after backoff.
//
// # Returns
//
// - T: last return value of f
//
// - error: terminal error of f, or ctx error when canceled during backoff
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	for {
		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if !errors.Is(err, ErrRetry) {
			return last, err
		}
		if err := b(ctx); err != nil {
			return last, err
		}
	}
}

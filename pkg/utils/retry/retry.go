package retry

import (
	"context"
	"errors"
	"time"
)

var (
	// f returns this to be called again.
	ErrRetry = errors.New("retry")

	// Backoff made by Limited returns this when it is called more than the limit.
	ErrExhausted = errors.New("retry: exhausted")
)

// Backoff is a (blocking) function returns when to retry.
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
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
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

// Limited returns a Backoff which waits with b up to n times.
//
// After that, it returns ErrExhausted without waiting.
func Limited(n int, b Backoff) Backoff {
	count := 0
	return func(ctx context.Context) error {
		if n <= count {
			return ErrExhausted
		}
		count++
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// When f returns ErrRetry, Blocking waits with b and calls f again.
// If b returns an error, Blocking returns it with the last value of f.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	for {
		last, err := f()
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

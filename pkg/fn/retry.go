package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures Retry. MaxAttempts counts the first call.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable reports whether a failure is worth another attempt.
	// Nil retries every failure.
	Retryable func(error) bool
}

// DefaultRetry is used by backend clients that are not configured otherwise.
var DefaultRetry = RetryOpts{
	MaxAttempts: 2,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// Retry calls f until it succeeds, the attempts run out, the failure is not
// retryable, or ctx is done. Waits grow exponentially up to MaxWait.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := max(opts.MaxAttempts, 1)
	wait := opts.InitialWait

	var r Result[T]
	for i := 0; i < attempts; i++ {
		r = f(ctx)
		if r.IsOk() || i == attempts-1 {
			return r
		}
		if opts.Retryable != nil && !opts.Retryable(r.Error()) {
			return r
		}

		sleep := wait
		if opts.Jitter && wait > 0 {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && sleep > opts.MaxWait {
			sleep = opts.MaxWait
		}
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return Err[T](ctx.Err())
		case <-t.C:
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return r
}


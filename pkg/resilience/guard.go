package resilience

import (
	"context"
	"errors"

	"github.com/tacticalcatboy/legit-rag/pkg/fn"
)

// Guard bundles the protections applied to one backend. Nil members are skipped.
type Guard struct {
	Breaker *Breaker
	Limiter *Limiter
	Retry   fn.RetryOpts
}

// Run calls f through the limiter and breaker, retrying per g.Retry.
// An open circuit and context errors are never retried.
func Run[T any](ctx context.Context, g *Guard, f func(context.Context) (T, error)) (T, error) {
	if g == nil {
		return f(ctx)
	}
	opts := g.Retry
	user := opts.Retryable
	opts.Retryable = func(err error) bool {
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return user == nil || user(err)
	}
	return fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[T] {
		if g.Limiter != nil {
			if err := g.Limiter.Wait(ctx); err != nil {
				return fn.Err[T](err)
			}
		}
		if g.Breaker == nil {
			return fn.FromPair(f(ctx))
		}
		return fn.FromPair(Do(ctx, g.Breaker, f))
	}).Unwrap()
}

package resilience

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures a Limiter. A non-positive Rate disables limiting.
type LimiterOpts struct {
	Rate  float64
	Burst int
}

// Limiter is a token bucket shared by every caller of one backend.
type Limiter struct {
	lim *rate.Limiter
}

func NewLimiter(opts LimiterOpts) *Limiter {
	limit := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		limit = rate.Inf
	}
	burst := max(opts.Burst, 1)
	return &Limiter{lim: rate.NewLimiter(limit, burst)}
}

// Allow takes a token if one is available now.
func (l *Limiter) Allow() bool { return l.lim.Allow() }

// Wait blocks for a token. It fails fast with ErrRateLimited when ctx would
// expire before one becomes available.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tacticalcatboy/legit-rag/pkg/fn"
)

var errFail = errors.New("fail")

func failing(context.Context) error { return errFail }
func passing(context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Cooldown: time.Second})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Call(ctx, failing)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
	if err := b.Call(ctx, passing); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3})
	ctx := context.Background()
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, passing)
	_ = b.Call(ctx, failing)
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Unix(0, 0)
	var transitions []string
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Minute, OnStateChange: func(from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	now = now.Add(time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	if err := b.Call(ctx, passing); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe, got %v", b.State())
	}
	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions: %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions: %v", transitions)
		}
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1})
	_ = b.Call(context.Background(), func(context.Context) error { return context.Canceled })
	if b.State() != StateClosed {
		t.Fatalf("cancellation must not trip the breaker, got %v", b.State())
	}
}

func TestDoReturnsValue(t *testing.T) {
	b := NewBreaker(BreakerOpts{})
	v, err := Do(context.Background(), b, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("got %q %v", v, err)
	}
}

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 2})
	if !l.Allow() || !l.Allow() {
		t.Fatal("expected burst of 2")
	}
	if l.Allow() {
		t.Fatal("expected bucket to be empty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected wait to fail")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(LimiterOpts{})
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatal("zero rate should not limit")
		}
	}
}

func TestGuardRetriesTransientFailures(t *testing.T) {
	g := &Guard{
		Breaker: NewBreaker(BreakerOpts{FailThreshold: 10}),
		Limiter: NewLimiter(LimiterOpts{}),
		Retry:   fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond},
	}
	calls := 0
	v, err := Run(context.Background(), g, func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errFail
		}
		return 5, nil
	})
	if err != nil || v != 5 || calls != 2 {
		t.Fatalf("got %d %v after %d calls", v, err, calls)
	}
}

func TestGuardDoesNotRetryOpenCircuit(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Hour})
	_ = b.Call(context.Background(), failing)
	g := &Guard{Breaker: b, Retry: fn.RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond}}
	calls := 0
	_, err := Run(context.Background(), g, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if !errors.Is(err, ErrCircuitOpen) || calls != 0 {
		t.Fatalf("expected open circuit without calls, got %v calls=%d", err, calls)
	}
}

func TestNilGuard(t *testing.T) {
	v, err := Run(context.Background(), nil, func(context.Context) (int, error) { return 1, nil })
	if err != nil || v != 1 {
		t.Fatalf("got %d %v", v, err)
	}
}

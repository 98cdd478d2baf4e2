package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestResultBasics(t *testing.T) {
	ok := Ok(3)
	if !ok.IsOk() || ok.IsErr() {
		t.Fatal("expected ok")
	}
	if v, err := ok.Unwrap(); v != 3 || err != nil {
		t.Fatalf("unwrap: %v %v", v, err)
	}

	bad := Err[int](errBoom)
	if bad.IsOk() || !errors.Is(bad.Error(), errBoom) {
		t.Fatal("expected failure")
	}
	if bad.UnwrapOr(7) != 7 {
		t.Fatal("expected fallback")
	}
	if Err[int](nil).IsOk() {
		t.Fatal("nil error must still be a failure")
	}
}

func TestMapResultAndCollect(t *testing.T) {
	r := MapResult(Ok(2), strconv.Itoa)
	if v, _ := r.Unwrap(); v != "2" {
		t.Fatalf("got %q", v)
	}
	if MapResult(Err[int](errBoom), strconv.Itoa).IsOk() {
		t.Fatal("failure must pass through")
	}

	all := Collect([]Result[int]{Ok(1), Ok(2)})
	if v, _ := all.Unwrap(); len(v) != 2 || v[1] != 2 {
		t.Fatalf("collect: %v", v)
	}
	if Collect([]Result[int]{Ok(1), Err[int](errBoom)}).IsOk() {
		t.Fatal("expected collect to fail")
	}
}

func TestThenShortCircuits(t *testing.T) {
	called := false
	first := Lift(func(_ context.Context, n int) (int, error) { return 0, errBoom })
	second := Stage[int, string](func(_ context.Context, n int) Result[string] {
		called = true
		return Ok("x")
	})
	r := Then(first, second)(context.Background(), 1)
	if !errors.Is(r.Error(), errBoom) || called {
		t.Fatalf("expected short-circuit, got %v called=%v", r.Error(), called)
	}
}

func TestPipelineAndTraced(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	var seen int
	tap := TapStage(func(_ context.Context, n int) { seen = n })
	p := Traced("double", Pipeline(double, tap, double))
	v, err := p(context.Background(), 3).Unwrap()
	if err != nil || v != 12 || seen != 6 {
		t.Fatalf("got %d %v seen=%d", v, err, seen)
	}

	failing := Traced("fail", Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errBoom) }))
	if !errors.Is(failing(context.Background(), 1).Error(), errBoom) {
		t.Fatal("expected traced failure to pass through")
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	var calls int32
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[int] {
		if atomic.AddInt32(&calls, 1) < 3 {
			return Err[int](errBoom)
		}
		return Ok(9)
	})
	if v, err := r.Unwrap(); err != nil || v != 9 || calls != 3 {
		t.Fatalf("got %d %v after %d calls", v, err, calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	var calls int
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond, Retryable: func(err error) bool {
		return !errors.Is(err, permanent)
	}}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](permanent)
	})
	if r.IsOk() || calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 3, InitialWait: time.Hour}, func(context.Context) Result[int] {
		return Err[int](errBoom)
	})
	if !errors.Is(r.Error(), context.Canceled) {
		t.Fatalf("expected canceled, got %v", r.Error())
	}
}

func TestParMapResultKeepsOrder(t *testing.T) {
	var inflight, peak int32
	items := []int{1, 2, 3, 4, 5, 6}
	out := ParMapResult(context.Background(), items, 2, func(_ context.Context, n int) Result[int] {
		cur := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return Ok(n * n)
	})
	for i, r := range out {
		if v, _ := r.Unwrap(); v != items[i]*items[i] {
			t.Fatalf("index %d: got %d", i, v)
		}
	}
	if peak > 2 {
		t.Fatalf("expected at most 2 workers, saw %d", peak)
	}
	if len(ParMapResult(context.Background(), []int(nil), 2, func(context.Context, int) Result[int] { return Ok(0) })) != 0 {
		t.Fatal("expected empty output")
	}
}

func TestSliceHelpers(t *testing.T) {
	if got := Unique([]string{"a", "b", "a", "c", "b"}); len(got) != 3 || got[2] != "c" {
		t.Fatalf("unique: %v", got)
	}
	if got := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 }); len(got) != 2 {
		t.Fatalf("filter: %v", got)
	}
	if got := Map([]int{1, 2}, strconv.Itoa); got[1] != "2" {
		t.Fatalf("map: %v", got)
	}
}

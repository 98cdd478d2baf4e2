// Package fn holds the small generic toolkit the pipeline is built from:
// a Result type, composable stages, retry and bounded parallel mapping.
package fn

import "fmt"

// Result carries either a value or the error that prevented it.
type Result[T any] struct {
	val T
	err error
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] { return Result[T]{val: v} }

// Err wraps a failure. A nil err is treated as an unspecified failure.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("fn: unspecified failure")
	}
	return Result[T]{err: err}
}

// FromPair lifts a (value, error) return into a Result.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

func (r Result[T]) IsOk() bool { return r.err == nil }
func (r Result[T]) IsErr() bool { return r.err != nil }

// Unwrap returns the value and error as a Go pair.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Error returns the failure, or nil.
func (r Result[T]) Error() error { return r.err }

// UnwrapOr returns the value, or fallback when the Result failed.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.val
}

// MapResult converts a successful value; failures pass through untouched.
func MapResult[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}
	return Ok(f(r.val))
}

// Collect gathers successful values in order, stopping at the first failure.
func Collect[T any](results []Result[T]) Result[[]T] {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			return Err[[]T](r.err)
		}
		out = append(out, r.val)
	}
	return Ok(out)
}

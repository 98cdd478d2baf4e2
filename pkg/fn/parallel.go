package fn

import (
	"context"
	"sync"
)

// ParMapResult applies f to every item using at most workers goroutines and
// returns results in input order. Items not started before ctx is done
// resolve to ctx.Err().
func ParMapResult[T, U any](ctx context.Context, items []T, workers int, f func(context.Context, T) Result[U]) []Result[U] {
	out := make([]Result[U], len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, item := range items {
		select {
		case <-ctx.Done():
			out[i] = Err[U](ctx.Err())
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, item T) {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(ctx, item)
		}(i, item)
	}
	wg.Wait()
	return out
}

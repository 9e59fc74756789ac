// Package fanout runs a function over a batch with bounded concurrency and
// keeps every per-item outcome. Recovery uses it so one bad verification
// is reported instead of aborting the sweep.
package fanout

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome for the item at the same index.
type Result[R any] struct {
	Value R
	Err   error
}

// Run calls fn for each item with at most workers calls in flight. Results
// line up with items. Items not started before ctx is done get ctx.Err().
// A panic in fn is recorded as that item's error.
func Run[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(max(workers, 1))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(items); j++ {
				results[j].Err = err
			}
			break
		}
		g.Go(func() error {
			results[i] = call(ctx, item, fn)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func call[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (res Result[R]) {
	defer func() {
		if v := recover(); v != nil {
			res = Result[R]{Err: fmt.Errorf("panic: %v", v)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return Result[R]{Err: err}
	}
	v, err := fn(ctx, item)
	return Result[R]{Value: v, Err: err}
}

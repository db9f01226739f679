// Package race runs competing operations and keeps whichever finishes first.
package race

import (
	"context"
	"errors"
	"time"
)

// ErrNoCompetitors is returned by First when called without functions.
var ErrNoCompetitors = errors.New("race: no competitors")

// Func is one competitor. It must return promptly once ctx is done.
type Func[T any] func(ctx context.Context) (T, error)

// First runs every fn in its own goroutine and returns the result of the one
// that returns first, error or not. The context given to the others is
// cancelled before First returns; First does not wait for them to exit.
func First[T any](ctx context.Context, fns ...Func[T]) (T, error) {
	if len(fns) == 0 {
		var zero T
		return zero, ErrNoCompetitors
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	// buffered so losers never block after the winner is taken
	results := make(chan result, len(fns))
	for _, fn := range fns {
		go func(fn Func[T]) {
			v, err := fn(ctx)
			results <- result{v, err}
		}(fn)
	}

	r := <-results
	return r.v, r.err
}

// After returns a competitor that yields v once d has elapsed.
func After[T any](d time.Duration, v T) Func[T] {
	return func(ctx context.Context) (T, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return v, nil
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Recv returns a competitor that yields the first value received from ch.
// A closed ch makes the competitor wait for cancellation instead, so a
// source that ends without a value never wins the race.
func Recv[T any](ch <-chan T) Func[T] {
	return func(ctx context.Context) (T, error) {
		select {
		case v, ok := <-ch:
			if ok {
				return v, nil
			}
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
		<-ctx.Done()
		var zero T
		return zero, ctx.Err()
	}
}

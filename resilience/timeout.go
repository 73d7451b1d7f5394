package resilience

import (
	"context"
	"time"

	"github.com/relloyd/odsync/etlerrors"
)

type callResult[T any] struct {
	val T
	err error
}

// CallWithTimeout runs fn with a wall-clock budget.
// fn receives a context that is cancelled when the budget expires, but it is not waited for: if fn ignores
// the context it keeps running in the background and its result is discarded. Callers must not assume
// resources held by an abandoned call are released when TimeoutError is returned.
// A budget <= 0 disables the guard.
func CallWithTimeout[T any](ctx context.Context, op string, budget time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if budget <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	done := make(chan callResult[T], 1) // buffered so an abandoned call can always finish
	go func() {
		v, err := fn(tctx)
		done <- callResult[T]{val: v, err: err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-tctx.Done():
		var zero T
		if err := ctx.Err(); err != nil { // the caller gave up, not the budget.
			return zero, err
		}
		return zero, &etlerrors.TimeoutError{Op: op, Budget: budget}
	}
}

// WithTimeout is CallWithTimeout for operations without a result.
func WithTimeout(ctx context.Context, op string, budget time.Duration, fn func(ctx context.Context) error) error {
	_, err := CallWithTimeout(ctx, op, budget, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

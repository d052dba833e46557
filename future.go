package opscache

import (
	"context"
	"time"
)

// future is resolved exactly once; every waiter reads the same v/err after done closes.
type future[V any] struct {
	done chan struct{}
	v    V
	err  error
}

func newFuture[V any]() *future[V] {
	return &future[V]{done: make(chan struct{})}
}

func (f *future[V]) resolve(v V, err error) {
	f.v, f.err = v, err
	close(f.done)
}

func (f *future[V]) wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.v, f.err
	default:
	}
	select {
	case <-f.done:
		return f.v, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// WithTimeout wraps fetch so it fails with a transport error once d elapses,
// even when fetch itself ignores its context. A timed-out attempt leaves the
// entry Failed, so the next Get retries.
func WithTimeout[V any](d time.Duration, fetch FetchFunc[V]) FetchFunc[V] {
	return func(ctx context.Context) (V, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			v   V
			err error
		}
		ch := make(chan result, 1)
		go func() {
			v, err := invoke(ctx, fetch)
			ch <- result{v, err}
		}()
		select {
		case r := <-ch:
			return r.v, r.err
		case <-ctx.Done():
			var zero V
			return zero, Transport("fetch", "", ctx.Err())
		}
	}
}

package opscache

import (
	"context"
	"time"
)

// FetchFunc performs the remote call for one resource key. Parameters such as
// page number or page size are captured by the closure.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Coordinator is a single-flight cache for one shared-resource kind.
// For any key at most one fetch is in flight; every concurrent caller
// observes the identical value or the identical error.
type Coordinator[V any] interface {
	// Get returns the cached value, attaches to the pending fetch, or starts a
	// new one. A caller whose ctx ends stops waiting; the fetch itself keeps
	// running and its result is written to the entry.
	Get(ctx context.Context, key string, fetch FetchFunc[V]) (V, error)

	// Invalidate forces the next Get to fetch again. An in-flight fetch is not
	// cancelled and later callers keep attaching to it until it resolves.
	Invalidate(key string)
	InvalidateAll()

	// Introspection (never blocks on fetches)
	Status(key string) Status
	Peek(key string) (v V, ok bool)
	Err(key string) error
	Keys() []string
	Namespace() string
}

// Options tune a Coordinator. Only Namespace is required.
type Options struct {
	Namespace string // resource kind, e.g. "shop-info", "warehouses"

	Logger Logger           // nil => NopLogger
	Hooks  Hooks            // nil => NopHooks
	Clock  func() time.Time // nil => time.Now
}

func New[V any](opts Options) (Coordinator[V], error) {
	return newCoordinator[V](opts)
}

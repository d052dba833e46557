package opscache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of one cache entry.
type Status uint8

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// entry invariants: pending != nil iff status == StatusLoading;
// value is meaningful iff status == StatusReady.
type entry[V any] struct {
	status  Status
	value   V
	err     error
	pending *future[V]
}

type coordinator[V any] struct {
	ns    string
	log   Logger
	hooks Hooks
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[V]
}

func newCoordinator[V any](opts Options) (*coordinator[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("opscache: namespace is required")
	}
	c := &coordinator[V]{
		ns:      opts.Namespace,
		entries: make(map[string]*entry[V]),
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if opts.Clock != nil {
		c.now = opts.Clock
	} else {
		c.now = time.Now
	}
	return c, nil
}

func (c *coordinator[V]) Namespace() string { return c.ns }

func (c *coordinator[V]) Get(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	var zero V
	if fetch == nil {
		return zero, errors.New("opscache: nil fetch")
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{}
		c.entries[key] = e
	}
	switch e.status {
	case StatusReady:
		v := e.value
		c.mu.Unlock()
		return v, nil
	case StatusLoading:
		f := e.pending
		c.mu.Unlock()
		c.hooks.FetchJoined(c.ns, key)
		return f.wait(ctx)
	}

	// idle or failed: this caller owns the new attempt
	f := newFuture[V]()
	e.status = StatusLoading
	e.pending = f
	e.value = zero
	e.err = nil
	c.mu.Unlock()

	c.hooks.FetchStarted(c.ns, key)
	c.log.Debug("fetch started", Fields{"ns": c.ns, "key": key})

	// the entry owns the outcome, so the fetch must outlive the caller's ctx
	go c.run(context.WithoutCancel(ctx), key, e, f, fetch)
	return f.wait(ctx)
}

func (c *coordinator[V]) run(ctx context.Context, key string, e *entry[V], f *future[V], fetch FetchFunc[V]) {
	start := c.now()
	v, err := invoke(ctx, fetch)
	err = classify(key, err)

	c.mu.Lock()
	e.pending = nil
	if err != nil {
		var zero V
		e.status = StatusFailed
		e.value = zero
		e.err = err
		v = zero
	} else {
		e.status = StatusReady
		e.value = v
		e.err = nil
	}
	c.mu.Unlock()

	f.resolve(v, err)

	if err != nil {
		c.hooks.FetchFailed(c.ns, key, err)
		c.log.Warn("fetch failed", Fields{"ns": c.ns, "key": key, "err": err})
		return
	}
	d := c.now().Sub(start)
	c.hooks.FetchSucceeded(c.ns, key, d)
	c.log.Debug("fetch resolved", Fields{"ns": c.ns, "key": key, "took": d})
}

// invoke runs fetch and turns a panic into an ordinary error so waiters
// are never left hanging on an unresolved future.
func invoke[V any](ctx context.Context, fetch FetchFunc[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			v = zero
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

func (c *coordinator[V]) Invalidate(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	pending := ok && c.resetLocked(e)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.hooks.Invalidated(c.ns, key, pending)
	c.log.Debug("invalidated", Fields{"ns": c.ns, "key": key, "pending": pending})
}

func (c *coordinator[V]) InvalidateAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	pend := make([]bool, 0, len(c.entries))
	for k, e := range c.entries {
		keys = append(keys, k)
		pend = append(pend, c.resetLocked(e))
	}
	c.mu.Unlock()
	for i, k := range keys {
		c.hooks.Invalidated(c.ns, k, pend[i])
	}
	c.log.Debug("invalidated all", Fields{"ns": c.ns, "count": len(keys)})
}

// resetLocked moves e to idle unless a fetch is in flight, in which case the
// pending future is kept and the fetch result lands as usual.
func (c *coordinator[V]) resetLocked(e *entry[V]) (pending bool) {
	if e.status == StatusLoading {
		return true
	}
	var zero V
	e.status = StatusIdle
	e.value = zero
	e.err = nil
	return false
}

func (c *coordinator[V]) Status(key string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.status
	}
	return StatusIdle
}

func (c *coordinator[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.status == StatusReady {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Err returns the classified error of a failed entry.
func (c *coordinator[V]) Err(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.status == StatusFailed {
		return e.err
	}
	return nil
}

func (c *coordinator[V]) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

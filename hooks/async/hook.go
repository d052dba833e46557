// Package asynchook moves hook delivery off the caller's goroutine. Events are
// queued to a fixed worker pool and dropped when the queue is full, so a slow
// sink never stalls a fetch or a session mutation.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    JoinEvery: 10, // sample ~every 10th joined fetch
//	})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	shops, _ := opscache.New[ShopInfo](opscache.Options{
//	    Namespace: "shop-info",
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/opscache"
)

type Hooks struct {
	inner   opscache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ opscache.Hooks = (*Hooks)(nil)

func New(inner opscache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full
// or the hooks were closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchStarted(ns, k string) { h.try(func() { h.inner.FetchStarted(ns, k) }) }
func (h *Hooks) FetchJoined(ns, k string)  { h.try(func() { h.inner.FetchJoined(ns, k) }) }
func (h *Hooks) FetchSucceeded(ns, k string, d time.Duration) {
	h.try(func() { h.inner.FetchSucceeded(ns, k, d) })
}
func (h *Hooks) FetchFailed(ns, k string, err error) {
	h.try(func() { h.inner.FetchFailed(ns, k, err) })
}
func (h *Hooks) Invalidated(ns, k string, pending bool) {
	h.try(func() { h.inner.Invalidated(ns, k, pending) })
}
func (h *Hooks) StorageError(op, store, k string, err error) {
	h.try(func() { h.inner.StorageError(op, store, k, err) })
}
func (h *Hooks) SessionReset(reason string) { h.try(func() { h.inner.SessionReset(reason) }) }

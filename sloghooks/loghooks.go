// Package sloghooks reports opscache events through log/slog, with sampling
// for the high-volume ones and redacted keys.
package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/opscache"
	"github.com/unkn0wn-root/opscache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchEvery uint64
	JoinEvery  uint64
	// Optional key redactor. Defaults to a SHA-256 prefix. Resource keys
	// usually are not secret; storage keys may embed user data.
	Redact func(string) string
	// Log resource keys as is. Storage keys are always redacted.
	PlainResourceKeys bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr atomic.Uint64
	joinCtr  atomic.Uint64
}

var _ opscache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func (h *Hooks) resource(k string) string {
	if h.opts.PlainResourceKeys {
		return k
	}
	return h.redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchStarted(ns, key string) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("opscache.fetch_started", "ns", ns, "key", h.resource(key))
}

func (h *Hooks) FetchJoined(ns, key string) {
	if h.l == nil || !sample(h.opts.JoinEvery, &h.joinCtr) {
		return
	}
	h.l.Debug("opscache.fetch_joined", "ns", ns, "key", h.resource(key))
}

func (h *Hooks) FetchSucceeded(ns, key string, d time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("opscache.fetch_succeeded", "ns", ns, "key", h.resource(key), "took", d)
}

func (h *Hooks) FetchFailed(ns, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("opscache.fetch_failed",
		"ns", ns,
		"key", h.resource(key),
		"kind", opscache.KindOf(err).String(),
		"err", err)
}

func (h *Hooks) Invalidated(ns, key string, pending bool) {
	if h.l == nil {
		return
	}
	h.l.Info("opscache.invalidated", "ns", ns, "key", h.resource(key), "pending", pending)
}

func (h *Hooks) StorageError(op, store, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("opscache.storage_error",
		"op", op,
		"store", store,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) SessionReset(reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("opscache.session_reset", "reason", reason)
}

package opscache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The coordinator and the stores call them on hot paths.
type Hooks interface {
	// A Get found the key idle or failed and started a new fetch.
	FetchStarted(namespace, key string)

	// A Get attached to an already pending fetch instead of starting one.
	FetchJoined(namespace, key string)

	// A fetch resolved successfully after d.
	FetchSucceeded(namespace, key string, d time.Duration)

	// A fetch failed; the entry is now Failed and retried on next access.
	FetchFailed(namespace, key string, err error)

	// Invalidate was called for key. pending reports whether a fetch was in flight.
	Invalidated(namespace, key string, pending bool)

	// A durable read/write/remove failed and was swallowed.
	// op ∈ {"read", "write", "remove", "decode", "encode"}
	StorageError(op, store, key string, err error)

	// The session was reset to anonymous.
	// reason ∈ {"explicit", "expired", "remote_invalid", "remote_error", "route_guard"}
	SessionReset(reason string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchStarted(string, string)                  {}
func (NopHooks) FetchJoined(string, string)                   {}
func (NopHooks) FetchSucceeded(string, string, time.Duration) {}
func (NopHooks) FetchFailed(string, string, error)            {}
func (NopHooks) Invalidated(string, string, bool)             {}
func (NopHooks) StorageError(string, string, string, error)   {}
func (NopHooks) SessionReset(string)                          {}

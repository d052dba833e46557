// Package genstore keeps monotonically increasing revision counters. The
// session store bumps one on every mutation so consumers can tell whether
// the session changed since they last looked without diffing snapshots.
package genstore

import "context"

// GenStore abstracts where revisions live.
// Use LocalGenStore (default) for in-process revisions, or RedisGenStore when
// the session itself is persisted in Redis so the counter survives restarts
// together with it.
type GenStore interface {
	// Snapshot returns the current revision; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new revision.
	Bump(ctx context.Context, key string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}

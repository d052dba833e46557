// Package opscache coordinates the client-side state shared by the screens of
// an operations dashboard: who is signed in (see session and guard) and which
// slow reference resources have already been fetched.
//
// Components:
//   - Coordinator[V]: single-flight cache, one per resource kind. Concurrent
//     Get calls for a key collapse into one fetch; every caller sees the same
//     value or the same classified error. Failed entries retry lazily on the
//     next Get; Ready entries stay until Invalidate.
//   - persist.Adapter: durable token store + general store over a pluggable
//     provider.Provider (sqlite, redis, bigcache, ristretto). Never fails callers.
//   - session.Store: token, identity, roles, expiry; memory and durable copies
//     kept consistent.
//   - guard.Guard: expiry checks, one-shot remote confirmation, route entry policy.
//
// Entry lifecycle:
//
//	Idle --Get--> Loading --ok--> Ready --Invalidate--> Idle
//	                      --err-> Failed --Get--> Loading
//
// Typical use:
//
//	shops, _ := opscache.New[ShopInfo](opscache.Options{Namespace: "shop-info"})
//	info, err := shops.Get(ctx, "default", func(ctx context.Context) (ShopInfo, error) {
//	    return api.ShopInfo(ctx)
//	})
package opscache

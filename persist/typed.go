package persist

import (
	"context"

	"github.com/unkn0wn-root/opscache/codec"
)

// Load reads key from s and decodes it with c. A value that does not decode
// is reported and treated as absent.
func Load[V any](ctx context.Context, a *Adapter, s Store, key string, c codec.Codec[V]) (V, bool) {
	var zero V
	b, ok := a.ReadBytes(ctx, s, key)
	if !ok {
		return zero, false
	}
	v, err := c.Decode(b)
	if err != nil {
		a.fail("decode", s, key, err)
		return zero, false
	}
	return v, true
}

// Save encodes v with c and writes it to s. Encode failures are swallowed
// like any other persistence failure.
func Save[V any](ctx context.Context, a *Adapter, s Store, key string, v V, c codec.Codec[V]) {
	b, err := c.Encode(v)
	if err != nil {
		a.fail("encode", s, key, err)
		return
	}
	a.WriteBytes(ctx, s, key, b)
}

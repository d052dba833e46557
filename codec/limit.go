package codec

import "fmt"

// Limit wraps another codec and refuses to decode payloads larger than Max
// bytes. Hydration uses it so a corrupted or foreign durable value can not
// blow up memory at start-up. Max <= 0 disables the check.
type Limit[V any] struct {
	Inner Codec[V]
	Max   int
}

func WithLimit[V any](inner Codec[V], max int) Codec[V] {
	if max <= 0 {
		return inner
	}
	return Limit[V]{Inner: inner, Max: max}
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.Max > 0 && len(b) > c.Max {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.Max)
	}
	return c.Inner.Decode(b)
}

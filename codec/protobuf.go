package codec

import "google.golang.org/protobuf/proto"

type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *structpb.Struct { return &structpb.Struct{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}
func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

// ProtoMapped stores a plain Go value V as protobuf message M. To and From
// convert between the two; the bytes on disk are M's wire format.
type ProtoMapped[V any, M proto.Message] struct {
	Inner Protobuf[M]
	To    func(V) (M, error)
	From  func(M) (V, error)
}

func (c ProtoMapped[V, M]) Encode(v V) ([]byte, error) {
	m, err := c.To(v)
	if err != nil {
		return nil, err
	}
	return c.Inner.Encode(m)
}

func (c ProtoMapped[V, M]) Decode(b []byte) (V, error) {
	m, err := c.Inner.Decode(b)
	if err != nil {
		var zero V
		return zero, err
	}
	return c.From(m)
}

package session

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/unkn0wn-root/opscache/codec"
)

// NameProtobuf selects the protobuf codec set (structpb / wrapperspb messages).
const NameProtobuf = "protobuf"

// Codecs serialize the three general-store values. All three should use the
// same format; CodecsFor builds a consistent set.
type Codecs struct {
	Identity codec.Codec[Identity]
	Roles    codec.Codec[[]Role]
	Expiry   codec.Codec[int64]
}

// CodecsFor returns the codec set for name: json (default), cbor, msgpack or protobuf.
func CodecsFor(name string) (Codecs, error) {
	if name == NameProtobuf {
		return protoCodecs(), nil
	}
	id, err := codec.ForName[Identity](name)
	if err != nil {
		return Codecs{}, err
	}
	roles, err := codec.ForName[[]Role](name)
	if err != nil {
		return Codecs{}, err
	}
	exp, err := codec.ForName[int64](name)
	if err != nil {
		return Codecs{}, err
	}
	return Codecs{Identity: id, Roles: roles, Expiry: exp}, nil
}

func (c Codecs) limited(max int) Codecs {
	return Codecs{
		Identity: codec.WithLimit(c.Identity, max),
		Roles:    codec.WithLimit(c.Roles, max),
		Expiry:   codec.WithLimit(c.Expiry, max),
	}
}

func protoCodecs() Codecs {
	return Codecs{
		Identity: codec.ProtoMapped[Identity, *structpb.Struct]{
			Inner: codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} }),
			To:    identityToStruct,
			From:  identityFromStruct,
		},
		Roles: codec.ProtoMapped[[]Role, *structpb.ListValue]{
			Inner: codec.NewProtobuf(func() *structpb.ListValue { return &structpb.ListValue{} }),
			To:    rolesToList,
			From:  rolesFromList,
		},
		Expiry: codec.ProtoMapped[int64, *wrapperspb.Int64Value]{
			Inner: codec.NewProtobuf(func() *wrapperspb.Int64Value { return &wrapperspb.Int64Value{} }),
			To:    func(ms int64) (*wrapperspb.Int64Value, error) { return wrapperspb.Int64(ms), nil },
			From:  func(m *wrapperspb.Int64Value) (int64, error) { return m.GetValue(), nil },
		},
	}
}

func identityToStruct(id Identity) (*structpb.Struct, error) {
	m := map[string]any{"id": id.ID}
	if id.Name != "" {
		m["name"] = id.Name
	}
	if id.Email != "" {
		m["email"] = id.Email
	}
	if id.Phone != "" {
		m["phone"] = id.Phone
	}
	if len(id.Permissions) > 0 {
		perms := make([]any, len(id.Permissions))
		for i, p := range id.Permissions {
			perms[i] = p
		}
		m["permissions"] = perms
	}
	if len(id.Claims) > 0 {
		m["claims"] = id.Claims
	}
	return structpb.NewStruct(m)
}

func identityFromStruct(s *structpb.Struct) (Identity, error) {
	m := s.AsMap()
	id := Identity{}
	id.ID, _ = m["id"].(string)
	if id.ID == "" {
		return Identity{}, fmt.Errorf("identity: missing id")
	}
	id.Name, _ = m["name"].(string)
	id.Email, _ = m["email"].(string)
	id.Phone, _ = m["phone"].(string)
	if perms, ok := m["permissions"].([]any); ok {
		id.Permissions = make([]string, 0, len(perms))
		for _, p := range perms {
			if ps, ok := p.(string); ok {
				id.Permissions = append(id.Permissions, ps)
			}
		}
	}
	if claims, ok := m["claims"].(map[string]any); ok {
		id.Claims = claims
	}
	return id, nil
}

func rolesToList(roles []Role) (*structpb.ListValue, error) {
	items := make([]any, len(roles))
	for i, r := range roles {
		items[i] = map[string]any{"id": r.ID, "name": r.Name}
	}
	return structpb.NewList(items)
}

func rolesFromList(l *structpb.ListValue) ([]Role, error) {
	out := make([]Role, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("roles: element is not an object")
		}
		m := s.AsMap()
		id, _ := m["id"].(string)
		name, _ := m["name"].(string)
		out = append(out, Role{ID: id, Name: name})
	}
	return out, nil
}

package session

import (
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"
)

// Identity is the signed-in user. Only ID is interpreted; everything else is
// carried for the screens.
type Identity struct {
	ID          string         `json:"id" cbor:"id" msgpack:"id"`
	Name        string         `json:"name,omitempty" cbor:"name,omitempty" msgpack:"name,omitempty"`
	Email       string         `json:"email,omitempty" cbor:"email,omitempty" msgpack:"email,omitempty"`
	Phone       string         `json:"phone,omitempty" cbor:"phone,omitempty" msgpack:"phone,omitempty"`
	Permissions []string       `json:"permissions,omitempty" cbor:"permissions,omitempty" msgpack:"permissions,omitempty"`
	Claims      map[string]any `json:"claims,omitempty" cbor:"claims,omitempty" msgpack:"claims,omitempty"`
}

// ClaimExpiry is the claim consulted when no locally computed expiry exists.
// Unix seconds, as in JWT.
const ClaimExpiry = "exp"

// ExpiryClaim returns the "exp" claim as a time, if present and numeric.
func (id *Identity) ExpiryClaim() (time.Time, bool) {
	if id == nil || id.Claims == nil {
		return time.Time{}, false
	}
	secs, ok := toInt64(id.Claims[ClaimExpiry])
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

func (id *Identity) clone() *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	cp.Permissions = slices.Clone(id.Permissions)
	cp.Claims = maps.Clone(id.Claims)
	return &cp
}

// toInt64 accepts the numeric shapes the codecs produce for a claim.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

type Role struct {
	ID   string `json:"id" cbor:"id" msgpack:"id"`
	Name string `json:"name,omitempty" cbor:"name,omitempty" msgpack:"name,omitempty"`
}

// Snapshot is a copy of the session at one instant. Mutating it does not
// affect the store.
type Snapshot struct {
	Token    string
	User     *Identity
	Roles    []Role
	ExpiryMs int64 // unix millis; 0 => none
	Revision uint64
}

// Authenticated reports whether token and user id are both present.
func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.User != nil && s.User.ID != ""
}

// Expiry returns the locally computed expiry, if any.
func (s Snapshot) Expiry() (time.Time, bool) {
	if s.ExpiryMs == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(s.ExpiryMs), true
}

// HasRole reports whether the session carries the role id.
func (s Snapshot) HasRole(id string) bool {
	if s.User == nil {
		return false
	}
	return slices.ContainsFunc(s.Roles, func(r Role) bool { return r.ID == id })
}

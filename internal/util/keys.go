package util

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// StorageKey returns the namespaced key a logical key is persisted under:
// <namespace>:<store>:<key>.
func StorageKey(namespace, store, key string) string {
	var b strings.Builder
	b.Grow(len(namespace) + len(store) + len(key) + 2)
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(store)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

// Redact returns a short stable digest of k, safe to put in logs.
func Redact(k string) string {
	sum := sha256.Sum256([]byte(k))
	return fmt.Sprintf("%x", sum[:8])
}

package opscache

import (
	"errors"
	"fmt"
)

// Kind tags every error produced by the core. Callers dispatch on Kind,
// never on concrete types.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindTransport: a fetch or remote call failed (network, non-success status).
	KindTransport
	// KindValidation: the remote side explicitly reported the session invalid.
	KindValidation
	// KindPersistence: a durable read/write/remove failed. Never leaves persist.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind:
//
//	if errors.Is(err, opscache.ErrTransport) { ... }
var (
	ErrTransport   = &Error{Kind: KindTransport}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrPersistence = &Error{Kind: KindPersistence}
)

// Error carries a kind, the failing operation and the original cause.
type Error struct {
	Kind Kind
	Op   string // e.g. "fetch", "confirm", "write"
	Key  string // resource or storage key, if any
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var s string
	switch {
	case e.Op != "" && e.Key != "":
		s = fmt.Sprintf("%s %s %q", e.Kind, e.Op, e.Key)
	case e.Op != "":
		s = fmt.Sprintf("%s %s", e.Kind, e.Op)
	default:
		s = e.Kind.String()
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Transport wraps cause as a transport error.
func Transport(op, key string, cause error) error {
	return &Error{Kind: KindTransport, Op: op, Key: key, Err: cause}
}

// Validation builds a validation error.
func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

// Persistence wraps cause as a persistence error.
func Persistence(op, key string, cause error) error {
	return &Error{Kind: KindPersistence, Op: op, Key: key, Err: cause}
}

// classify keeps already-tagged errors and tags everything else as transport.
func classify(key string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Transport("fetch", key, err)
}

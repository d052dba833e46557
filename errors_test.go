package opscache

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
		kind Kind
	}{
		{Transport("fetch", "shopInfo", io.EOF), ErrTransport, KindTransport},
		{Validation("confirm", "rejected"), ErrValidation, KindValidation},
		{Persistence("write", "ns:token:token", io.ErrShortWrite), ErrPersistence, KindPersistence},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if !errors.Is(wrapped, tc.want) {
			t.Fatalf("%v should match %v", wrapped, tc.want)
		}
		if KindOf(wrapped) != tc.kind {
			t.Fatalf("KindOf(%v) = %s", wrapped, KindOf(wrapped))
		}
		for _, other := range []error{ErrTransport, ErrValidation, ErrPersistence} {
			if other != tc.want && errors.Is(tc.err, other) {
				t.Fatalf("%v must not match %v", tc.err, other)
			}
		}
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := Transport("fetch", "k", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("cause lost: %v", err)
	}
	if got := err.Error(); got != `transport fetch "k": unexpected EOF` {
		t.Fatalf("message: %q", got)
	}
}

func TestClassify(t *testing.T) {
	if classify("k", nil) != nil {
		t.Fatalf("nil stays nil")
	}
	v := Validation("fetch", "bad page")
	if classify("k", v) != v {
		t.Fatalf("tagged errors are kept as-is")
	}
	if KindOf(classify("k", errors.New("x"))) != KindTransport {
		t.Fatalf("untagged errors become transport")
	}
	if KindOf(nil) != KindUnknown || KindOf(io.EOF) != KindUnknown {
		t.Fatalf("KindOf on foreign errors")
	}
}

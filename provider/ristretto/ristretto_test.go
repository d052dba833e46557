package ristretto

import (
	"context"
	"testing"
)

func TestRistrettoReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close(ctx)

	if ok, err := p.Set(ctx, "opsdash:general:roles", []byte(`[{"id":"admin"}]`), 0, 0); err != nil || !ok {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "opsdash:general:roles")
	if err != nil || !ok || string(got) != `[{"id":"admin"}]` {
		t.Fatalf("get right after set: %q ok=%v err=%v", got, ok, err)
	}
	_ = p.Del(ctx, "opsdash:general:roles")
	if _, ok, _ := p.Get(ctx, "opsdash:general:roles"); ok {
		t.Fatalf("expected miss after del")
	}
}

func TestRistrettoRejectsNegativeConfig(t *testing.T) {
	if _, err := New(Config{MaxCost: -1}); err == nil {
		t.Fatalf("expected error")
	}
}

package genstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalSnapshotMissingIsZero(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore()
	t.Cleanup(func() { _ = s.Close(ctx) })

	if g, err := s.Snapshot(ctx, "session"); err != nil || g != 0 {
		t.Fatalf("g=%d err=%v want 0", g, err)
	}
}

func TestLocalBumpConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Bump(ctx, "session")
		}()
	}
	wg.Wait()
	if g, _ := s.Snapshot(ctx, "session"); g != 50 {
		t.Fatalf("got %d want 50", g)
	}
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

func TestRedisBumpAndSnapshot(t *testing.T) {
	ctx := context.Background()
	rdb, _ := newRedis(t)
	s := NewRedisGenStore(rdb, "opsdash")

	if g, err := s.Snapshot(ctx, "session"); err != nil || g != 0 {
		t.Fatalf("missing: g=%d err=%v", g, err)
	}
	for want := uint64(1); want <= 3; want++ {
		g, err := s.Bump(ctx, "session")
		if err != nil || g != want {
			t.Fatalf("bump: g=%d err=%v want %d", g, err, want)
		}
	}
	if g, _ := s.Snapshot(ctx, "session"); g != 3 {
		t.Fatalf("snapshot: got %d want 3", g)
	}
	// a second store over the same namespace sees the same counter
	if g, _ := NewRedisGenStore(rdb, "opsdash").Snapshot(ctx, "session"); g != 3 {
		t.Fatalf("shared snapshot: got %d want 3", g)
	}
}

func TestRedisBumpWithTTLExpires(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newRedis(t)
	s := NewRedisGenStoreWithTTL(rdb, "opsdash", time.Minute)

	if g, err := s.Bump(ctx, "session"); err != nil || g != 1 {
		t.Fatalf("bump: g=%d err=%v", g, err)
	}
	if ttl := mr.TTL("rev:opsdash:session"); ttl <= 0 {
		t.Fatalf("expected ttl on revision key, got %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if g, _ := s.Snapshot(ctx, "session"); g != 0 {
		t.Fatalf("expected expired revision to read 0, got %d", g)
	}
}

func TestRedisSnapshotParseError(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newRedis(t)
	_ = mr.Set("rev:opsdash:session", "not-a-number")
	if _, err := NewRedisGenStore(rdb, "opsdash").Snapshot(ctx, "session"); err == nil {
		t.Fatalf("expected parse error")
	}
}

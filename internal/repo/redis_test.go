package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock(t *testing.T) {
	_, client := newMiniRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "lock:test", time.Minute)
	if err := first.Lock(ctx); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	second := NewRedisLock(client, "lock:test", time.Minute)
	if err := second.Lock(ctx); !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expect ErrLockBusy, got %v", err)
	}
	// A holder that never acquired the lock must not release it.
	if err := second.Unlock(ctx); err != nil {
		t.Fatal(err)
	}
	if err := second.Lock(ctx); !errors.Is(err, ErrLockBusy) {
		t.Fatalf("lock released by non-owner: %v", err)
	}
	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := second.Lock(ctx); err != nil {
		t.Fatalf("lock after release: %v", err)
	}
}

func TestRedisExpiryScheduler(t *testing.T) {
	mr, client := newMiniRedis(t)
	s := NewRedisExpiryScheduler(client)
	if err := s.Schedule(context.Background(), "abc", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	ttl := mr.TTL("share:expire:abc")
	if ttl < 59*time.Minute || ttl > time.Hour {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	if err := s.Schedule(context.Background(), "past", time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("share:expire:past"); ttl != time.Second {
		t.Fatalf("past expiry should get the minimum ttl, got %s", ttl)
	}
}

func TestExpiryListenerDispatch(t *testing.T) {
	_, client := newMiniRedis(t)
	var (
		mu    sync.Mutex
		calls []string
	)
	handler := func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, id)
		return nil
	}
	first := NewExpiryListener(client, 0, handler, discardLogger())
	second := NewExpiryListener(client, 0, handler, discardLogger())
	ctx := context.Background()

	first.handleExpiredKey(ctx, "share:expire:s1")
	// Another instance receiving the same event must skip it.
	second.handleExpiredKey(ctx, "share:expire:s1")
	first.handleExpiredKey(ctx, "share:key:unrelated")
	first.handleExpiredKey(ctx, "other")

	if len(calls) != 1 || calls[0] != "s1" {
		t.Fatalf("expect single reclaim of s1, got %v", calls)
	}
}

func TestExpiryListenerReleasesLockOnFailure(t *testing.T) {
	_, client := newMiniRedis(t)
	attempts := 0
	handler := func(context.Context, string) error {
		attempts++
		if attempts == 1 {
			return errors.New("storage down")
		}
		return nil
	}
	l := NewExpiryListener(client, 0, handler, discardLogger())
	ctx := context.Background()
	l.handleExpiredKey(ctx, "share:expire:s1")
	l.handleExpiredKey(ctx, "share:expire:s1")
	if attempts != 2 {
		t.Fatalf("expect retry after failed reclaim, got %d attempts", attempts)
	}
}

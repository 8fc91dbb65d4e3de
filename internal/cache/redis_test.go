package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gbfs-sync/internal/model"
)

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache[*model.Vehicle], *recorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	c := NewRedis[*model.Vehicle](rc, "vehicle")
	rec := &recorder{}
	c.AddListener(rec)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return mr, c, rec
}

// wait：事件经 pub/sub 异步到达
func (r *recorder) wait(t *testing.T, n int) []recorded {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.evs) >= n {
			out := append([]recorded(nil), r.evs...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Fatalf("events: got %+v, want %d", r.evs, n)
	return nil
}

func TestRedisCacheEvents(t *testing.T) {
	mr, c, rec := newRedisCache(t)
	ctx := context.Background()

	if err := c.UpdateAll(ctx, map[string]*model.Vehicle{"v1": vehicle("v1")}, 30*time.Second); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.UpdateAll(ctx, map[string]*model.Vehicle{"v1": vehicle("v1")}, 30*time.Second); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.RemoveAll(ctx, []string{"v1", "ghost"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	mr.Publish("__keyevent@0__:expired", "gbfs:station:s1")
	mr.Publish("__keyevent@0__:expired", "gbfs:vehicle:v2")

	want := []recorded{
		{EventCreated, "v1", false},
		{EventUpdated, "v1", false},
		{EventDeleted, "v1", false},
		{EventDeleted, "v2", true},
	}
	got := rec.wait(t, len(want))
	if len(got) != len(want) {
		t.Fatalf("events: got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRedisCacheReads(t *testing.T) {
	mr, c, _ := newRedisCache(t)
	ctx := context.Background()
	entities := map[string]*model.Vehicle{"a": vehicle("a"), "b": vehicle("b")}
	if err := c.UpdateAll(ctx, entities, 45*time.Second); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ttl := mr.TTL("gbfs:vehicle:a"); ttl != 45*time.Second {
		t.Fatalf("ttl: got %v, want 45s", ttl)
	}
	if v, ok := c.Get(ctx, "a"); !ok || v.ProviderID() != "sys" {
		t.Fatalf("get: got %+v %v", v, ok)
	}
	if got := c.Count(ctx); got != 2 {
		t.Fatalf("count: got %d, want 2", got)
	}
	m := c.GetAllAsMap(ctx, []string{"a", "missing"})
	if len(m) != 1 || m["a"] == nil {
		t.Fatalf("get as map: got %v", m)
	}
	if got := len(c.GetAll(ctx)); got != 2 {
		t.Fatalf("get all: got %d, want 2", got)
	}

	mr.FastForward(time.Minute)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatalf("expired entity returned")
	}

	mr.SetError("LOADING")
	if got := c.Count(ctx); got != 0 {
		t.Fatalf("count on store error: got %d", got)
	}
	if err := c.UpdateAll(ctx, entities, time.Second); err == nil {
		t.Fatalf("update on store error: got nil")
	}
}

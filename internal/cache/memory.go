package cache

import (
	"context"
	"sync"
	"time"

	"gbfs-sync/internal/model"
)

type memItem[T any] struct {
	e   T
	exp time.Time
}

// MemoryCache：进程内实现，用于测试与单实例部署
// 约束：通知在写入方协程上同步执行；过期事件不携带实体，与 Redis 后端一致
type MemoryCache[T model.Entity] struct {
	kind string
	mu   sync.Mutex
	m    map[string]memItem[T]
	now  func() time.Time
	ls   listeners[T]
}

func NewMemory[T model.Entity](kind string) *MemoryCache[T] {
	return &MemoryCache[T]{kind: kind, m: make(map[string]memItem[T]), now: time.Now}
}

func (c *MemoryCache[T]) Kind() string { return c.kind }

func (c *MemoryCache[T]) alive(it memItem[T], now time.Time) bool {
	return it.exp.IsZero() || now.Before(it.exp)
}

func (c *MemoryCache[T]) Get(_ context.Context, id string) (T, bool) {
	c.Sweep()
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.m[id]
	if !ok {
		var zero T
		return zero, false
	}
	return it.e, true
}

func (c *MemoryCache[T]) GetAll(_ context.Context) []T {
	c.Sweep()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.m))
	for _, it := range c.m {
		out = append(out, it.e)
	}
	return out
}

func (c *MemoryCache[T]) GetAllAsMap(_ context.Context, ids []string) map[string]T {
	c.Sweep()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]T, len(ids))
	for _, id := range ids {
		if it, ok := c.m[id]; ok {
			out[id] = it.e
		}
	}
	return out
}

func (c *MemoryCache[T]) UpdateAll(_ context.Context, entities map[string]T, ttl time.Duration) error {
	type ev struct {
		t  EventType
		id string
		e  T
	}
	now := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	evs := make([]ev, 0, len(entities))
	c.mu.Lock()
	for id, e := range entities {
		t := EventCreated
		if old, ok := c.m[id]; ok && c.alive(old, now) {
			t = EventUpdated
		}
		c.m[id] = memItem[T]{e: e, exp: exp}
		evs = append(evs, ev{t, id, e})
	}
	c.mu.Unlock()
	for _, x := range evs {
		c.ls.dispatch(x.t, x.id, x.e)
	}
	return nil
}

func (c *MemoryCache[T]) RemoveAll(_ context.Context, ids []string) error {
	removed := make(map[string]T, len(ids))
	now := c.now()
	c.mu.Lock()
	for _, id := range ids {
		if it, ok := c.m[id]; ok {
			delete(c.m, id)
			if c.alive(it, now) {
				removed[id] = it.e
			}
		}
	}
	c.mu.Unlock()
	for id, e := range removed {
		c.ls.dispatch(EventDeleted, id, e)
	}
	return nil
}

func (c *MemoryCache[T]) Count(_ context.Context) int {
	c.Sweep()
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *MemoryCache[T]) AddListener(l Listener[T]) int { return c.ls.add(l) }
func (c *MemoryCache[T]) RemoveListener(id int)         { c.ls.remove(id) }

// Sweep：清除已过期条目并发出删除通知
func (c *MemoryCache[T]) Sweep() {
	now := c.now()
	var expired []string
	c.mu.Lock()
	for id, it := range c.m {
		if !c.alive(it, now) {
			delete(c.m, id)
			expired = append(expired, id)
		}
	}
	c.mu.Unlock()
	var zero T
	for _, id := range expired {
		c.ls.dispatch(EventDeleted, id, zero)
	}
}

// StartJanitor：周期性触发 Sweep，ctx 取消时停止
func (c *MemoryCache[T]) StartJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

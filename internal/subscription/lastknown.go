package subscription

import (
	"container/list"
	"sync"
	"time"
)

// 文档注释：最近投递实体的本地 LRU（实体 id 为键）
// 背景：过期删除事件不携带实体，需要用最后一次看到的实体做过滤判定；TTL 与容量可调。
// 约束：只由处理器的监听回调与初始快照写入；未命中时由调用方决定如何投递。
type lastKnown[T any] struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	now  func() time.Time
	lst  *list.List
	dict map[string]*list.Element
}

type kv[T any] struct {
	k   string
	v   T
	exp time.Time
}

func newLastKnown[T any](capacity int, ttl time.Duration) *lastKnown[T] {
	return &lastKnown[T]{cap: capacity, ttl: ttl, now: time.Now, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *lastKnown[T]) Get(k string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(kv[T])
		if c.now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	var zero T
	return zero, false
}

func (c *lastKnown[T]) Set(k string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if e, ok := c.dict[k]; ok {
		e.Value = kv[T]{k: k, v: v, exp: exp}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(kv[T]{k: k, v: v, exp: exp})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(kv[T]).k)
		c.lst.Remove(back)
	}
}

func (c *lastKnown[T]) Remove(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		c.lst.Remove(e)
		delete(c.dict, k)
	}
}

func (c *lastKnown[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

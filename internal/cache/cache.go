// 包 cache：按实体类型划分的键值缓存（带 TTL）与变更通知
// 背景：同步器是唯一写入方，订阅扇出通过监听器获知创建、更新、删除与过期
// 约束：读操作有超时上限，超时或出错时记录日志并返回空结果，不向调用方传播致命错误
package cache

import (
	"context"
	"sync"
	"time"

	"gbfs-sync/internal/metrics"
	"gbfs-sync/internal/model"
)

// DefaultTimeout：单次后端操作的等待上限
const DefaultTimeout = 5 * time.Second

// Listener：变更回调
// 约束：在存储的通知协程上执行，实现方不得阻塞（只做入队）；OnDeleted 的实体在过期或未知时为 nil
type Listener[T model.Entity] interface {
	OnCreated(id string, entity T)
	OnUpdated(id string, entity T)
	OnDeleted(id string, entity T)
}

// EntityCache：单一实体类型的缓存
type EntityCache[T model.Entity] interface {
	Kind() string
	Get(ctx context.Context, id string) (T, bool)
	GetAll(ctx context.Context) []T
	GetAllAsMap(ctx context.Context, ids []string) map[string]T
	UpdateAll(ctx context.Context, entities map[string]T, ttl time.Duration) error
	RemoveAll(ctx context.Context, ids []string) error
	Count(ctx context.Context) int
	AddListener(l Listener[T]) int
	RemoveListener(id int)
}

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// listeners：监听器登记表，按登记 id 增删
type listeners[T model.Entity] struct {
	mu   sync.RWMutex
	next int
	m    map[int]Listener[T]
}

func (ls *listeners[T]) add(l Listener[T]) int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.m == nil {
		ls.m = make(map[int]Listener[T])
	}
	ls.next++
	ls.m[ls.next] = l
	return ls.next
}

func (ls *listeners[T]) remove(id int) {
	ls.mu.Lock()
	delete(ls.m, id)
	ls.mu.Unlock()
}

func (ls *listeners[T]) len() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return len(ls.m)
}

func (ls *listeners[T]) dispatch(t EventType, id string, e T) {
	ls.mu.RLock()
	snapshot := make([]Listener[T], 0, len(ls.m))
	for _, l := range ls.m {
		snapshot = append(snapshot, l)
	}
	ls.mu.RUnlock()
	for _, l := range snapshot {
		switch t {
		case EventCreated:
			l.OnCreated(id, e)
		case EventUpdated:
			l.OnUpdated(id, e)
		case EventDeleted:
			l.OnDeleted(id, e)
		}
	}
}

func storeError(op string) {
	metrics.StoreErrorsTotal.WithLabelValues("cache", op).Inc()
}

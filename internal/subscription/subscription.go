// 包 subscription：按过滤条件向订阅方推送实体变更（初始快照 + 实时增量）
// 背景：处理器作为缓存监听器接收创建、更新、删除事件，逐个订阅判定后写入各自的有界缓冲，再按时间窗口或条数成批投递。
// 约束：监听回调只做判定与入队，不阻塞存储的通知协程；缓冲满时丢弃最旧的记录。
package subscription

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/metrics"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/search"
)

type UpdateType string

const (
	Create UpdateType = "CREATE"
	Update UpdateType = "UPDATE"
	Delete UpdateType = "DELETE"
)

// Record：推送给订阅方的一条变更；删除事件的实体可能为空
type Record[T any] struct {
	ID         string     `json:"id"`
	UpdateType UpdateType `json:"updateType"`
	Entity     T          `json:"entity,omitempty"`
}

// Options：缓冲容量、成批窗口与最后已知实体缓存
type Options struct {
	Buffer       int
	BatchWindow  time.Duration
	BatchMax     int
	LastKnownCap int
	LastKnownTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 10000
	}
	if o.BatchWindow <= 0 {
		o.BatchWindow = 50 * time.Millisecond
	}
	if o.BatchMax <= 0 {
		o.BatchMax = 100
	}
	if o.LastKnownCap <= 0 {
		o.LastKnownCap = 100000
	}
	if o.LastKnownTTL <= 0 {
		o.LastKnownTTL = 30 * time.Minute
	}
	return o
}

// Handler：单一实体类型的订阅扇出
type Handler[T model.LocationEntity] struct {
	kind   string
	cache  cache.EntityCache[T]
	search *search.Service[T]
	opts   Options
	known  *lastKnown[seen[T]]
	log    *slog.Logger

	mu         sync.RWMutex
	subs       map[string]*Subscription[T]
	listenerID int
}

func NewHandler[T model.LocationEntity](c cache.EntityCache[T], s *search.Service[T], opts Options) *Handler[T] {
	opts = opts.withDefaults()
	return &Handler[T]{
		kind:   c.Kind(),
		cache:  c,
		search: s,
		opts:   opts,
		known:  newLastKnown[seen[T]](opts.LastKnownCap, opts.LastKnownTTL),
		log:    logger.Named("subscription").With("entity", c.Kind()),
		subs:   make(map[string]*Subscription[T]),
	}
}

func (h *Handler[T]) Kind() string { return h.kind }

// Active：当前订阅数
func (h *Handler[T]) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Subscribe：校验过滤条件，登记订阅并计算初始快照
// 约束：先登记再查询快照，快照与登记之间发生的变更会在快照之后再次投递
func (h *Handler[T]) Subscribe(ctx context.Context, f search.Filter) (*Subscription[T], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	s := &Subscription[T]{
		id:      uuid.NewString(),
		h:       h,
		filter:  f,
		ctx:     ctx,
		buf:     newRing[Record[T]](h.opts.Buffer),
		notify:  make(chan struct{}, 1),
		out:     make(chan []Record[T]),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	h.attach(s)

	found := h.search.Find(ctx, f)
	initial := make([]Record[T], 0, len(found))
	for _, e := range found {
		h.remember(e.GetID(), e)
		initial = append(initial, Record[T]{ID: e.GetID(), UpdateType: Create, Entity: e})
	}
	h.log.Info("subscription_started", "id", s.id, "initial", len(initial))
	go s.run(initial)
	return s, nil
}

// attach：首个订阅出现时向缓存登记监听器
func (h *Handler[T]) attach(s *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.id] = s
	if h.listenerID == 0 {
		h.listenerID = h.cache.AddListener(h)
	}
	metrics.SubscriptionsActive.WithLabelValues(h.kind).Inc()
}

// detach：最后一个订阅离开时注销监听器；在订阅协程退出时执行
func (h *Handler[T]) detach(s *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	metrics.SubscriptionsActive.WithLabelValues(h.kind).Dec()
	if len(h.subs) == 0 && h.listenerID != 0 {
		h.cache.RemoveListener(h.listenerID)
		h.listenerID = 0
	}
}

// seen：最后一次看到的实体及当时的索引 id
// 背景：提供方被移除后配置已不可查，删除事件只能按写入时的 codespace/operator 判定
type seen[T any] struct {
	entity  T
	indexID string
}

func (h *Handler[T]) remember(id string, e T) seen[T] {
	idx, _ := h.search.IndexID(e)
	k := seen[T]{entity: e, indexID: idx}
	h.known.Set(id, k)
	return k
}

func (h *Handler[T]) OnCreated(id string, e T) {
	k := h.remember(id, e)
	h.fanout(Record[T]{ID: id, UpdateType: Create, Entity: e}, func(f search.Filter) bool {
		return h.search.MatchIndexed(k.entity, k.indexID, f)
	})
}

func (h *Handler[T]) OnUpdated(id string, e T) {
	k := h.remember(id, e)
	h.fanout(Record[T]{ID: id, UpdateType: Update, Entity: e}, func(f search.Filter) bool {
		return h.search.MatchIndexed(k.entity, k.indexID, f)
	})
}

// OnDeleted：按最后已知实体及其索引 id 判定；未知实体且无法按当前配置判定时无条件投递
func (h *Handler[T]) OnDeleted(id string, e T) {
	r := Record[T]{ID: id, UpdateType: Delete, Entity: e}
	k, ok := h.known.Get(id)
	h.known.Remove(id)
	if !ok && !isNil(e) {
		k.entity = e
		k.indexID, ok = h.search.IndexID(e)
	}
	if !ok {
		h.fanout(r, nil)
		return
	}
	h.fanout(r, func(f search.Filter) bool {
		return h.search.MatchIndexed(k.entity, k.indexID, f)
	})
}

// fanout：match 为空时投递给全部订阅
func (h *Handler[T]) fanout(r Record[T], match func(search.Filter) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if match == nil || match(s.filter) {
			s.push(r)
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// Subscription：单个订阅方的缓冲与投递协程
type Subscription[T model.LocationEntity] struct {
	id     string
	h      *Handler[T]
	filter search.Filter
	ctx    context.Context

	mu      sync.Mutex
	buf     *ring[Record[T]]
	dropped int64

	notify  chan struct{}
	out     chan []Record[T]
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func (s *Subscription[T]) ID() string { return s.id }

// Batches：投递通道；订阅结束后关闭
func (s *Subscription[T]) Batches() <-chan []Record[T] { return s.out }

// Dropped：因缓冲已满被丢弃的记录数
func (s *Subscription[T]) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Unsubscribe：结束订阅并等待投递协程退出；可重复调用
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
}

func (s *Subscription[T]) push(r Record[T]) {
	s.mu.Lock()
	dropped := s.buf.push(r)
	if dropped {
		s.dropped++
	}
	n := s.dropped
	s.mu.Unlock()
	if dropped {
		metrics.SubscriptionDroppedTotal.WithLabelValues(s.h.kind).Inc()
		if n == 1 || n%1000 == 0 {
			s.h.log.Warn("subscription_buffer_full", "id", s.id, "dropped", n)
		}
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.len()
}

func (s *Subscription[T]) take() []Record[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.drain(s.h.opts.BatchMax)
}

// run：先投递初始快照，之后每当有记录到达，等待窗口结束或攒满一批再投递
func (s *Subscription[T]) run(initial []Record[T]) {
	defer close(s.stopped)
	defer close(s.out)
	defer s.h.detach(s)
	defer s.h.log.Info("subscription_stopped", "id", s.id)

	if len(initial) > 0 && !s.send(initial) {
		return
	}
	timer := time.NewTimer(s.h.opts.BatchWindow)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-s.notify:
		}
		if s.pending() < s.h.opts.BatchMax {
			timer.Reset(s.h.opts.BatchWindow)
		wait:
			for s.pending() < s.h.opts.BatchMax {
				select {
				case <-s.done:
					return
				case <-s.ctx.Done():
					return
				case <-timer.C:
					break wait
				case <-s.notify:
				}
			}
			timer.Stop()
		}
		for s.pending() > 0 {
			if !s.send(s.take()) {
				return
			}
			if s.pending() < s.h.opts.BatchMax {
				break
			}
		}
		if s.pending() > 0 {
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
	}
}

func (s *Subscription[T]) send(batch []Record[T]) bool {
	select {
	case s.out <- batch:
		return true
	case <-s.done:
		return false
	case <-s.ctx.Done():
		return false
	}
}

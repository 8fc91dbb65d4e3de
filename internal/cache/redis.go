package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/model"

	"github.com/redis/go-redis/v9"
)

// wireEvent：发布到变更频道的消息
type wireEvent struct {
	Type   EventType       `json:"type"`
	ID     string          `json:"id"`
	Entity json.RawMessage `json:"entity,omitempty"`
}

// RedisCache：每个实体一个键（gbfs:<kind>:<id>，带 PX 过期），变更经 pub/sub 频道广播
// 背景：写入方（leader）发布事件，所有实例（含只读实例）订阅后分发给本地监听器
// 约束：SET ... GET 区分创建与更新（Redis >= 6.2）；GETDEL 取得删除前的实体；过期依赖 keyevent 通知，实体为 nil
type RedisCache[T model.Entity] struct {
	rc      *redis.Client
	kind    string
	prefix  string
	channel string
	timeout time.Duration
	ls      listeners[T]
	log     *slog.Logger
}

func NewRedis[T model.Entity](rc *redis.Client, kind string) *RedisCache[T] {
	return &RedisCache[T]{
		rc:      rc,
		kind:    kind,
		prefix:  "gbfs:" + kind + ":",
		channel: "gbfs:events:" + kind,
		timeout: DefaultTimeout,
		log:     logger.Named("cache").With("kind", kind),
	}
}

func (c *RedisCache[T]) Kind() string { return c.kind }

func (c *RedisCache[T]) key(id string) string { return c.prefix + id }

func (c *RedisCache[T]) decode(s string) (T, error) {
	var e T
	err := json.Unmarshal([]byte(s), &e)
	return e, err
}

func (c *RedisCache[T]) Get(ctx context.Context, id string) (T, bool) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	s, err := c.rc.Get(ctx, c.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false
	}
	if err != nil {
		storeError("get")
		c.log.Warn("cache_get_error", "id", id, "err", err)
		return zero, false
	}
	e, err := c.decode(s)
	if err != nil {
		c.log.Warn("cache_decode_error", "id", id, "err", err)
		return zero, false
	}
	return e, true
}

// keys：SCAN 列举本类型全部键
func (c *RedisCache[T]) keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := c.rc.Scan(ctx, 0, c.prefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (c *RedisCache[T]) GetAll(ctx context.Context) []T {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	keys, err := c.keys(ctx)
	if err != nil {
		storeError("scan")
		c.log.Warn("cache_scan_error", "err", err)
		return nil
	}
	m := c.mget(ctx, keys)
	out := make([]T, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

func (c *RedisCache[T]) GetAllAsMap(ctx context.Context, ids []string) map[string]T {
	if len(ids) == 0 {
		return map[string]T{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	return c.mget(ctx, keys)
}

const mgetChunk = 500

func (c *RedisCache[T]) mget(ctx context.Context, keys []string) map[string]T {
	out := make(map[string]T, len(keys))
	for start := 0; start < len(keys); start += mgetChunk {
		end := min(start+mgetChunk, len(keys))
		vals, err := c.rc.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			storeError("mget")
			c.log.Warn("cache_mget_error", "err", err)
			return map[string]T{}
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			e, err := c.decode(s)
			if err != nil {
				c.log.Warn("cache_decode_error", "key", keys[start+i], "err", err)
				continue
			}
			out[strings.TrimPrefix(keys[start+i], c.prefix)] = e
		}
	}
	return out
}

func (c *RedisCache[T]) UpdateAll(ctx context.Context, entities map[string]T, ttl time.Duration) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	payloads := make(map[string][]byte, len(entities))
	pipe := c.rc.Pipeline()
	cmds := make(map[string]*redis.StatusCmd, len(entities))
	for id, e := range entities {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", c.kind, id, err)
		}
		payloads[id] = b
		cmds[id] = pipe.SetArgs(ctx, c.key(id), b, redis.SetArgs{TTL: ttl, Get: true})
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		storeError("update")
		return fmt.Errorf("update %s: %w", c.kind, err)
	}
	events := make([]wireEvent, 0, len(entities))
	for id, cmd := range cmds {
		t := EventUpdated
		if errors.Is(cmd.Err(), redis.Nil) {
			t = EventCreated
		}
		events = append(events, wireEvent{Type: t, ID: id, Entity: payloads[id]})
	}
	return c.publish(ctx, events)
}

func (c *RedisCache[T]) RemoveAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	pipe := c.rc.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.GetDel(ctx, c.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		storeError("remove")
		return fmt.Errorf("remove %s: %w", c.kind, err)
	}
	events := make([]wireEvent, 0, len(ids))
	for id, cmd := range cmds {
		s, err := cmd.Result()
		if err != nil {
			continue
		}
		events = append(events, wireEvent{Type: EventDeleted, ID: id, Entity: json.RawMessage(s)})
	}
	return c.publish(ctx, events)
}

func (c *RedisCache[T]) publish(ctx context.Context, events []wireEvent) error {
	if len(events) == 0 {
		return nil
	}
	pipe := c.rc.Pipeline()
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		pipe.Publish(ctx, c.channel, b)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		storeError("publish")
		return fmt.Errorf("publish %s events: %w", c.kind, err)
	}
	return nil
}

func (c *RedisCache[T]) Count(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	keys, err := c.keys(ctx)
	if err != nil {
		storeError("count")
		c.log.Warn("cache_count_error", "err", err)
		return 0
	}
	return len(keys)
}

func (c *RedisCache[T]) AddListener(l Listener[T]) int { return c.ls.add(l) }
func (c *RedisCache[T]) RemoveListener(id int)         { c.ls.remove(id) }

// Start：订阅变更频道与过期通知，在后台协程中分发给本地监听器
// 约束：该协程即“通知线程”；ctx 取消时关闭订阅
func (c *RedisCache[T]) Start(ctx context.Context) error {
	expired := "__keyevent@" + strconv.Itoa(c.rc.Options().DB) + "__:expired"
	ps := c.rc.Subscribe(ctx, c.channel, expired)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", c.channel, err)
	}
	c.log.Info("cache_events_subscribed", "channel", c.channel)
	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Channel == expired {
					c.onExpired(msg.Payload)
					continue
				}
				c.onEvent(msg.Payload)
			}
		}
	}()
	return nil
}

func (c *RedisCache[T]) onExpired(key string) {
	if !strings.HasPrefix(key, c.prefix) {
		return
	}
	var zero T
	c.ls.dispatch(EventDeleted, strings.TrimPrefix(key, c.prefix), zero)
}

func (c *RedisCache[T]) onEvent(payload string) {
	var ev wireEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		c.log.Warn("cache_event_decode_error", "err", err)
		return
	}
	var e T
	if len(ev.Entity) > 0 {
		if err := json.Unmarshal(ev.Entity, &e); err != nil {
			c.log.Warn("cache_event_decode_error", "id", ev.ID, "err", err)
			return
		}
	}
	c.ls.dispatch(ev.Type, ev.ID, e)
}

// 包 continuity：记录每个提供方最后一次成功应用的批次时间戳，用于发现漏掉的增量
// 背景：上游可能跳过或重复投递；只有比较批次声明的 base 与已应用水位才能确认中间没有缺失
package continuity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Tracker：连续性水位
// 约束：RecordApplied 只能在批次完整写入缓存与索引后调用；读失败视为无连续性（触发全量重建）
type Tracker interface {
	HasContinuity(ctx context.Context, providerID string, base *int64) bool
	RecordApplied(ctx context.Context, providerID string, compare int64) error
	Clear(ctx context.Context, providerID string) error
}

type Memory struct {
	mu sync.Mutex
	m  map[string]int64
}

func NewMemory() *Memory { return &Memory{m: make(map[string]int64)} }

func (t *Memory) HasContinuity(_ context.Context, providerID string, base *int64) bool {
	if base == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[providerID]
	return ok && v == *base
}

func (t *Memory) RecordApplied(_ context.Context, providerID string, compare int64) error {
	t.mu.Lock()
	t.m[providerID] = compare
	t.mu.Unlock()
	return nil
}

func (t *Memory) Clear(_ context.Context, providerID string) error {
	t.mu.Lock()
	delete(t.m, providerID)
	t.mu.Unlock()
	return nil
}

// Redis：哈希 gbfs:continuity:<kind>，字段为 providerId，值为毫秒时间戳
type Redis struct {
	rc      *redis.Client
	key     string
	timeout time.Duration
}

func NewRedis(rc *redis.Client, kind string) *Redis {
	return &Redis{rc: rc, key: "gbfs:continuity:" + kind, timeout: 5 * time.Second}
}

func (t *Redis) HasContinuity(ctx context.Context, providerID string, base *int64) bool {
	if base == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	s, err := t.rc.HGet(ctx, t.key, providerID).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("continuity", "get").Inc()
		logger.L().Warn("continuity_get_error", "key", t.key, "provider", providerID, "err", err)
		return false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return err == nil && v == *base
}

func (t *Redis) RecordApplied(ctx context.Context, providerID string, compare int64) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.rc.HSet(ctx, t.key, providerID, strconv.FormatInt(compare, 10)).Err(); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("continuity", "set").Inc()
		return fmt.Errorf("record continuity %s: %w", providerID, err)
	}
	return nil
}

func (t *Redis) Clear(ctx context.Context, providerID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.rc.HDel(ctx, t.key, providerID).Err(); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("continuity", "clear").Inc()
		return fmt.Errorf("clear continuity %s: %w", providerID, err)
	}
	return nil
}

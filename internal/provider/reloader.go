package provider

import (
	"context"
	"time"

	"gbfs-sync/internal/logger"
)

// Reloader：周期性从来源重载配置并热切换；被移除的提供方交给 OnRemoved 清理
// 约束：加载失败时保留旧配置；OnRemoved 在重载协程内同步执行
type Reloader struct {
	Source    Source
	Target    *Dynamic
	Interval  time.Duration
	OnRemoved func(ctx context.Context, id string)
}

// Reload：执行一次重载
func (r *Reloader) Reload(ctx context.Context) error {
	cs, err := r.Source.Load(ctx)
	if err != nil {
		return err
	}
	removed := r.Target.Set(cs)
	logger.L().Debug("providers_reloaded", "count", len(cs), "removed", len(removed))
	for _, id := range removed {
		logger.L().Info("provider_removed", "system_id", id)
		if r.OnRemoved != nil {
			r.OnRemoved(ctx, id)
		}
	}
	return nil
}

// Start：启动重载循环，ctx 取消时停止
func (r *Reloader) Start(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := r.Reload(ctx); err != nil {
					logger.L().Warn("providers_reload_error", "err", err)
				}
			}
		}
	}()
}

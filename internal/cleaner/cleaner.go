// 包 cleaner：清理已不在配置中的提供方遗留的实体、索引条目与连续性记录
// 背景：进程停机期间下线的提供方不会再有增量到达，其数据只能靠启动清理或运行时删除触发清理
package cleaner

import (
	"context"
	"fmt"
	"sort"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/metrics"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"

	"golang.org/x/sync/errgroup"
)

// Clearer：按提供方清空一种实体（由同步器实现，保证与增量应用互斥）
type Clearer interface {
	ClearProvider(ctx context.Context, providerID string) error
}

// Target：一种实体类型的清理视图
type Target interface {
	Kind() string
	ProviderIDs(ctx context.Context) map[string]bool
	Clear(ctx context.Context, providerID string) error
	Orphans(ctx context.Context) []string
	RemoveIndexEntries(ctx context.Context, ids []string) error
}

type target[T model.Entity] struct {
	kind    string
	cache   cache.EntityCache[T]
	index   spatial.Index
	clearer Clearer
}

func NewTarget[T model.Entity](kind string, c cache.EntityCache[T], idx spatial.Index, cl Clearer) Target {
	return &target[T]{kind: kind, cache: c, index: idx, clearer: cl}
}

func (t *target[T]) Kind() string { return t.kind }

// ProviderIDs：缓存实体与索引条目中出现的全部提供方
func (t *target[T]) ProviderIDs(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	for _, e := range t.cache.GetAll(ctx) {
		if id := e.ProviderID(); id != "" {
			out[id] = true
		}
	}
	for _, id := range t.index.All(ctx) {
		if o, ok := spatial.ParseOwner(id); ok {
			out[o.SystemID] = true
		}
	}
	return out
}

func (t *target[T]) Clear(ctx context.Context, providerID string) error {
	return t.clearer.ClearProvider(ctx, providerID)
}

// Orphans：实体已不在缓存中的索引条目（通常由缓存过期造成）
func (t *target[T]) Orphans(ctx context.Context) []string {
	indexIDs := t.index.All(ctx)
	entityIDs := make([]string, 0, len(indexIDs))
	byEntity := make(map[string][]string, len(indexIDs))
	for _, id := range indexIDs {
		o, ok := spatial.ParseOwner(id)
		if !ok {
			continue
		}
		entityIDs = append(entityIDs, o.ID)
		byEntity[o.ID] = append(byEntity[o.ID], id)
	}
	present := t.cache.GetAllAsMap(ctx, entityIDs)
	var out []string
	for eid, ids := range byEntity {
		if _, ok := present[eid]; !ok {
			out = append(out, ids...)
		}
	}
	sort.Strings(out)
	return out
}

func (t *target[T]) RemoveIndexEntries(ctx context.Context, ids []string) error {
	return t.index.RemoveAll(ctx, ids)
}

type Cleaner struct {
	providers provider.Registry
	targets   []Target
}

func New(providers provider.Registry, targets ...Target) *Cleaner {
	return &Cleaner{providers: providers, targets: targets}
}

// CleanupUnconfigured：启动时执行，移除配置中已不存在的提供方
// 约束：各实体类型并发处理；单个提供方失败不影响其余提供方
func (c *Cleaner) CleanupUnconfigured(ctx context.Context) ([]string, error) {
	var g errgroup.Group
	removed := make([][]string, len(c.targets))
	for i, t := range c.targets {
		g.Go(func() error {
			var failed error
			ids := make([]string, 0)
			for id := range t.ProviderIDs(ctx) {
				if _, ok := c.providers.Lookup(id); ok {
					continue
				}
				if err := t.Clear(ctx, id); err != nil {
					logger.L().Error("cleanup_provider_error", "kind", t.Kind(), "provider", id, "err", err)
					failed = err
					continue
				}
				ids = append(ids, id)
			}
			removed[i] = ids
			return failed
		})
	}
	err := g.Wait()
	seen := map[string]bool{}
	var out []string
	for _, ids := range removed {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	logger.L().Info("cleanup_unconfigured_done", "providers", out)
	return out, err
}

// CleanupProvider：运行时删除提供方时调用
func (c *Cleaner) CleanupProvider(ctx context.Context, providerID string) error {
	for _, t := range c.targets {
		if err := t.Clear(ctx, providerID); err != nil {
			return fmt.Errorf("cleanup %s %s: %w", t.Kind(), providerID, err)
		}
	}
	logger.L().Info("cleanup_provider_done", "provider", providerID)
	return nil
}

func (c *Cleaner) target(kind string) (Target, error) {
	for _, t := range c.targets {
		if t.Kind() == kind {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

func (c *Cleaner) FindOrphans(ctx context.Context, kind string) ([]string, error) {
	t, err := c.target(kind)
	if err != nil {
		return nil, err
	}
	return t.Orphans(ctx), nil
}

// RemoveOrphans：删除孤儿索引条目，返回删除的 id
func (c *Cleaner) RemoveOrphans(ctx context.Context, kind string) ([]string, error) {
	t, err := c.target(kind)
	if err != nil {
		return nil, err
	}
	ids := t.Orphans(ctx)
	if len(ids) == 0 {
		return nil, nil
	}
	if err := t.RemoveIndexEntries(ctx, ids); err != nil {
		return nil, err
	}
	metrics.OrphansRemovedTotal.WithLabelValues(kind).Add(float64(len(ids)))
	logger.L().Info("orphans_removed", "kind", kind, "count", len(ids))
	return ids, nil
}

// 包 updater：把单个提供方的增量批次应用到实体缓存与空间索引
// 背景：两个存储各自独立更新，无法原子提交；通过“先删后加”的固定顺序缩短不一致窗口
// 约束：同一提供方的批次串行应用；不同提供方可并发；非 leader 实例不写入
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/continuity"
	"gbfs-sync/internal/delta"
	"gbfs-sync/internal/leader"
	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/metrics"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"
)

var (
	ErrNotLeader          = errors.New("not leader")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrProviderDisabled   = errors.New("provider disabled")
	ErrFeedExcluded       = errors.New("feed excluded for provider")
	ErrMissingInformation = errors.New("station information not available")
	ErrUnknownVehicleType = errors.New("unknown vehicle type")
	ErrMissingEntity      = errors.New("delta entry without entity")
	ErrInvalidCoordinates = errors.New("coordinates outside indexable range")
	ErrDockedVehicle      = errors.New("vehicle parked at a station")
	ErrUnknownPricingPlan = errors.New("unknown pricing plan")
	ErrMissingPricingPlan = errors.New("no pricing plan and no default for vehicle type")
)

// Result：一次批次的统计
type Result struct {
	Purged  bool `json:"purged"`
	Created int  `json:"created"`
	Updated int  `json:"updated"`
	Deleted int  `json:"deleted"`
	Skipped int  `json:"skipped"`
}

// entityPtr：缓存中的实体类型（*model.Vehicle / *model.Station）
type entityPtr[T any] interface {
	model.LocationEntity
	Merge(src T) T
}

// entry：已映射的增量；err 非空表示该条目跳过（类型化的跳过原因）
type entry[T any] struct {
	id     string
	kind   delta.Kind
	entity T
	err    error
}

// engine：车辆与站点共用的批次应用逻辑
type engine[T entityPtr[T]] struct {
	kind      string
	feed      string
	cache     cache.EntityCache[T]
	index     spatial.Index
	tracker   continuity.Tracker
	leader    leader.Leader
	providers provider.Registry
	indexID   func(T, provider.Config) string
	log       *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (e *engine[T]) lock(providerID string) func() {
	e.mu.Lock()
	if e.locks == nil {
		e.locks = make(map[string]*sync.Mutex)
	}
	l, ok := e.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[providerID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// resolve：入口检查（leader、提供方存在、启用、未排除该文件）
func (e *engine[T]) resolve(providerID string) (provider.Config, error) {
	if e.leader != nil && !e.leader.IsLeader() {
		return provider.Config{}, ErrNotLeader
	}
	p, ok := e.providers.Lookup(providerID)
	if !ok {
		return provider.Config{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if !p.Enabled {
		return provider.Config{}, fmt.Errorf("%w: %s", ErrProviderDisabled, providerID)
	}
	if p.Excludes(e.feed) {
		return provider.Config{}, fmt.Errorf("%w: %s %s", ErrFeedExcluded, providerID, e.feed)
	}
	return p, nil
}

// plan：待应用的变更集合
type plan[T any] struct {
	spatialRemove map[string]struct{}
	cacheRemove   []string
	cacheUpsert   map[string]T
	spatialUpsert map[string]spatial.Point
}

// apply：调用方已持有该提供方的锁
func (e *engine[T]) apply(ctx context.Context, p provider.Config, base *int64, compare int64, ttl time.Duration, entries []entry[T]) (Result, error) {
	start := time.Now()
	var res Result
	log := e.log.With("provider", p.SystemID)

	if !e.tracker.HasContinuity(ctx, p.SystemID, base) {
		log.Info("continuity_missing", "has_base", base != nil, "compare", compare)
		if err := e.purge(ctx, p.SystemID); err != nil {
			metrics.BatchesTotal.WithLabelValues(e.kind, "error").Inc()
			return res, err
		}
		metrics.ProviderPurgesTotal.WithLabelValues(e.kind).Inc()
		res.Purged = true
	}

	var current map[string]T
	if !res.Purged {
		ids := make([]string, 0, len(entries))
		for _, en := range entries {
			ids = append(ids, en.id)
		}
		current = e.cache.GetAllAsMap(ctx, ids)
	}

	pl := plan[T]{
		spatialRemove: map[string]struct{}{},
		cacheUpsert:   map[string]T{},
		spatialUpsert: map[string]spatial.Point{},
	}
	seen := make(map[string]bool, len(entries))
	for _, en := range entries {
		if seen[en.id] {
			log.Warn("delta_duplicate_entry", "id", en.id, "kind", en.kind)
			e.skip(&res, "duplicate")
			continue
		}
		seen[en.id] = true
		if en.err != nil {
			log.Warn("delta_entry_skipped", "id", en.id, "kind", en.kind, "err", en.err)
			e.skip(&res, skipReason(en.err))
			continue
		}
		if en.kind != delta.Delete {
			if lat, lon, ok := en.entity.Coordinates(); ok && !spatial.ValidCoordinates(lat, lon) {
				log.Warn("delta_entry_skipped", "id", en.id, "kind", en.kind, "err", ErrInvalidCoordinates, "lat", lat, "lon", lon)
				e.skip(&res, skipReason(ErrInvalidCoordinates))
				continue
			}
		}
		cur, exists := current[en.id]
		switch en.kind {
		case delta.Create:
			if exists {
				e.stageRemoveIndex(&pl, cur, en.entity, p)
			}
			e.stageUpsert(&pl, en.id, en.entity, p)
			res.Created++
		case delta.Update:
			if !exists {
				log.Warn("delta_update_missing_entity", "id", en.id)
				e.skip(&res, "missing_entity")
				continue
			}
			merged := cur.Merge(en.entity)
			e.stageRemoveIndex(&pl, cur, merged, p)
			e.stageUpsert(&pl, en.id, merged, p)
			res.Updated++
		case delta.Delete:
			pl.cacheRemove = append(pl.cacheRemove, en.id)
			if !exists {
				log.Warn("delta_delete_missing_entity", "id", en.id)
				continue
			}
			pl.spatialRemove[e.indexID(cur, p)] = struct{}{}
			res.Deleted++
		default:
			log.Warn("delta_unknown_kind", "id", en.id, "kind", en.kind)
			e.skip(&res, "unknown_kind")
		}
	}

	if err := e.commit(ctx, pl, ttl); err != nil {
		metrics.BatchesTotal.WithLabelValues(e.kind, "error").Inc()
		log.Error("batch_apply_error", "err", err)
		return res, err
	}
	if err := e.tracker.RecordApplied(ctx, p.SystemID, compare); err != nil {
		metrics.BatchesTotal.WithLabelValues(e.kind, "error").Inc()
		return res, err
	}
	metrics.RegisterEntityCount(e.kind, e.cache.Count(ctx))
	metrics.BatchesTotal.WithLabelValues(e.kind, "ok").Inc()
	metrics.BatchDurationMs.WithLabelValues(e.kind).Observe(float64(time.Since(start).Milliseconds()))
	log.Debug("batch_applied",
		"purged", res.Purged,
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"skipped", res.Skipped,
	)
	return res, nil
}

// stageRemoveIndex：旧索引 id 与新 id 不同或新实体无坐标时移除旧条目；相同 id 由 GEOADD 原地覆盖坐标
func (e *engine[T]) stageRemoveIndex(pl *plan[T], cur, next T, p provider.Config) {
	oldID := e.indexID(cur, p)
	if _, ok := spatial.PointOf(next); ok && oldID == e.indexID(next, p) {
		return
	}
	pl.spatialRemove[oldID] = struct{}{}
}

func (e *engine[T]) stageUpsert(pl *plan[T], id string, ent T, p provider.Config) {
	pl.cacheUpsert[id] = ent
	if pt, ok := spatial.PointOf(ent); ok {
		pl.spatialUpsert[e.indexID(ent, p)] = pt
	}
}

// commit：空间移除 -> 缓存移除 -> 缓存写入 -> 空间写入
func (e *engine[T]) commit(ctx context.Context, pl plan[T], ttl time.Duration) error {
	if len(pl.spatialRemove) > 0 {
		ids := make([]string, 0, len(pl.spatialRemove))
		for id := range pl.spatialRemove {
			ids = append(ids, id)
		}
		if err := e.index.RemoveAll(ctx, ids); err != nil {
			return err
		}
	}
	if err := e.cache.RemoveAll(ctx, pl.cacheRemove); err != nil {
		return err
	}
	if err := e.cache.UpdateAll(ctx, pl.cacheUpsert, ttl); err != nil {
		return err
	}
	return e.index.AddAll(ctx, pl.spatialUpsert)
}

// purge：移除该提供方的全部实体与索引条目（包括缓存中已缺失的孤儿索引）
func (e *engine[T]) purge(ctx context.Context, providerID string) error {
	var spatialIDs []string
	for _, id := range e.index.All(ctx) {
		if o, ok := spatial.ParseOwner(id); ok && o.SystemID == providerID {
			spatialIDs = append(spatialIDs, id)
		}
	}
	var ids []string
	for _, ent := range e.cache.GetAll(ctx) {
		if ent.ProviderID() == providerID {
			ids = append(ids, ent.GetID())
		}
	}
	if err := e.index.RemoveAll(ctx, spatialIDs); err != nil {
		return fmt.Errorf("purge %s index: %w", providerID, err)
	}
	if err := e.cache.RemoveAll(ctx, ids); err != nil {
		return fmt.Errorf("purge %s cache: %w", providerID, err)
	}
	e.log.Info("provider_purged", "provider", providerID, "entities", len(ids), "index_entries", len(spatialIDs))
	return nil
}

// clear：按提供方清空实体、索引与连续性记录（清理器使用）
func (e *engine[T]) clear(ctx context.Context, providerID string) error {
	defer e.lock(providerID)()
	if err := e.purge(ctx, providerID); err != nil {
		return err
	}
	if err := e.tracker.Clear(ctx, providerID); err != nil {
		return err
	}
	metrics.RegisterEntityCount(e.kind, e.cache.Count(ctx))
	return nil
}

func (e *engine[T]) skip(res *Result, reason string) {
	res.Skipped++
	metrics.EntriesSkippedTotal.WithLabelValues(e.kind, reason).Inc()
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingInformation):
		return "missing_information"
	case errors.Is(err, ErrUnknownVehicleType):
		return "unknown_vehicle_type"
	case errors.Is(err, ErrMissingEntity):
		return "missing_payload"
	case errors.Is(err, ErrInvalidCoordinates):
		return "invalid_coordinates"
	case errors.Is(err, ErrDockedVehicle):
		return "docked_vehicle"
	case errors.Is(err, ErrUnknownPricingPlan):
		return "unknown_pricing_plan"
	case errors.Is(err, ErrMissingPricingPlan):
		return "missing_pricing_plan"
	}
	return "mapping"
}

func newEngine[T entityPtr[T]](kind, feed string, c cache.EntityCache[T], idx spatial.Index, tr continuity.Tracker, opts Options, indexID func(T, provider.Config) string) *engine[T] {
	return &engine[T]{
		kind:      kind,
		feed:      feed,
		cache:     c,
		index:     idx,
		tracker:   tr,
		leader:    opts.Leader,
		providers: opts.Providers,
		indexID:   indexID,
		log:       logger.Named("updater").With("kind", kind),
	}
}

package search

import (
	"context"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"
)

// Matcher：把实体或索引 id 转为可判定的形式
type Matcher[T model.LocationEntity] interface {
	// IndexID：实体当前的索引 id（codespace/operator 来自提供方配置）；提供方未配置时 ok 为 false
	IndexID(e T) (id string, ok bool)
	// MatchIndexID：解析索引 id 并判定属性，返回实体 id
	MatchIndexID(indexID string, a Attributes) (string, bool)
}

// Service：空间查询 + 属性过滤 + 回查缓存
type Service[T model.LocationEntity] struct {
	cache   cache.EntityCache[T]
	index   spatial.Index
	matcher Matcher[T]
}

func NewService[T model.LocationEntity](c cache.EntityCache[T], idx spatial.Index, m Matcher[T]) *Service[T] {
	return &Service[T]{cache: c, index: idx, matcher: m}
}

// Find：返回满足过滤条件的实体，圆形查询按距离升序
// 约束：属性过滤在索引 id 上完成，只回查命中的实体；Count 在过滤之后截断
func (s *Service[T]) Find(ctx context.Context, f Filter) []T {
	var hits []spatial.Hit
	if f.BoundingBox != nil {
		hits = s.index.BoundingBox(ctx, *f.BoundingBox, 0)
	} else if f.Range != nil {
		hits = s.index.Radius(ctx, spatial.RadiusQuery{
			Lon: f.Range.Lon, Lat: f.Range.Lat, Radius: f.Range.RadiusMeters, Unit: spatial.Meters, Order: spatial.Asc,
		})
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if id, ok := s.matcher.MatchIndexID(h.ID, f.Attributes); ok {
			ids = append(ids, id)
			if f.Count > 0 && len(ids) == f.Count {
				break
			}
		}
	}
	found := s.cache.GetAllAsMap(ctx, ids)
	out := make([]T, 0, len(found))
	for _, id := range ids {
		if e, ok := found[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// IndexID：按当前提供方配置生成索引 id
func (s *Service[T]) IndexID(e T) (string, bool) { return s.matcher.IndexID(e) }

// Match：单个实体的完整判定（地理 + 属性），用于订阅事件
func (s *Service[T]) Match(e T, f Filter) bool {
	id, _ := s.matcher.IndexID(e)
	return s.MatchIndexed(e, id, f)
}

// MatchIndexed：坐标取自实体，属性取自给定的索引 id（可为实体写入时记录的 id）
func (s *Service[T]) MatchIndexed(e T, indexID string, f Filter) bool {
	p, ok := spatial.PointOf(e)
	if !ok || !f.ContainsPoint(p) {
		return false
	}
	_, ok = s.matcher.MatchIndexID(indexID, f.Attributes)
	return ok
}

// VehicleMatcher / StationMatcher：基于提供方配置生成索引 id
type VehicleMatcher struct{ Providers provider.Registry }

func (m VehicleMatcher) IndexID(v *model.Vehicle) (string, bool) {
	p, ok := m.Providers.Lookup(v.ProviderID())
	p.SystemID = v.ProviderID()
	return spatial.NewVehicleID(v, p).String(), ok
}

func (m VehicleMatcher) MatchIndexID(indexID string, a Attributes) (string, bool) {
	id, err := spatial.ParseVehicleID(indexID)
	if err != nil || !a.MatchVehicle(id) {
		return "", false
	}
	return id.ID, true
}

type StationMatcher struct{ Providers provider.Registry }

func (m StationMatcher) IndexID(s *model.Station) (string, bool) {
	p, ok := m.Providers.Lookup(s.ProviderID())
	p.SystemID = s.ProviderID()
	return spatial.NewStationID(s, p).String(), ok
}

func (m StationMatcher) MatchIndexID(indexID string, a Attributes) (string, bool) {
	id, err := spatial.ParseStationID(indexID)
	if err != nil || !a.MatchStation(id) {
		return "", false
	}
	return id.ID, true
}

// 包 spatial：地理索引（索引 id -> 经纬度），支持圆形与矩形查询
// 背景：索引只保存坐标与 id，其余属性通过 id 回查实体缓存或解析索引 id 获得
package spatial

import (
	"context"
	"sort"

	"gbfs-sync/internal/metrics"
)

// Index：单一实体类型的地理集合
// 约束：查询超时或出错时记录日志并返回空结果；写操作返回错误由同步器决定是否推进水位
type Index interface {
	Kind() string
	Add(ctx context.Context, id string, p Point) error
	Remove(ctx context.Context, id string) error
	AddAll(ctx context.Context, points map[string]Point) error
	RemoveAll(ctx context.Context, ids []string) error
	Radius(ctx context.Context, q RadiusQuery) []Hit
	BoundingBox(ctx context.Context, box BoundingBox, limit int) []Hit
	All(ctx context.Context) []string
}

// sortHits：按距离排序并截断
func sortHits(hits []Hit, order Order, limit int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if order == Desc {
			return hits[i].DistanceMeters > hits[j].DistanceMeters
		}
		return hits[i].DistanceMeters < hits[j].DistanceMeters
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// filterBox：外接圆结果按矩形精确过滤
func filterBox(hits []Hit, box BoundingBox, limit int) []Hit {
	out := hits[:0]
	for _, h := range hits {
		if box.Contains(h.Point.Lat, h.Point.Lon) {
			out = append(out, h)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func storeError(op string) {
	metrics.StoreErrorsTotal.WithLabelValues("spatial", op).Inc()
}

// 包 delta：增量批次（base/compare/entries）与快照差分计算
package delta

import (
	"reflect"

	"gbfs-sync/internal/logger"
)

type Kind string

const (
	Create Kind = "CREATE"
	Update Kind = "UPDATE"
	Delete Kind = "DELETE"
)

// EntityDelta：单个实体的变更；DELETE 时 Entity 为零值
type EntityDelta[P any] struct {
	EntityID string `json:"entityId"`
	Kind     Kind   `json:"kind"`
	Entity   *P     `json:"entity,omitempty"`
}

// Batch：一个提供方的一次增量
// 背景：Base 为上一次已知状态的时间戳（毫秒），nil 表示无已知前态，需要先清空再重建
// 约束：Compare 为本次状态时间戳，应用成功后作为新的连续性水位
type Batch[P any] struct {
	Base    *int64           `json:"base"`
	Compare int64            `json:"compare"`
	TTL     int64            `json:"ttl"`
	Entries []EntityDelta[P] `json:"entries"`
}

// Snapshot：上游一次完整快照
type Snapshot[P any] struct {
	LastUpdated int64 `json:"lastUpdated"`
	TTL         int64 `json:"ttl"`
	Items       []P   `json:"items"`
}

// Calculate：由前后两次快照计算增量
// 背景：base 缺失时全部视为新建；未变化的实体不产生增量
// 约束：同一快照内重复 id 保留首次出现并记录警告；UPDATE 携带完整的新实体（整体替换合并）
func Calculate[P any](base *Snapshot[P], compare Snapshot[P], idOf func(P) string) Batch[P] {
	out := Batch[P]{Compare: compare.LastUpdated, TTL: compare.TTL}
	var baseItems map[string]P
	if base != nil {
		b := base.LastUpdated
		out.Base = &b
		baseItems, _ = index(base.Items, idOf)
	}
	cmpItems, order := index(compare.Items, idOf)
	if base != nil {
		for _, it := range base.Items {
			id := idOf(it)
			if _, ok := cmpItems[id]; ok {
				continue
			}
			if _, seen := baseItems[id]; !seen {
				continue
			}
			out.Entries = append(out.Entries, EntityDelta[P]{EntityID: id, Kind: Delete})
			// 同 id 只产生一次删除
			delete(baseItems, id)
		}
	}
	for _, id := range order {
		cur := cmpItems[id]
		prev, existed := baseItems[id]
		switch {
		case !existed:
			out.Entries = append(out.Entries, EntityDelta[P]{EntityID: id, Kind: Create, Entity: &cur})
		case !reflect.DeepEqual(prev, cur):
			out.Entries = append(out.Entries, EntityDelta[P]{EntityID: id, Kind: Update, Entity: &cur})
		}
	}
	return out
}

func index[P any](items []P, idOf func(P) string) (map[string]P, []string) {
	m := make(map[string]P, len(items))
	order := make([]string, 0, len(items))
	var dups []string
	for _, it := range items {
		id := idOf(it)
		if _, ok := m[id]; ok {
			dups = append(dups, id)
			continue
		}
		m[id] = it
		order = append(order, id)
	}
	if len(dups) > 0 {
		logger.L().Warn("snapshot_duplicate_ids", "count", len(dups), "ids", dups)
	}
	return m, order
}

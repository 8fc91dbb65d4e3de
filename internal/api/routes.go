// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"gbfs-sync/internal/cleaner"
	"gbfs-sync/internal/ingest"
	"gbfs-sync/internal/leader"
	"gbfs-sync/internal/middleware"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/subscription"
	"gbfs-sync/internal/updater"
)

// Counter：实体计数来源（缓存）
type Counter interface {
	Count(ctx context.Context) int
}

// ProviderStore：可写的提供方来源（PostgreSQL）；文件来源为空
type ProviderStore interface {
	Delete(ctx context.Context, id string) (bool, error)
}

// Deps：路由依赖；为空的可选项对应的端点返回 404 或跳过；Leader 为空时视为可写
type Deps struct {
	Vehicles    *updater.Vehicles
	Stations    *updater.Stations
	Dispatcher  *ingest.Dispatcher
	Dedup       *Dedup
	VehicleSubs *subscription.Handler[*model.Vehicle]
	StationSubs *subscription.Handler[*model.Station]
	Cleaner     *cleaner.Cleaner
	Counts      map[string]Counter
	Providers   ProviderStore
	Leader      leader.Leader

	AdminToken     string
	SubscribeLimit *middleware.TokenBucket
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 /api 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	apiMux := http.NewServeMux()
	admin := func(h http.HandlerFunc) http.Handler { return middleware.AdminOnly(d.AdminToken, h) }

	apiMux.Handle("POST /deltas/vehicles/{provider}", admin(intake(d, "vehicle", func(ctx context.Context, f *vehicleFeed) (updater.Result, error) {
		return d.Vehicles.Apply(ctx, f.VehicleFeed)
	})))
	apiMux.Handle("POST /deltas/stations/{provider}", admin(intake(d, "station", func(ctx context.Context, f *stationFeed) (updater.Result, error) {
		return d.Stations.Apply(ctx, f.StationFeed)
	})))

	if d.VehicleSubs != nil {
		apiMux.Handle("GET /subscriptions/vehicles", middleware.Limit(d.SubscribeLimit, serveSubscription(d.VehicleSubs)))
	}
	if d.StationSubs != nil {
		apiMux.Handle("GET /subscriptions/stations", middleware.Limit(d.SubscribeLimit, serveSubscription(d.StationSubs)))
	}

	apiMux.Handle("GET /admin/orphans/{kind}", admin(listOrphans(d)))
	apiMux.Handle("DELETE /admin/orphans/{kind}", admin(removeOrphans(d)))
	apiMux.Handle("DELETE /admin/providers/{id}", admin(removeProvider(d)))

	apiMux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		counts := make(map[string]int, len(d.Counts))
		for kind, c := range d.Counts {
			counts[kind] = c.Count(r.Context())
		}
		m := map[string]any{"entities": counts}
		subs := map[string]int{}
		if d.VehicleSubs != nil {
			subs[d.VehicleSubs.Kind()] = d.VehicleSubs.Active()
		}
		if d.StationSubs != nil {
			subs[d.StationSubs.Kind()] = d.StationSubs.Active()
		}
		m["subscriptions"] = subs
		writeJSON(w, http.StatusOK, m)
	})

	return apiMux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

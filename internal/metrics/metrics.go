package metrics

import (
	"net/http"

	"gbfs-sync/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 实体类型标签，与缓存命名空间一致
const (
	EntityVehicle = "vehicle"
	EntityStation = "station"
)

var (
	EntityCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gbfs_entity_count",
		Help: "Number of entities currently cached per kind",
	}, []string{"entity"})
	BatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gbfs_delta_batches_total",
		Help: "Delta batches applied per kind and outcome",
	}, []string{"entity", "outcome"})
	BatchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gbfs_delta_batch_duration_ms",
		Help:    "Delta batch apply duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	}, []string{"entity"})
	EntriesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gbfs_delta_entries_skipped_total",
		Help: "Delta entries skipped per kind and reason",
	}, []string{"entity", "reason"})
	ProviderPurgesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gbfs_provider_purges_total",
		Help: "Full provider purges caused by missing continuity",
	}, []string{"entity"})
	StoreErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gbfs_store_errors_total",
		Help: "Backing store operations that failed or timed out",
	}, []string{"store", "op"})
	SubscriptionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gbfs_subscriptions_active",
		Help: "Live subscriptions per kind",
	}, []string{"entity"})
	SubscriptionDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gbfs_subscription_dropped_total",
		Help: "Updates dropped by the drop-oldest subscriber buffer",
	}, []string{"entity"})
	OrphansRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gbfs_spatial_orphans_removed_total",
		Help: "Spatial index entries removed because their entity was gone",
	}, []string{"entity"})
)

func init() {
	prometheus.MustRegister(EntityCount)
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(BatchDurationMs)
	prometheus.MustRegister(EntriesSkippedTotal)
	prometheus.MustRegister(ProviderPurgesTotal)
	prometheus.MustRegister(StoreErrorsTotal)
	prometheus.MustRegister(SubscriptionsActive)
	prometheus.MustRegister(SubscriptionDroppedTotal)
	prometheus.MustRegister(OrphansRemovedTotal)
}

// 文档注释：登记实体数量
// 背景：同步器在每个批次后调用；未知实体类型只记录警告，不创建新标签
func RegisterEntityCount(entity string, count int) {
	if entity != EntityVehicle && entity != EntityStation {
		logger.L().Warn("metrics_unknown_entity", "entity", entity)
		return
	}
	EntityCount.WithLabelValues(entity).Set(float64(count))
}

// 文档注释：返回 Prometheus 指标处理器，在主入口挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }

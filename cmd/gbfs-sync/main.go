// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gbfs-sync/internal/api"
	"gbfs-sync/internal/app"
	"gbfs-sync/internal/config"
	"gbfs-sync/internal/ingest"
	"gbfs-sync/internal/leader"
	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/metrics"
	"gbfs-sync/internal/middleware"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/search"
	"gbfs-sync/internal/subscription"
	"gbfs-sync/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Debug("config_loaded", "backend", cfg.StoreBackend, "providers", cfg.ProvidersSource, "leader", cfg.LeaderMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := app.OpenProviders(ctx, cfg)
	if err != nil {
		l.Error("providers_open_error", "err", err)
		os.Exit(1)
	}
	defer providers.Close()
	initial, err := providers.Source.Load(ctx)
	if err != nil {
		l.Error("providers_load_error", "err", err)
		os.Exit(1)
	}
	registry := provider.NewDynamic(initial)
	l.Info("providers_loaded", "count", len(initial))

	stores, err := app.OpenStores(ctx, cfg.StoreBackend)
	if err != nil {
		l.Error("stores_open_error", "err", err)
		os.Exit(1)
	}
	defer stores.Close()
	if err := stores.StartEvents(ctx); err != nil {
		l.Error("store_events_error", "err", err)
		os.Exit(1)
	}

	var ld leader.Leader = leader.Static(cfg.LeaderStatic)
	var lease *leader.RedisLease
	if cfg.LeaderMode == config.LeaderRedis {
		lease = leader.NewRedisLease(stores.RC, cfg.LeaderKey, cfg.LeaderLeaseTTL)
		ld = lease
	}

	engine := app.NewEngine(stores, registry, ld, cfg)
	// 背景：停机期间下线的提供方只能在成为写入方时清理
	cleanup := func(ctx context.Context) {
		if removed, err := engine.Cleaner.CleanupUnconfigured(ctx); err != nil {
			l.Error("cleanup_unconfigured_error", "err", err, "removed", removed)
		}
	}
	if lease != nil {
		lease.OnAcquire = cleanup
		lease.Start(ctx)
		l.Info("leader_lease_started", "instance", lease.ID(), "leader", lease.IsLeader())
	} else if ld.IsLeader() {
		cleanup(ctx)
	}

	dispatcher := ingest.NewDispatcher(ctx, cfg.IngestQueue)
	reloader := &provider.Reloader{
		Source:   providers.Source,
		Target:   registry,
		Interval: cfg.ReloadInterval,
		OnRemoved: func(ctx context.Context, id string) {
			dispatcher.Drop(id)
			if !ld.IsLeader() {
				return
			}
			if err := engine.Cleaner.CleanupProvider(ctx, id); err != nil {
				l.Error("cleanup_provider_error", "provider", id, "err", err)
			}
		},
	}
	reloader.Start(ctx)

	subOpts := subscription.Options{Buffer: cfg.SubBuffer, BatchWindow: cfg.SubBatchWindow, BatchMax: cfg.SubBatchMax}
	vehicleSubs := subscription.NewHandler(stores.Vehicles,
		search.NewService(stores.Vehicles, stores.VehicleIndex, search.Matcher[*model.Vehicle](search.VehicleMatcher{Providers: registry})), subOpts)
	stationSubs := subscription.NewHandler(stores.Stations,
		search.NewService(stores.Stations, stores.StationIndex, search.Matcher[*model.Station](search.StationMatcher{Providers: registry})), subOpts)

	deps := api.Deps{
		Vehicles:    engine.Vehicles,
		Stations:    engine.Stations,
		Dispatcher:  dispatcher,
		Dedup:       api.NewDedup(stores.RC),
		VehicleSubs: vehicleSubs,
		StationSubs: stationSubs,
		Cleaner:     engine.Cleaner,
		Counts: map[string]api.Counter{
			metrics.EntityVehicle: stores.Vehicles,
			metrics.EntityStation: stores.Stations,
		},
		Leader:     ld,
		AdminToken: cfg.AdminToken,
	}
	if providers.PG != nil {
		deps.Providers = providers.PG
	}
	if cfg.RateLimitEnabled {
		deps.SubscribeLimit = middleware.NewTokenBucket(cfg.RateLimitQPS)
	}

	mux := http.NewServeMux()
	// 文档注释：构建路由
	apiMux := api.BuildRoutes(deps)
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())

	s := &http.Server{Addr: cfg.Addr, Handler: logger.AccessMiddleware(l)(mux)}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()
	if cfg.TLSEnable {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "gbfs-sync.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
		err = s.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
	}
	if err := dispatcher.Close(); err != nil {
		l.Error("ingest_close_error", "err", err)
	}
	l.Info("shutdown_done")
}

// 包 app：按配置装配存储、提供方来源与同步器，供服务进程与管理命令共用
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/cleaner"
	"gbfs-sync/internal/config"
	"gbfs-sync/internal/continuity"
	"gbfs-sync/internal/leader"
	"gbfs-sync/internal/logger"
	"gbfs-sync/internal/metrics"
	"gbfs-sync/internal/migrate"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"
	"gbfs-sync/internal/updater"
	"gbfs-sync/internal/utils"
)

// Stores：两种实体各自的缓存、空间索引与连续性记录
type Stores struct {
	RC *redis.Client

	Vehicles          cache.EntityCache[*model.Vehicle]
	Stations          cache.EntityCache[*model.Station]
	VehicleIndex      spatial.Index
	StationIndex      spatial.Index
	VehicleContinuity continuity.Tracker
	StationContinuity continuity.Tracker

	start []func(ctx context.Context) error
}

// OpenStores：backend 为 redis 时连接并校验 Redis，memory 时全部使用进程内实现
func OpenStores(ctx context.Context, backend string) (*Stores, error) {
	l := logger.L()
	if backend == config.BackendMemory {
		vc := cache.NewMemory[*model.Vehicle](metrics.EntityVehicle)
		sc := cache.NewMemory[*model.Station](metrics.EntityStation)
		l.Info("stores_memory")
		return &Stores{
			Vehicles:          vc,
			Stations:          sc,
			VehicleIndex:      spatial.NewMemory(metrics.EntityVehicle),
			StationIndex:      spatial.NewMemory(metrics.EntityStation),
			VehicleContinuity: continuity.NewMemory(),
			StationContinuity: continuity.NewMemory(),
			start: []func(context.Context) error{
				func(ctx context.Context) error { vc.StartJanitor(ctx, 5*time.Second); return nil },
				func(ctx context.Context) error { sc.StartJanitor(ctx, 5*time.Second); return nil },
			},
		}, nil
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		return nil, errors.New("redis not configured")
	}
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	l.Info("redis_ping_ok")
	vc := cache.NewRedis[*model.Vehicle](rc, metrics.EntityVehicle)
	sc := cache.NewRedis[*model.Station](rc, metrics.EntityStation)
	return &Stores{
		RC:                rc,
		Vehicles:          vc,
		Stations:          sc,
		VehicleIndex:      spatial.NewRedis(rc, metrics.EntityVehicle),
		StationIndex:      spatial.NewRedis(rc, metrics.EntityStation),
		VehicleContinuity: continuity.NewRedis(rc, metrics.EntityVehicle),
		StationContinuity: continuity.NewRedis(rc, metrics.EntityStation),
		start: []func(context.Context) error{
			func(ctx context.Context) error {
				if err := utils.EnableExpiryEvents(ctx, rc); err != nil {
					l.Warn("redis_expiry_events_unavailable", "err", err)
				}
				return nil
			},
			vc.Start,
			sc.Start,
		},
	}, nil
}

// StartEvents：启动变更通知（Redis 订阅或内存过期清扫）；只有服务进程需要
func (s *Stores) StartEvents(ctx context.Context) error {
	for _, f := range s.start {
		if err := f(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stores) Close() {
	if s.RC != nil {
		_ = s.RC.Close()
	}
}

// Providers：提供方来源；PG 仅在 PROVIDERS_SOURCE=postgres 时非空
type Providers struct {
	Source provider.Source
	PG     *provider.PGSource
	db     *sql.DB
}

func OpenProviders(ctx context.Context, cfg config.Config) (*Providers, error) {
	if cfg.ProvidersSource != config.SourcePostgres {
		return &Providers{Source: provider.FileSource{Path: cfg.ProvidersFile}}, nil
	}
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	pg := provider.NewPGSource(db)
	return &Providers{Source: pg, PG: pg, db: db}, nil
}

func (p *Providers) Close() {
	if p.db != nil {
		_ = p.db.Close()
	}
}

// Engine：同步器与清理器
type Engine struct {
	Vehicles *updater.Vehicles
	Stations *updater.Stations
	Cleaner  *cleaner.Cleaner
}

func NewEngine(s *Stores, registry provider.Registry, ld leader.Leader, cfg config.Config) *Engine {
	opts := updater.Options{
		Leader:        ld,
		Providers:     registry,
		VehicleMinTTL: cfg.VehicleMinTTL,
		VehicleMaxTTL: cfg.VehicleMaxTTL,
		StationMinTTL: cfg.StationMinTTL,
	}
	vu := updater.NewVehicles(s.Vehicles, s.VehicleIndex, s.VehicleContinuity, opts)
	su := updater.NewStations(s.Stations, s.StationIndex, s.StationContinuity, opts)
	cl := cleaner.New(registry,
		cleaner.NewTarget(metrics.EntityVehicle, s.Vehicles, s.VehicleIndex, vu),
		cleaner.NewTarget(metrics.EntityStation, s.Stations, s.StationIndex, su),
	)
	return &Engine{Vehicles: vu, Stations: su, Cleaner: cl}
}

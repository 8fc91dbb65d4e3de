package spatial

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gbfs-sync/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RedisIndex：Redis GEO 集合 gbfs:geo:<kind>
// 约束：GEOSEARCH 需要 Redis >= 6.2；矩形查询走外接圆再按矩形过滤
type RedisIndex struct {
	rc      *redis.Client
	kind    string
	key     string
	timeout time.Duration
	log     *slog.Logger
}

func NewRedis(rc *redis.Client, kind string) *RedisIndex {
	return &RedisIndex{
		rc:      rc,
		kind:    kind,
		key:     "gbfs:geo:" + kind,
		timeout: 5 * time.Second,
		log:     logger.Named("spatial").With("kind", kind),
	}
}

func (x *RedisIndex) Kind() string { return x.kind }

func (x *RedisIndex) Add(ctx context.Context, id string, p Point) error {
	return x.AddAll(ctx, map[string]Point{id: p})
}

func (x *RedisIndex) Remove(ctx context.Context, id string) error {
	return x.RemoveAll(ctx, []string{id})
}

func (x *RedisIndex) AddAll(ctx context.Context, points map[string]Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	locs := make([]*redis.GeoLocation, 0, len(points))
	for id, p := range points {
		// GEOADD 遇到一个非法坐标会拒绝整条命令
		if !ValidCoordinates(p.Lat, p.Lon) {
			x.log.Warn("spatial_invalid_point", "id", id, "lat", p.Lat, "lon", p.Lon)
			continue
		}
		locs = append(locs, &redis.GeoLocation{Name: id, Longitude: p.Lon, Latitude: p.Lat})
	}
	if len(locs) == 0 {
		return nil
	}
	if err := x.rc.GeoAdd(ctx, x.key, locs...).Err(); err != nil {
		storeError("add")
		return fmt.Errorf("geoadd %s: %w", x.key, err)
	}
	return nil
}

func (x *RedisIndex) RemoveAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := x.rc.ZRem(ctx, x.key, members...).Err(); err != nil {
		storeError("remove")
		return fmt.Errorf("zrem %s: %w", x.key, err)
	}
	return nil
}

func (x *RedisIndex) Radius(ctx context.Context, q RadiusQuery) []Hit {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	unit := string(q.Unit)
	if unit == "" {
		unit = string(Meters)
	}
	order := string(q.Order)
	if order == "" {
		order = string(Asc)
	}
	locs, err := x.rc.GeoSearchLocation(ctx, x.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  q.Lon,
			Latitude:   q.Lat,
			Radius:     q.Radius,
			RadiusUnit: unit,
			Sort:       order,
			Count:      q.Limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		storeError("radius")
		x.log.Warn("spatial_radius_error", "err", err)
		return nil
	}
	hits := make([]Hit, 0, len(locs))
	for _, l := range locs {
		hits = append(hits, Hit{
			ID:             l.Name,
			Point:          Point{Lon: l.Longitude, Lat: l.Latitude},
			DistanceMeters: Unit(unit).toMeters(l.Dist),
		})
	}
	return hits
}

func (x *RedisIndex) BoundingBox(ctx context.Context, box BoundingBox, limit int) []Hit {
	c, r := box.EnclosingCircle()
	hits := x.Radius(ctx, RadiusQuery{Lon: c.Lon, Lat: c.Lat, Radius: r, Unit: Meters, Order: Asc})
	return filterBox(hits, box, limit)
}

func (x *RedisIndex) All(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	var out []string
	iter := x.rc.ZScan(ctx, x.key, 0, "", 1000).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
		// ZSCAN 交替返回成员与分值
		if !iter.Next(ctx) {
			break
		}
	}
	if err := iter.Err(); err != nil {
		storeError("scan")
		x.log.Warn("spatial_scan_error", "err", err)
		return nil
	}
	return out
}

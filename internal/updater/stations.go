package updater

import (
	"context"
	"time"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/continuity"
	"gbfs-sync/internal/delta"
	"gbfs-sync/internal/metrics"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"
)

// Stations：站点同步器；状态增量需结合 station_information 侧表物化为完整站点
type Stations struct {
	e    *engine[*model.Station]
	opts Options
}

func NewStations(c cache.EntityCache[*model.Station], idx spatial.Index, tr continuity.Tracker, opts Options) *Stations {
	opts = opts.withDefaults()
	e := newEngine(metrics.EntityStation, provider.FeedStationStatus, c, idx, tr, opts,
		func(s *model.Station, p provider.Config) string { return spatial.NewStationID(s, p).String() })
	return &Stations{e: e, opts: opts}
}

func (u *Stations) Apply(ctx context.Context, feed delta.StationFeed) (Result, error) {
	p, err := u.e.resolve(feed.ProviderID)
	if err != nil {
		return Result{}, err
	}
	defer u.e.lock(p.SystemID)()
	// 归属以路径中的提供方为准，与索引 id 与清空范围保持一致
	sys := feed.System
	if sys.ID != "" && sys.ID != p.SystemID {
		u.e.log.Warn("system_id_overridden", "provider", p.SystemID, "system_id", sys.ID)
	}
	sys.ID = p.SystemID
	if sys.OperatorID == "" {
		sys.OperatorID = p.OperatorID
	}
	entries := make([]entry[*model.Station], 0, len(feed.Delta.Entries))
	for _, d := range feed.Delta.Entries {
		en := entry[*model.Station]{id: d.EntityID, kind: d.Kind}
		if d.Kind != delta.Delete {
			en.entity, en.err = mapStation(d, &sys, feed)
		}
		entries = append(entries, en)
	}
	ttl := cache.TTL(u.opts.Now(), time.UnixMilli(feed.Delta.Compare), time.Duration(feed.Delta.TTL)*time.Second,
		u.opts.StationMinTTL, 0)
	return u.e.apply(ctx, p, feed.Delta.Base, feed.Delta.Compare, ttl, entries)
}

func (u *Stations) ClearProvider(ctx context.Context, providerID string) error {
	return u.e.clear(ctx, providerID)
}

// mapStation：缺少侧表信息时返回 ErrMissingInformation，待信息到达后以 UPDATE 补齐
func mapStation(d delta.EntityDelta[model.StationStatus], sys *model.System, feed delta.StationFeed) (*model.Station, error) {
	if d.Entity == nil {
		return nil, ErrMissingEntity
	}
	info, ok := feed.Information[d.EntityID]
	if !ok {
		return nil, ErrMissingInformation
	}
	s := d.Entity
	st := &model.Station{
		ID:                   d.EntityID,
		Name:                 info.Name,
		Lat:                  info.Lat,
		Lon:                  info.Lon,
		Address:              info.Address,
		Capacity:             info.Capacity,
		RentalURIs:           info.RentalURIs,
		NumBikesAvailable:    s.NumBikesAvailable,
		NumVehiclesAvailable: s.NumVehiclesAvailable,
		NumDocksAvailable:    s.NumDocksAvailable,
		IsInstalled:          s.IsInstalled,
		IsRenting:            s.IsRenting,
		IsReturning:          s.IsReturning,
		LastReported:         s.LastReported,
		System:               sys,
		PricingPlans:         feed.PricingPlans,
	}
	for _, c := range s.VehicleTypesAvailable {
		vt, ok := feed.VehicleTypes[c.VehicleTypeID]
		if !ok {
			continue
		}
		st.VehicleTypesAvailable = append(st.VehicleTypesAvailable, model.VehicleTypeAvailability{VehicleType: &vt, Count: c.Count})
	}
	return st, nil
}

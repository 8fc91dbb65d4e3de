package updater

import (
	"context"
	"fmt"
	"time"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/continuity"
	"gbfs-sync/internal/delta"
	"gbfs-sync/internal/metrics"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"
)

// Vehicles：车辆同步器
type Vehicles struct {
	e    *engine[*model.Vehicle]
	opts Options
}

func NewVehicles(c cache.EntityCache[*model.Vehicle], idx spatial.Index, tr continuity.Tracker, opts Options) *Vehicles {
	opts = opts.withDefaults()
	e := newEngine(metrics.EntityVehicle, provider.FeedVehicleStatus, c, idx, tr, opts,
		func(v *model.Vehicle, p provider.Config) string { return spatial.NewVehicleID(v, p).String() })
	return &Vehicles{e: e, opts: opts}
}

// Apply：应用一个提供方的车辆增量
func (u *Vehicles) Apply(ctx context.Context, feed delta.VehicleFeed) (Result, error) {
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
	entries := make([]entry[*model.Vehicle], 0, len(feed.Delta.Entries))
	for _, d := range feed.Delta.Entries {
		en := entry[*model.Vehicle]{id: d.EntityID, kind: d.Kind}
		if d.Kind != delta.Delete {
			en.entity, en.err = mapVehicle(d, &sys, feed)
		}
		entries = append(entries, en)
	}
	ttl := cache.TTL(u.opts.Now(), time.UnixMilli(feed.Delta.Compare), time.Duration(feed.Delta.TTL)*time.Second,
		u.opts.VehicleMinTTL, u.opts.VehicleMaxTTL)
	return u.e.apply(ctx, p, feed.Delta.Base, feed.Delta.Compare, ttl, entries)
}

// ClearProvider：移除提供方的全部车辆、索引与连续性记录
func (u *Vehicles) ClearProvider(ctx context.Context, providerID string) error {
	return u.e.clear(ctx, providerID)
}

// mapVehicle：站内停放的车辆由站点数据表示；车型必须已知；计价方案取自车辆或车型默认方案
func mapVehicle(d delta.EntityDelta[model.VehicleStatus], sys *model.System, feed delta.VehicleFeed) (*model.Vehicle, error) {
	if d.Entity == nil {
		return nil, ErrMissingEntity
	}
	s := d.Entity
	if s.StationID != "" {
		return nil, fmt.Errorf("%w: %s", ErrDockedVehicle, s.StationID)
	}
	vt, ok := feed.VehicleTypes[s.VehicleTypeID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVehicleType, s.VehicleTypeID)
	}
	planID := s.PricingPlanID
	if planID == "" {
		planID = vt.DefaultPricingPlanID
	}
	pp, ok := feed.PricingPlans[planID]
	switch {
	case !ok && s.PricingPlanID != "":
		return nil, fmt.Errorf("%w: %s", ErrUnknownPricingPlan, s.PricingPlanID)
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrMissingPricingPlan, vt.ID)
	}
	return &model.Vehicle{
		ID:                 d.EntityID,
		Lat:                s.Lat,
		Lon:                s.Lon,
		Reserved:           s.IsReserved,
		Disabled:           s.IsDisabled,
		CurrentRangeMeters: s.CurrentRangeMeters,
		CurrentFuelPercent: s.CurrentFuelPercent,
		AvailableUntil:     s.AvailableUntil,
		LastReported:       s.LastReported,
		RentalURIs:         s.RentalURIs,
		VehicleType:        &vt,
		PricingPlan:        &pp,
		System:             sys,
	}, nil
}

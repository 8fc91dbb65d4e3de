package updater

import (
	"time"

	"gbfs-sync/internal/leader"
	"gbfs-sync/internal/provider"
)

// Options：两个同步器共用的依赖与 TTL 边界
type Options struct {
	Leader    leader.Leader
	Providers provider.Registry
	Now       func() time.Time

	VehicleMinTTL time.Duration
	VehicleMaxTTL time.Duration
	StationMinTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.VehicleMinTTL <= 0 {
		o.VehicleMinTTL = 30 * time.Second
	}
	if o.VehicleMaxTTL <= 0 {
		o.VehicleMaxTTL = 300 * time.Second
	}
	if o.StationMinTTL <= 0 {
		o.StationMinTTL = 300 * time.Second
	}
	return o
}

package delta

import "gbfs-sync/internal/model"

// VehicleFeed：车辆增量及其只读查找表
type VehicleFeed struct {
	ProviderID   string                       `json:"providerId"`
	System       model.System                 `json:"system"`
	VehicleTypes map[string]model.VehicleType `json:"vehicleTypes"`
	PricingPlans map[string]model.PricingPlan `json:"pricingPlans"`
	Delta        Batch[model.VehicleStatus]   `json:"delta"`
}

// StationFeed：站点增量；Information 为物化完整站点所需的最新 station_information
type StationFeed struct {
	ProviderID   string                              `json:"providerId"`
	System       model.System                        `json:"system"`
	VehicleTypes map[string]model.VehicleType        `json:"vehicleTypes"`
	PricingPlans []model.PricingPlan                 `json:"pricingPlans"`
	Information  map[string]model.StationInformation `json:"information"`
	Delta        Batch[model.StationStatus]          `json:"delta"`
}

func VehicleID(v model.VehicleStatus) string { return v.VehicleID }
func StationID(s model.StationStatus) string { return s.StationID }

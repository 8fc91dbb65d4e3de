package model

// 以下为已归一化的上游载荷（版本方言转换由上游完成）

// VehicleStatus：vehicle_status 中的单车记录
type VehicleStatus struct {
	VehicleID          string      `json:"vehicle_id"`
	Lat                *float64    `json:"lat,omitempty"`
	Lon                *float64    `json:"lon,omitempty"`
	IsReserved         bool        `json:"is_reserved"`
	IsDisabled         bool        `json:"is_disabled"`
	VehicleTypeID      string      `json:"vehicle_type_id,omitempty"`
	PricingPlanID      string      `json:"pricing_plan_id,omitempty"`
	StationID          string      `json:"station_id,omitempty"`
	CurrentRangeMeters *float64    `json:"current_range_meters,omitempty"`
	CurrentFuelPercent *float64    `json:"current_fuel_percent,omitempty"`
	AvailableUntil     string      `json:"available_until,omitempty"`
	LastReported       int64       `json:"last_reported,omitempty"`
	RentalURIs         *RentalURIs `json:"rental_uris,omitempty"`
}

type VehicleTypeCount struct {
	VehicleTypeID string `json:"vehicle_type_id"`
	Count         int    `json:"count"`
}

// StationStatus：station_status 中的站点动态字段
type StationStatus struct {
	StationID             string             `json:"station_id"`
	NumBikesAvailable     int                `json:"num_bikes_available"`
	NumVehiclesAvailable  int                `json:"num_vehicles_available"`
	NumDocksAvailable     *int               `json:"num_docks_available,omitempty"`
	VehicleTypesAvailable []VehicleTypeCount `json:"vehicle_types_available,omitempty"`
	IsInstalled           bool               `json:"is_installed"`
	IsRenting             bool               `json:"is_renting"`
	IsReturning           bool               `json:"is_returning"`
	LastReported          int64              `json:"last_reported,omitempty"`
}

// StationInformation：station_information 中的站点静态字段（侧表）
type StationInformation struct {
	StationID  string      `json:"station_id"`
	Name       string      `json:"name"`
	Lat        *float64    `json:"lat,omitempty"`
	Lon        *float64    `json:"lon,omitempty"`
	Address    string      `json:"address,omitempty"`
	Capacity   *int        `json:"capacity,omitempty"`
	RentalURIs *RentalURIs `json:"rental_uris,omitempty"`
}

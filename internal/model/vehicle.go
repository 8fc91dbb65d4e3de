package model

type Vehicle struct {
	ID                 string       `json:"id"`
	Lat                *float64     `json:"lat,omitempty"`
	Lon                *float64     `json:"lon,omitempty"`
	Reserved           bool         `json:"isReserved"`
	Disabled           bool         `json:"isDisabled"`
	CurrentRangeMeters *float64     `json:"currentRangeMeters,omitempty"`
	CurrentFuelPercent *float64     `json:"currentFuelPercent,omitempty"`
	VehicleType        *VehicleType `json:"vehicleType,omitempty"`
	PricingPlan        *PricingPlan `json:"pricingPlan,omitempty"`
	System             *System      `json:"system,omitempty"`
	AvailableUntil     string       `json:"availableUntil,omitempty"`
	LastReported       int64        `json:"lastReported,omitempty"`
	RentalURIs         *RentalURIs  `json:"rentalUris,omitempty"`
}

func (v *Vehicle) GetID() string      { return v.ID }
func (v *Vehicle) ProviderID() string { return systemID(v.System) }

func (v *Vehicle) Coordinates() (float64, float64, bool) { return coords(v.Lat, v.Lon) }

// FormFactor：车型缺失时返回空值，过滤时视为不匹配任何形态
func (v *Vehicle) FormFactor() FormFactor {
	if v.VehicleType == nil {
		return ""
	}
	return v.VehicleType.FormFactor
}

func (v *Vehicle) PropulsionType() PropulsionType {
	if v.VehicleType == nil {
		return ""
	}
	return v.VehicleType.PropulsionType
}

// Merge：整体替换合并（full replace）
// 约束：来源中的空字段同样覆盖目标；仅保留目标的 id，归属系统缺失时沿用目标系统
func (v *Vehicle) Merge(src *Vehicle) *Vehicle {
	out := *src
	out.ID = v.ID
	if out.System == nil {
		out.System = v.System
	}
	return &out
}

package model

type VehicleTypeAvailability struct {
	VehicleType *VehicleType `json:"vehicleType"`
	Count       int          `json:"count"`
}

type Station struct {
	ID                    string                    `json:"id"`
	Name                  string                    `json:"name,omitempty"`
	Lat                   *float64                  `json:"lat,omitempty"`
	Lon                   *float64                  `json:"lon,omitempty"`
	Address               string                    `json:"address,omitempty"`
	Capacity              *int                      `json:"capacity,omitempty"`
	NumBikesAvailable     int                       `json:"numBikesAvailable"`
	NumVehiclesAvailable  int                       `json:"numVehiclesAvailable"`
	NumDocksAvailable     *int                      `json:"numDocksAvailable,omitempty"`
	VehicleTypesAvailable []VehicleTypeAvailability `json:"vehicleTypesAvailable,omitempty"`
	IsInstalled           bool                      `json:"isInstalled"`
	IsRenting             bool                      `json:"isRenting"`
	IsReturning           bool                      `json:"isReturning"`
	LastReported          int64                     `json:"lastReported,omitempty"`
	System                *System                   `json:"system,omitempty"`
	PricingPlans          []PricingPlan             `json:"pricingPlans,omitempty"`
	RentalURIs            *RentalURIs               `json:"rentalUris,omitempty"`
}

func (s *Station) GetID() string      { return s.ID }
func (s *Station) ProviderID() string { return systemID(s.System) }

func (s *Station) Coordinates() (float64, float64, bool) { return coords(s.Lat, s.Lon) }

// AvailableFormFactors：按出现顺序去重
func (s *Station) AvailableFormFactors() []FormFactor {
	var out []FormFactor
	seen := map[FormFactor]bool{}
	for _, a := range s.VehicleTypesAvailable {
		if a.VehicleType == nil || seen[a.VehicleType.FormFactor] {
			continue
		}
		seen[a.VehicleType.FormFactor] = true
		out = append(out, a.VehicleType.FormFactor)
	}
	return out
}

func (s *Station) AvailablePropulsionTypes() []PropulsionType {
	var out []PropulsionType
	seen := map[PropulsionType]bool{}
	for _, a := range s.VehicleTypesAvailable {
		if a.VehicleType == nil || seen[a.VehicleType.PropulsionType] {
			continue
		}
		seen[a.VehicleType.PropulsionType] = true
		out = append(out, a.VehicleType.PropulsionType)
	}
	return out
}

// Merge：与车辆相同的整体替换合并
func (s *Station) Merge(src *Station) *Station {
	out := *src
	out.ID = s.ID
	if out.System == nil {
		out.System = s.System
	}
	return &out
}

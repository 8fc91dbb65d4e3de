// 包 model：同步引擎的领域实体（车辆、站点）与只读引用（车型、计价方案、系统）
package model

// Entity：具备唯一 id 且归属于某个提供方命名空间的实体
type Entity interface {
	GetID() string
	ProviderID() string
}

// LocationEntity：带坐标的实体；坐标缺失时 ok 为 false，不进入空间索引
type LocationEntity interface {
	Entity
	Coordinates() (lat, lon float64, ok bool)
}

type FormFactor string

const (
	FormFactorBicycle         FormFactor = "BICYCLE"
	FormFactorCargoBicycle    FormFactor = "CARGO_BICYCLE"
	FormFactorCar             FormFactor = "CAR"
	FormFactorMoped           FormFactor = "MOPED"
	FormFactorScooter         FormFactor = "SCOOTER"
	FormFactorScooterStanding FormFactor = "SCOOTER_STANDING"
	FormFactorScooterSeated   FormFactor = "SCOOTER_SEATED"
	FormFactorOther           FormFactor = "OTHER"
)

type PropulsionType string

const (
	PropulsionHuman            PropulsionType = "HUMAN"
	PropulsionElectricAssist   PropulsionType = "ELECTRIC_ASSIST"
	PropulsionElectric         PropulsionType = "ELECTRIC"
	PropulsionCombustion       PropulsionType = "COMBUSTION"
	PropulsionCombustionDiesel PropulsionType = "COMBUSTION_DIESEL"
	PropulsionHybrid           PropulsionType = "HYBRID"
	PropulsionPlugInHybrid     PropulsionType = "PLUG_IN_HYBRID"
	PropulsionHydrogenFuelCell PropulsionType = "HYDROGEN_FUEL_CELL"
)

// System：提供方系统信息，id 即 providerId
type System struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Language   string `json:"language,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	URL        string `json:"url,omitempty"`
	OperatorID string `json:"operatorId,omitempty"`
}

type VehicleType struct {
	ID             string         `json:"id"`
	FormFactor     FormFactor     `json:"formFactor"`
	PropulsionType PropulsionType `json:"propulsionType"`
	Name           string         `json:"name,omitempty"`
	MaxRangeMeters *float64       `json:"maxRangeMeters,omitempty"`

	DefaultPricingPlanID string `json:"defaultPricingPlanId,omitempty"`
}

type PricingPlan struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	Price       float64 `json:"price"`
	IsTaxable   bool    `json:"isTaxable"`
	Description string  `json:"description,omitempty"`
}

type RentalURIs struct {
	Android string `json:"android,omitempty"`
	IOS     string `json:"ios,omitempty"`
	Web     string `json:"web,omitempty"`
}

func systemID(s *System) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func coords(lat, lon *float64) (float64, float64, bool) {
	if lat == nil || lon == nil {
		return 0, 0, false
	}
	return *lat, *lon, true
}

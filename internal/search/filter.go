// 包 search：地理 + 属性过滤查询；订阅的初始快照与事件判定共用同一套谓词
package search

import (
	"errors"
	"slices"

	"gbfs-sync/internal/model"
	"gbfs-sync/internal/spatial"
)

// Range：圆形范围
type Range struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// Attributes：属性过滤；空列表表示不限制
type Attributes struct {
	Codespaces      []string               `json:"codespaces,omitempty"`
	Systems         []string               `json:"systems,omitempty"`
	Operators       []string               `json:"operators,omitempty"`
	FormFactors     []model.FormFactor     `json:"formFactors,omitempty"`
	PropulsionTypes []model.PropulsionType `json:"propulsionTypes,omitempty"`
	IncludeReserved bool                   `json:"includeReserved,omitempty"`
	IncludeDisabled bool                   `json:"includeDisabled,omitempty"`
}

// Filter：恰好一种地理模式（矩形或圆形）加属性过滤；Count 大于 0 时限制初始结果数量
type Filter struct {
	BoundingBox *spatial.BoundingBox `json:"boundingBox,omitempty"`
	Range       *Range               `json:"range,omitempty"`
	Attributes
	Count int `json:"count,omitempty"`
}

var (
	ErrGeoMode     = errors.New("filter: exactly one of boundingBox or range is required")
	ErrRadius      = errors.New("filter: radiusMeters must be positive")
	ErrCoordinates = errors.New("filter: coordinates out of range")
)

func (f Filter) Validate() error {
	if (f.BoundingBox == nil) == (f.Range == nil) {
		return ErrGeoMode
	}
	if f.BoundingBox != nil {
		return f.BoundingBox.Validate()
	}
	if f.Range.RadiusMeters <= 0 {
		return ErrRadius
	}
	if f.Range.Lat < -90 || f.Range.Lat > 90 || f.Range.Lon < -180 || f.Range.Lon > 180 {
		return ErrCoordinates
	}
	return nil
}

// ContainsPoint：地理谓词
func (f Filter) ContainsPoint(p spatial.Point) bool {
	if f.BoundingBox != nil {
		return f.BoundingBox.Contains(p.Lat, p.Lon)
	}
	if f.Range != nil {
		return spatial.Haversine(f.Range.Lat, f.Range.Lon, p.Lat, p.Lon) <= f.Range.RadiusMeters
	}
	return false
}

func allowed[S ~[]E, E comparable](list S, v E) bool {
	return len(list) == 0 || slices.Contains(list, v)
}

func (a Attributes) matchOwner(o spatial.Owner) bool {
	return allowed(a.Codespaces, o.Codespace) && allowed(a.Systems, o.SystemID) && allowed(a.Operators, o.OperatorID)
}

// MatchVehicle：按车辆索引 id 判定
func (a Attributes) MatchVehicle(id spatial.VehicleID) bool {
	if !a.matchOwner(id.Owner) {
		return false
	}
	if id.Reserved && !a.IncludeReserved {
		return false
	}
	if id.Disabled && !a.IncludeDisabled {
		return false
	}
	return allowed(a.FormFactors, id.FormFactor) && allowed(a.PropulsionTypes, id.PropulsionType)
}

// MatchStation：任一可用车型命中即可
func (a Attributes) MatchStation(id spatial.StationID) bool {
	if !a.matchOwner(id.Owner) {
		return false
	}
	if len(a.FormFactors) > 0 && !slices.ContainsFunc(id.FormFactors, func(f model.FormFactor) bool {
		return slices.Contains(a.FormFactors, f)
	}) {
		return false
	}
	if len(a.PropulsionTypes) > 0 && !slices.ContainsFunc(id.PropulsionTypes, func(p model.PropulsionType) bool {
		return slices.Contains(a.PropulsionTypes, p)
	}) {
		return false
	}
	return true
}

package spatial

import (
	"errors"
	"math"
)

// 与 Redis GEO 相同的地球半径，保证内存判定与 GEOSEARCH 的距离一致
const earthRadiusMeters = 6372797.560856

// Redis GEO 可接受的坐标范围（Web Mercator）
const (
	GeoMaxLat = 85.05112878
	GeoMaxLon = 180.0
)

type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// PointOf：坐标缺失或超出可索引范围的实体不进入索引
func PointOf(e interface {
	Coordinates() (float64, float64, bool)
}) (Point, bool) {
	lat, lon, ok := e.Coordinates()
	if !ok || !ValidCoordinates(lat, lon) {
		return Point{}, false
	}
	return Point{Lon: lon, Lat: lat}, true
}

// ValidCoordinates：NaN 与超出 GEO 范围的坐标返回 false
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -GeoMaxLat && lat <= GeoMaxLat && lon >= -GeoMaxLon && lon <= GeoMaxLon
}

// Haversine：球面距离，单位米
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

func (b BoundingBox) Validate() error {
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return errors.New("bounding box: min greater than max")
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return errors.New("bounding box: coordinates out of range")
	}
	return nil
}

func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// EnclosingCircle：外接圆，圆心为中心点，半径为中心到角点的距离（米）
// 约束：圆形查询后必须再按矩形过滤
func (b BoundingBox) EnclosingCircle() (Point, float64) {
	c := Point{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
	r := Haversine(c.Lat, c.Lon, b.MaxLat, b.MaxLon)
	if d := Haversine(c.Lat, c.Lon, b.MinLat, b.MaxLon); d > r {
		r = d
	}
	return c, r
}

type Unit string

const (
	Meters     Unit = "m"
	Kilometers Unit = "km"
)

func (u Unit) toMeters(v float64) float64 {
	if u == Kilometers {
		return v * 1000
	}
	return v
}

type Order string

const (
	Asc  Order = "ASC"
	Desc Order = "DESC"
)

// RadiusQuery：圆形查询；Limit 大于 0 时取距离最近（ASC）或最远（DESC）的前 N 个
type RadiusQuery struct {
	Lon    float64
	Lat    float64
	Radius float64
	Unit   Unit
	Order  Order
	Limit  int
}

type Hit struct {
	ID             string
	Point          Point
	DistanceMeters float64
}

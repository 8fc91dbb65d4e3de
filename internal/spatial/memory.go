package spatial

import (
	"context"
	"math"
	"sync"
)

const maxScanCells = 4096

// MemoryIndex：进程内索引，点按 geohash 网格分桶，查询只扫描覆盖查询范围的网格
type MemoryIndex struct {
	kind  string
	mu    sync.RWMutex
	pts   map[string]Point
	cell  map[string]string
	cells map[string]map[string]struct{}
}

func NewMemory(kind string) *MemoryIndex {
	return &MemoryIndex{
		kind:  kind,
		pts:   make(map[string]Point),
		cell:  make(map[string]string),
		cells: make(map[string]map[string]struct{}),
	}
}

func (x *MemoryIndex) Kind() string { return x.kind }

func (x *MemoryIndex) Add(ctx context.Context, id string, p Point) error {
	return x.AddAll(ctx, map[string]Point{id: p})
}

func (x *MemoryIndex) Remove(ctx context.Context, id string) error {
	return x.RemoveAll(ctx, []string{id})
}

func (x *MemoryIndex) AddAll(_ context.Context, points map[string]Point) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, p := range points {
		x.removeLocked(id)
		h := encodeGeohash(p.Lat, p.Lon, cellPrecision)
		x.pts[id] = p
		x.cell[id] = h
		b := x.cells[h]
		if b == nil {
			b = make(map[string]struct{})
			x.cells[h] = b
		}
		b[id] = struct{}{}
	}
	return nil
}

func (x *MemoryIndex) RemoveAll(_ context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		x.removeLocked(id)
	}
	return nil
}

func (x *MemoryIndex) removeLocked(id string) {
	h, ok := x.cell[id]
	if !ok {
		return
	}
	delete(x.pts, id)
	delete(x.cell, id)
	if b := x.cells[h]; b != nil {
		delete(b, id)
		if len(b) == 0 {
			delete(x.cells, h)
		}
	}
}

// candidates：返回落在矩形覆盖网格内的点；网格过多时退化为全量
func (x *MemoryIndex) candidates(box BoundingBox) map[string]Point {
	cells := coveringCells(box, maxScanCells)
	if cells == nil {
		out := make(map[string]Point, len(x.pts))
		for id, p := range x.pts {
			out[id] = p
		}
		return out
	}
	out := make(map[string]Point)
	for _, h := range cells {
		for id := range x.cells[h] {
			out[id] = x.pts[id]
		}
	}
	return out
}

func (x *MemoryIndex) Radius(_ context.Context, q RadiusQuery) []Hit {
	r := q.Unit.toMeters(q.Radius)
	x.mu.RLock()
	defer x.mu.RUnlock()
	var hits []Hit
	for id, p := range x.candidates(circleBox(q.Lat, q.Lon, r)) {
		d := Haversine(q.Lat, q.Lon, p.Lat, p.Lon)
		if d <= r {
			hits = append(hits, Hit{ID: id, Point: p, DistanceMeters: d})
		}
	}
	return sortHits(hits, q.Order, q.Limit)
}

func (x *MemoryIndex) BoundingBox(ctx context.Context, box BoundingBox, limit int) []Hit {
	c, r := box.EnclosingCircle()
	hits := x.Radius(ctx, RadiusQuery{Lon: c.Lon, Lat: c.Lat, Radius: r, Unit: Meters, Order: Asc})
	return filterBox(hits, box, limit)
}

func (x *MemoryIndex) All(_ context.Context) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.pts))
	for id := range x.pts {
		out = append(out, id)
	}
	return out
}

// circleBox：圆的外接经纬度矩形；跨越极点或 180° 经线时经度取全范围
func circleBox(lat, lon, meters float64) BoundingBox {
	dLat := meters / 111320.0
	cos := math.Cos(lat * math.Pi / 180)
	dLon := 360.0
	if cos > 1e-6 {
		dLon = meters / (111320.0 * cos)
	}
	box := BoundingBox{
		MinLat: math.Max(-90, lat-dLat),
		MaxLat: math.Min(90, lat+dLat),
		MinLon: lon - dLon,
		MaxLon: lon + dLon,
	}
	if box.MinLon < -180 || box.MaxLon > 180 || box.MinLat == -90 || box.MaxLat == 90 {
		box.MinLon, box.MaxLon = -180, 180
	}
	return box
}

package search

import (
	"context"
	"testing"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"
)

func fp(v float64) *float64 { return &v }

var registry = provider.NewDynamic([]provider.Config{
	{SystemID: "oslo", Codespace: "YOS", OperatorID: "YOS:Operator:1", Enabled: true},
	{SystemID: "voi", Codespace: "YVO", OperatorID: "YVO:Operator:1", Enabled: true},
})

func seedVehicles(t *testing.T, vs ...*model.Vehicle) *Service[*model.Vehicle] {
	t.Helper()
	ctx := context.Background()
	c := cache.NewMemory[*model.Vehicle]("vehicle")
	idx := spatial.NewMemory("vehicle")
	m := VehicleMatcher{Providers: registry}
	entities := map[string]*model.Vehicle{}
	points := map[string]spatial.Point{}
	for _, v := range vs {
		entities[v.ID] = v
		p, _ := spatial.PointOf(v)
		id, _ := m.IndexID(v)
		points[id] = p
	}
	if err := c.UpdateAll(ctx, entities, 0); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if err := idx.AddAll(ctx, points); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	return NewService[*model.Vehicle](c, idx, m)
}

func veh(id, system string, lat, lon float64, ff model.FormFactor) *model.Vehicle {
	return &model.Vehicle{
		ID:          id,
		Lat:         fp(lat),
		Lon:         fp(lon),
		System:      &model.System{ID: system},
		VehicleType: &model.VehicleType{ID: string(ff), FormFactor: ff, PropulsionType: model.PropulsionElectric},
	}
}

func ids(vs []*model.Vehicle) map[string]bool {
	out := map[string]bool{}
	for _, v := range vs {
		out[v.ID] = true
	}
	return out
}

func TestFilterValidate(t *testing.T) {
	box := &spatial.BoundingBox{MinLat: 59.8, MinLon: 10.6, MaxLat: 60.0, MaxLon: 10.9}
	cases := []struct {
		name string
		f    Filter
		ok   bool
	}{
		{"box", Filter{BoundingBox: box}, true},
		{"range", Filter{Range: &Range{Lat: 59.9, Lon: 10.7, RadiusMeters: 500}}, true},
		{"none", Filter{}, false},
		{"both", Filter{BoundingBox: box, Range: &Range{Lat: 1, Lon: 1, RadiusMeters: 1}}, false},
		{"zero radius", Filter{Range: &Range{Lat: 1, Lon: 1}}, false},
		{"inverted box", Filter{BoundingBox: &spatial.BoundingBox{MinLat: 60, MaxLat: 59, MinLon: 10, MaxLon: 11}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.f.Validate(); (err == nil) != tc.ok {
				t.Fatalf("validate: got %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestFindBoundingBoxAndAttributes(t *testing.T) {
	s := seedVehicles(t,
		veh("in-scooter", "voi", 59.91, 10.75, model.FormFactorScooter),
		veh("in-bike", "oslo", 59.92, 10.74, model.FormFactorBicycle),
		veh("outside", "oslo", 63.43, 10.39, model.FormFactorBicycle),
	)
	box := &spatial.BoundingBox{MinLat: 59.8, MinLon: 10.6, MaxLat: 60.0, MaxLon: 10.9}

	got := ids(s.Find(context.Background(), Filter{BoundingBox: box}))
	if len(got) != 2 || !got["in-scooter"] || !got["in-bike"] {
		t.Fatalf("box: got %v", got)
	}

	got = ids(s.Find(context.Background(), Filter{BoundingBox: box, Attributes: Attributes{Codespaces: []string{"YVO"}}}))
	if len(got) != 1 || !got["in-scooter"] {
		t.Fatalf("codespace filter: got %v", got)
	}

	got = ids(s.Find(context.Background(), Filter{BoundingBox: box, Attributes: Attributes{FormFactors: []model.FormFactor{model.FormFactorBicycle}}}))
	if len(got) != 1 || !got["in-bike"] {
		t.Fatalf("form factor filter: got %v", got)
	}
}

func TestFindRangeOrderAndCount(t *testing.T) {
	s := seedVehicles(t,
		veh("far", "oslo", 59.93, 10.70, model.FormFactorBicycle),
		veh("near", "oslo", 59.9005, 10.70, model.FormFactorBicycle),
		veh("mid", "oslo", 59.91, 10.70, model.FormFactorBicycle),
	)
	got := s.Find(context.Background(), Filter{Range: &Range{Lat: 59.90, Lon: 10.70, RadiusMeters: 5000}, Count: 2})
	if len(got) != 2 || got[0].ID != "near" || got[1].ID != "mid" {
		t.Fatalf("range: got %v", ids(got))
	}
}

func TestReservedAndDisabledExcludedByDefault(t *testing.T) {
	r := veh("reserved", "oslo", 59.91, 10.75, model.FormFactorBicycle)
	r.Reserved = true
	d := veh("disabled", "oslo", 59.91, 10.75, model.FormFactorBicycle)
	d.Disabled = true
	s := seedVehicles(t, r, d)
	f := Filter{Range: &Range{Lat: 59.91, Lon: 10.75, RadiusMeters: 100}}
	if got := s.Find(context.Background(), f); len(got) != 0 {
		t.Fatalf("default: got %v, want none", ids(got))
	}
	f.IncludeReserved, f.IncludeDisabled = true, true
	if got := s.Find(context.Background(), f); len(got) != 2 {
		t.Fatalf("included: got %v, want both", ids(got))
	}
}

func TestMatchStation(t *testing.T) {
	id := spatial.StationID{
		Owner:           spatial.Owner{ID: "s", Codespace: "YOS", SystemID: "oslo"},
		FormFactors:     []model.FormFactor{model.FormFactorBicycle, model.FormFactorScooter},
		PropulsionTypes: []model.PropulsionType{model.PropulsionHuman},
	}
	if !(Attributes{FormFactors: []model.FormFactor{model.FormFactorScooter}}).MatchStation(id) {
		t.Errorf("any available form factor should match")
	}
	if (Attributes{PropulsionTypes: []model.PropulsionType{model.PropulsionElectric}}).MatchStation(id) {
		t.Errorf("propulsion mismatch matched")
	}
	if (Attributes{Systems: []string{"bergen"}}).MatchStation(id) {
		t.Errorf("system mismatch matched")
	}
}

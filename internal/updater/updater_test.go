package updater

import (
	"context"
	"errors"
	"testing"
	"time"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/continuity"
	"gbfs-sync/internal/delta"
	"gbfs-sync/internal/leader"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"
)

const epsilon = 5 // meters

type fixture struct {
	vehicles *cache.MemoryCache[*model.Vehicle]
	stations *cache.MemoryCache[*model.Station]
	vIndex   *spatial.MemoryIndex
	sIndex   *spatial.MemoryIndex
	vTracker *continuity.Memory
	vu       *Vehicles
	su       *Stations
	isLeader bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		vehicles: cache.NewMemory[*model.Vehicle]("vehicle"),
		stations: cache.NewMemory[*model.Station]("station"),
		vIndex:   spatial.NewMemory("vehicle"),
		sIndex:   spatial.NewMemory("station"),
		vTracker: continuity.NewMemory(),
		isLeader: true,
	}
	opts := Options{
		Leader: leader.Func(func() bool { return f.isLeader }),
		Providers: provider.NewDynamic([]provider.Config{
			{SystemID: "oslo", Codespace: "YOS", OperatorID: "YOS:Operator:1", Enabled: true},
			{SystemID: "bergen", Codespace: "YBE", OperatorID: "YBE:Operator:1", Enabled: true},
			{SystemID: "off", Codespace: "OFF", Enabled: false},
		}),
		Now: func() time.Time { return time.UnixMilli(1000) },
	}
	f.vu = NewVehicles(f.vehicles, f.vIndex, f.vTracker, opts)
	f.su = NewStations(f.stations, f.sIndex, continuity.NewMemory(), opts)
	return f
}

func fp(v float64) *float64 { return &v }
func ip(v int64) *int64     { return &v }

func status(id string, lat, lon float64) *model.VehicleStatus {
	return &model.VehicleStatus{VehicleID: id, Lat: fp(lat), Lon: fp(lon), VehicleTypeID: "bike"}
}

func vfeed(providerID string, base *int64, compare int64, entries ...delta.EntityDelta[model.VehicleStatus]) delta.VehicleFeed {
	return delta.VehicleFeed{
		ProviderID: providerID,
		VehicleTypes: map[string]model.VehicleType{
			"bike":  {ID: "bike", FormFactor: model.FormFactorBicycle, PropulsionType: model.PropulsionHuman, DefaultPricingPlanID: "basic"},
			"cargo": {ID: "cargo", FormFactor: model.FormFactorCargoBicycle, PropulsionType: model.PropulsionHuman},
		},
		PricingPlans: map[string]model.PricingPlan{
			"basic": {ID: "basic", Currency: "NOK", Price: 0},
			"day":   {ID: "day", Currency: "NOK", Price: 49},
		},
		Delta: delta.Batch[model.VehicleStatus]{Base: base, Compare: compare, TTL: 60, Entries: entries},
	}
}

func create(id string, lat, lon float64) delta.EntityDelta[model.VehicleStatus] {
	return delta.EntityDelta[model.VehicleStatus]{EntityID: id, Kind: delta.Create, Entity: status(id, lat, lon)}
}

func update(id string, lat, lon float64) delta.EntityDelta[model.VehicleStatus] {
	return delta.EntityDelta[model.VehicleStatus]{EntityID: id, Kind: delta.Update, Entity: status(id, lat, lon)}
}

func del(id string) delta.EntityDelta[model.VehicleStatus] {
	return delta.EntityDelta[model.VehicleStatus]{EntityID: id, Kind: delta.Delete}
}

func (f *fixture) near(lat, lon float64) map[string]bool {
	out := map[string]bool{}
	for _, h := range f.vIndex.Radius(context.Background(), spatial.RadiusQuery{Lon: lon, Lat: lat, Radius: epsilon, Unit: spatial.Meters}) {
		o, _ := spatial.ParseOwner(h.ID)
		out[o.ID] = true
	}
	return out
}

func (f *fixture) mustApply(t *testing.T, feed delta.VehicleFeed) Result {
	t.Helper()
	res, err := f.vu.Apply(context.Background(), feed)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return res
}

func TestCreateProperty(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, vfeed("oslo", nil, 1, create("v1", 59.9, 10.7), create("v2", 59.91, 10.71)))

	for id, pt := range map[string][2]float64{"v1": {59.9, 10.7}, "v2": {59.91, 10.71}} {
		v, ok := f.vehicles.Get(context.Background(), id)
		if !ok {
			t.Fatalf("get %s: missing", id)
		}
		if v.VehicleType == nil || v.VehicleType.FormFactor != model.FormFactorBicycle {
			t.Errorf("%s: vehicle type not resolved", id)
		}
		if v.ProviderID() != "oslo" {
			t.Errorf("%s provider: got %q, want oslo", id, v.ProviderID())
		}
		if !f.near(pt[0], pt[1])[id] {
			t.Errorf("%s: not found by radius query", id)
		}
	}
}

func TestDeleteProperty(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, vfeed("oslo", nil, 1, create("v1", 59.9, 10.7)))
	f.mustApply(t, vfeed("oslo", ip(1), 2, del("v1"), del("never-existed")))

	if _, ok := f.vehicles.Get(context.Background(), "v1"); ok {
		t.Fatalf("v1 still cached")
	}
	if got := len(f.vIndex.All(context.Background())); got != 0 {
		t.Fatalf("index entries: got %d, want 0", got)
	}
}

func TestMoveProperty(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, vfeed("oslo", nil, 1, create("V1", 59.90, 10.70)))
	f.mustApply(t, vfeed("oslo", ip(1), 2, update("V1", 59.95, 10.80)))

	if f.near(59.90, 10.70)["V1"] {
		t.Fatalf("V1 still found at old position")
	}
	if !f.near(59.95, 10.80)["V1"] {
		t.Fatalf("V1 not found at new position")
	}
	if got := len(f.vIndex.All(context.Background())); got != 1 {
		t.Fatalf("index entries: got %d, want 1", got)
	}
}

func TestAttributeChangeReplacesIndexEntry(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, vfeed("oslo", nil, 1, create("v1", 59.9, 10.7)))
	u := update("v1", 59.9, 10.7)
	u.Entity.IsReserved = true
	f.mustApply(t, vfeed("oslo", ip(1), 2, u))

	ids := f.vIndex.All(context.Background())
	if len(ids) != 1 {
		t.Fatalf("index entries: got %v, want one", ids)
	}
	vid, err := spatial.ParseVehicleID(ids[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !vid.Reserved {
		t.Fatalf("index id not refreshed: %s", ids[0])
	}
}

func TestContinuityProperty(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, vfeed("oslo", nil, 1, create("a", 59.9, 10.7), create("b", 59.91, 10.71)))
	f.mustApply(t, vfeed("bergen", nil, 1, create("x", 60.39, 5.32)))

	// base 5 does not match the recorded watermark 1
	res := f.mustApply(t, vfeed("oslo", ip(5), 6,
		create("c", 59.92, 10.72),
		update("a", 59.93, 10.73),
		del("b"),
	))
	if !res.Purged {
		t.Fatalf("expected a purge")
	}
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, ok := f.vehicles.Get(ctx, id); ok {
			t.Errorf("%s survived the purge", id)
		}
	}
	if _, ok := f.vehicles.Get(ctx, "c"); !ok {
		t.Errorf("c: CREATE after purge missing")
	}
	if _, ok := f.vehicles.Get(ctx, "x"); !ok {
		t.Errorf("x: other provider affected by purge")
	}
	if got := len(f.vIndex.All(ctx)); got != 2 {
		t.Errorf("index entries: got %d, want 2 (c, x)", got)
	}
	if !f.vTracker.HasContinuity(ctx, "oslo", ip(6)) {
		t.Errorf("watermark not recorded")
	}
}

func TestIdempotentCreateBatch(t *testing.T) {
	f := newFixture(t)
	feed := vfeed("oslo", nil, 1, create("a", 59.9, 10.7), create("b", 59.91, 10.71))
	f.mustApply(t, feed)
	f.mustApply(t, feed)

	ctx := context.Background()
	if got := f.vehicles.Count(ctx); got != 2 {
		t.Fatalf("count: got %d, want 2", got)
	}
	if got := len(f.vIndex.All(ctx)); got != 2 {
		t.Fatalf("index entries: got %d, want 2", got)
	}
}

func TestReferentialGapsAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, vfeed("oslo", nil, 1, create("a", 59.9, 10.7)))
	bad := create("b", 59.9, 10.7)
	bad.Entity.VehicleTypeID = "unknown"
	res := f.mustApply(t, vfeed("oslo", ip(1), 2, update("ghost", 59.9, 10.7), bad, create("c", 59.95, 10.75)))

	if res.Skipped != 2 || res.Created != 1 {
		t.Fatalf("result: got %+v, want 2 skipped and 1 created", res)
	}
	if _, ok := f.vehicles.Get(context.Background(), "ghost"); ok {
		t.Fatalf("UPDATE synthesized a CREATE")
	}
}

func TestVehicleFilterRules(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*model.VehicleStatus)
		plan   string
		skip   bool
	}{
		{"default plan from vehicle type", func(s *model.VehicleStatus) {}, "basic", false},
		{"explicit plan", func(s *model.VehicleStatus) { s.PricingPlanID = "day" }, "day", false},
		{"docked at station", func(s *model.VehicleStatus) { s.StationID = "S1" }, "", true},
		{"unknown plan", func(s *model.VehicleStatus) { s.PricingPlanID = "gone" }, "", true},
		{"no vehicle type", func(s *model.VehicleStatus) { s.VehicleTypeID = "" }, "", true},
		{"no plan and no default", func(s *model.VehicleStatus) { s.VehicleTypeID = "cargo" }, "", true},
		{"explicit plan without default", func(s *model.VehicleStatus) {
			s.VehicleTypeID = "cargo"
			s.PricingPlanID = "day"
		}, "day", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			c := create("v1", 59.9, 10.7)
			tc.modify(c.Entity)
			res := f.mustApply(t, vfeed("oslo", nil, 1, c))
			v, ok := f.vehicles.Get(context.Background(), "v1")
			if tc.skip {
				if ok || res.Skipped != 1 || len(f.vIndex.All(context.Background())) != 0 {
					t.Fatalf("expected skip, got %+v cached=%v", res, ok)
				}
				return
			}
			if !ok || res.Created != 1 {
				t.Fatalf("expected create, got %+v", res)
			}
			if v.PricingPlan == nil || v.PricingPlan.ID != tc.plan {
				t.Fatalf("pricing plan: got %+v, want %s", v.PricingPlan, tc.plan)
			}
		})
	}
}

func TestInvalidCoordinatesSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustApply(t, vfeed("oslo", nil, 1, create("ok", 59.9, 10.7), create("polar", 88, 10.7), create("wrapped", 59.9, 190)))
	if res.Created != 1 || res.Skipped != 2 {
		t.Fatalf("result: got %+v, want 1 created and 2 skipped", res)
	}
	if _, ok := f.vehicles.Get(ctx, "polar"); ok {
		t.Fatalf("entity with invalid coordinates cached")
	}
	if !f.near(59.9, 10.7)["ok"] {
		t.Fatalf("valid entry lost")
	}
	if !f.vTracker.HasContinuity(ctx, "oslo", ip(1)) {
		t.Fatalf("watermark not advanced")
	}
}

func TestSystemIDFollowsProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	feed := vfeed("oslo", nil, 1, create("v1", 59.9, 10.7))
	feed.System = model.System{ID: "oslobysykkel", Name: "Oslo Bysykkel"}
	f.mustApply(t, feed)

	v, ok := f.vehicles.Get(ctx, "v1")
	if !ok || v.ProviderID() != "oslo" || v.System.Name != "Oslo Bysykkel" {
		t.Fatalf("vehicle system: got %+v", v)
	}
	res := f.mustApply(t, vfeed("oslo", nil, 2))
	if !res.Purged {
		t.Fatalf("expected a purge")
	}
	if _, ok := f.vehicles.Get(ctx, "v1"); ok {
		t.Fatalf("v1 survived the purge")
	}
	if got := len(f.vIndex.All(ctx)); got != 0 {
		t.Fatalf("index entries: got %d, want 0", got)
	}
}

func TestDuplicateEntryFirstWins(t *testing.T) {
	f := newFixture(t)
	res := f.mustApply(t, vfeed("oslo", nil, 1, create("a", 59.9, 10.7), create("a", 61.0, 11.0)))
	if res.Created != 1 || res.Skipped != 1 {
		t.Fatalf("result: got %+v", res)
	}
	if !f.near(59.9, 10.7)["a"] {
		t.Fatalf("first occurrence lost")
	}
}

func TestGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.isLeader = false
	if _, err := f.vu.Apply(ctx, vfeed("oslo", nil, 1, create("a", 59.9, 10.7))); !errors.Is(err, ErrNotLeader) {
		t.Fatalf("non-leader: got %v, want ErrNotLeader", err)
	}
	if got := f.vehicles.Count(ctx); got != 0 {
		t.Fatalf("non-leader wrote %d entities", got)
	}
	f.isLeader = true
	if _, err := f.vu.Apply(ctx, vfeed("nope", nil, 1)); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("unknown provider: got %v", err)
	}
	if _, err := f.vu.Apply(ctx, vfeed("off", nil, 1)); !errors.Is(err, ErrProviderDisabled) {
		t.Fatalf("disabled provider: got %v", err)
	}
}

func TestClearProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustApply(t, vfeed("oslo", nil, 1, create("a", 59.9, 10.7)))
	if err := f.vu.ClearProvider(ctx, "oslo"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if f.vehicles.Count(ctx) != 0 || len(f.vIndex.All(ctx)) != 0 {
		t.Fatalf("entities left after clear")
	}
	if f.vTracker.HasContinuity(ctx, "oslo", ip(1)) {
		t.Fatalf("continuity left after clear")
	}
}

func stationFeed(base *int64, compare int64, bikes int, withInfo bool) delta.StationFeed {
	feed := delta.StationFeed{
		ProviderID: "oslo",
		VehicleTypes: map[string]model.VehicleType{
			"bike": {ID: "bike", FormFactor: model.FormFactorBicycle, PropulsionType: model.PropulsionHuman},
		},
		Information: map[string]model.StationInformation{},
		Delta: delta.Batch[model.StationStatus]{Base: base, Compare: compare, TTL: 60, Entries: []delta.EntityDelta[model.StationStatus]{{
			EntityID: "S1",
			Kind:     delta.Create,
			Entity: &model.StationStatus{
				StationID:             "S1",
				NumBikesAvailable:     bikes,
				VehicleTypesAvailable: []model.VehicleTypeCount{{VehicleTypeID: "bike", Count: bikes}},
			},
		}}},
	}
	if base != nil {
		feed.Delta.Entries[0].Kind = delta.Update
	}
	if withInfo {
		feed.Information["S1"] = model.StationInformation{StationID: "S1", Name: "Torggata", Lat: fp(59.91), Lon: fp(10.75)}
	}
	return feed
}

func TestStationMissingInformation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.su.Apply(ctx, stationFeed(nil, 1, 3, false))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Skipped != 1 || f.stations.Count(ctx) != 0 {
		t.Fatalf("station without information was not skipped: %+v", res)
	}
}

func TestStationUpdateFullReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.su.Apply(ctx, stationFeed(nil, 1, 3, true)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.su.Apply(ctx, stationFeed(ip(1), 2, 5, true)); err != nil {
		t.Fatalf("update: %v", err)
	}
	s, ok := f.stations.Get(ctx, "S1")
	if !ok {
		t.Fatalf("S1 missing")
	}
	if s.NumBikesAvailable != 5 || s.Name != "Torggata" {
		t.Fatalf("merged station: got bikes=%d name=%q", s.NumBikesAvailable, s.Name)
	}
	ids := f.sIndex.All(ctx)
	if len(ids) != 1 {
		t.Fatalf("station index: got %v", ids)
	}
	sid, err := spatial.ParseStationID(ids[0])
	if err != nil || len(sid.FormFactors) != 1 || sid.FormFactors[0] != model.FormFactorBicycle {
		t.Fatalf("station index id: got %s (%v)", ids[0], err)
	}
}

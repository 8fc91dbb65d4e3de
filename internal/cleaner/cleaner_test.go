package cleaner

import (
	"context"
	"reflect"
	"testing"
	"time"

	"gbfs-sync/internal/cache"
	"gbfs-sync/internal/continuity"
	"gbfs-sync/internal/delta"
	"gbfs-sync/internal/leader"
	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
	"gbfs-sync/internal/spatial"
	"gbfs-sync/internal/updater"
)

type env struct {
	cache    *cache.MemoryCache[*model.Vehicle]
	index    *spatial.MemoryIndex
	tracker  *continuity.Memory
	vu       *updater.Vehicles
	cleaner  *Cleaner
	registry *provider.Dynamic
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		cache:   cache.NewMemory[*model.Vehicle]("vehicle"),
		index:   spatial.NewMemory("vehicle"),
		tracker: continuity.NewMemory(),
		registry: provider.NewDynamic([]provider.Config{
			{SystemID: "keep", Codespace: "KEP", Enabled: true},
			{SystemID: "gone", Codespace: "GON", Enabled: true},
		}),
	}
	e.vu = updater.NewVehicles(e.cache, e.index, e.tracker, updater.Options{Leader: leader.Static(true), Providers: e.registry})
	e.cleaner = New(e.registry, NewTarget[*model.Vehicle]("vehicle", e.cache, e.index, e.vu))
	return e
}

func (e *env) seed(t *testing.T, providerID string, ids ...string) {
	t.Helper()
	lat, lon := 59.9, 10.7
	feed := delta.VehicleFeed{ProviderID: providerID, Delta: delta.Batch[model.VehicleStatus]{Compare: time.Now().UnixMilli(), TTL: 60}}
	for _, id := range ids {
		feed.Delta.Entries = append(feed.Delta.Entries, delta.EntityDelta[model.VehicleStatus]{
			EntityID: id, Kind: delta.Create, Entity: &model.VehicleStatus{VehicleID: id, Lat: &lat, Lon: &lon},
		})
	}
	if _, err := e.vu.Apply(context.Background(), feed); err != nil {
		t.Fatalf("seed %s: %v", providerID, err)
	}
}

func TestCleanupUnconfigured(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, "keep", "k1")
	e.seed(t, "gone", "g1", "g2")
	e.registry.Set([]provider.Config{{SystemID: "keep", Codespace: "KEP", Enabled: true}})

	removed, err := e.cleaner.CleanupUnconfigured(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if want := []string{"gone"}; !reflect.DeepEqual(removed, want) {
		t.Fatalf("removed: got %v, want %v", removed, want)
	}
	if got := e.cache.Count(ctx); got != 1 {
		t.Fatalf("remaining entities: got %d, want 1", got)
	}
	if got := len(e.index.All(ctx)); got != 1 {
		t.Fatalf("remaining index entries: got %d, want 1", got)
	}
}

func TestOrphans(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, "keep", "k1", "k2")
	// cache entry disappears without the index being touched, as with TTL expiry
	_ = e.cache.RemoveAll(ctx, []string{"k2"})

	orphans, err := e.cleaner.FindOrphans(ctx, "vehicle")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("orphans: got %v, want one", orphans)
	}
	if o, _ := spatial.ParseOwner(orphans[0]); o.ID != "k2" {
		t.Fatalf("orphan: got %s, want k2", orphans[0])
	}
	if _, err := e.cleaner.RemoveOrphans(ctx, "vehicle"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(e.index.All(ctx)); got != 1 {
		t.Fatalf("index after orphan removal: got %d, want 1", got)
	}
	if _, err := e.cleaner.FindOrphans(ctx, "bogus"); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}

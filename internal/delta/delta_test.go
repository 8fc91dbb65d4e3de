package delta

import (
	"testing"

	"gbfs-sync/internal/model"
)

func vs(id string, reserved bool) model.VehicleStatus {
	return model.VehicleStatus{VehicleID: id, IsReserved: reserved}
}

func TestCalculateWithoutBase(t *testing.T) {
	b := Calculate(nil, Snapshot[model.VehicleStatus]{LastUpdated: 10, TTL: 60, Items: []model.VehicleStatus{vs("a", false), vs("b", false)}}, VehicleID)
	if b.Base != nil {
		t.Fatalf("base: got %v, want nil", *b.Base)
	}
	if b.Compare != 10 || b.TTL != 60 {
		t.Fatalf("compare/ttl: got %d/%d, want 10/60", b.Compare, b.TTL)
	}
	if len(b.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(b.Entries))
	}
	for _, e := range b.Entries {
		if e.Kind != Create || e.Entity == nil {
			t.Errorf("entry %s: got kind %s, want CREATE with entity", e.EntityID, e.Kind)
		}
	}
}

func TestCalculateKinds(t *testing.T) {
	base := &Snapshot[model.VehicleStatus]{LastUpdated: 1, Items: []model.VehicleStatus{vs("keep", false), vs("change", false), vs("gone", false)}}
	cmp := Snapshot[model.VehicleStatus]{LastUpdated: 2, Items: []model.VehicleStatus{vs("keep", false), vs("change", true), vs("new", false)}}
	b := Calculate(base, cmp, VehicleID)
	if b.Base == nil || *b.Base != 1 {
		t.Fatalf("base: got %v, want 1", b.Base)
	}
	got := map[string]Kind{}
	for _, e := range b.Entries {
		got[e.EntityID] = e.Kind
	}
	want := map[string]Kind{"change": Update, "gone": Delete, "new": Create}
	if len(got) != len(want) {
		t.Fatalf("entries: got %v, want %v", got, want)
	}
	for id, k := range want {
		if got[id] != k {
			t.Errorf("%s: got %s, want %s", id, got[id], k)
		}
	}
}

func TestCalculateDuplicateFirstWins(t *testing.T) {
	cmp := Snapshot[model.VehicleStatus]{LastUpdated: 2, Items: []model.VehicleStatus{vs("a", true), vs("a", false)}}
	b := Calculate(nil, cmp, VehicleID)
	if len(b.Entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(b.Entries))
	}
	if !b.Entries[0].Entity.IsReserved {
		t.Fatalf("duplicate: later occurrence replaced the first")
	}
}

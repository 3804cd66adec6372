package catalog

import (
	"testing"

	"warescan/internal/types"
)

func storageLoc(tenant, code string, capacity int) types.Location {
	return types.Location{
		Code:        code,
		WarehouseID: tenant,
		Type:        types.LocationStorage,
		Capacity:    capacity,
		Zone:        "GENERAL",
		IsActive:    true,
	}
}

func TestViewGetByCode(t *testing.T) {
	v := NewView("T1", []types.Location{
		storageLoc("T1", "01-A-015-C", 2),
		{Code: "RECV-01", WarehouseID: "T1", Type: types.LocationReceiving, Capacity: 10, Zone: "GENERAL", IsActive: true},
	}, nil)

	// exact match works on any raw spelling of the same code
	if _, ok := v.GetByCode("1-a-15c"); !ok {
		t.Error("expected canonicalized exact match")
	}
	if _, ok := v.GetByCode("recv_01"); !ok {
		t.Error("expected RECV-01 via separator normalization")
	}
	if _, ok := v.GetByCode("ZZZ"); ok {
		t.Error("ZZZ should not exist")
	}
}

func TestViewGetByCodeNeverScansPatterns(t *testing.T) {
	patterned := storageLoc("T1", "AISLE-02", 5)
	patterned.Pattern = "AISLE-*"
	v := NewView("T1", []types.Location{patterned}, nil)

	if _, ok := v.GetByCode("AISLE-99"); ok {
		t.Error("GetByCode must not match patterns")
	}
	if _, ok := v.Resolve("AISLE-99"); !ok {
		t.Error("Resolve should match the pattern")
	}
}

func TestResolveSpecificity(t *testing.T) {
	broad := storageLoc("T1", "ANY", 1)
	broad.Pattern = "*"
	narrow := storageLoc("T1", "RECV-CATCH", 1)
	narrow.Pattern = "RECV-*"
	v := NewView("T1", []types.Location{broad, narrow}, nil)

	loc, ok := v.Resolve("RECV-77")
	if !ok {
		t.Fatal("expected a pattern match")
	}
	if loc.Code != "RECV-CATCH" {
		t.Errorf("expected most specific pattern to win, got %s", loc.Code)
	}
}

func TestResolveTieBreaks(t *testing.T) {
	inactive := storageLoc("T1", "AAA", 1)
	inactive.Pattern = "X-??"
	inactive.IsActive = false
	active := storageLoc("T1", "BBB", 1)
	active.Pattern = "X-??"
	v := NewView("T1", []types.Location{inactive, active}, nil)

	loc, ok := v.Resolve("X-01")
	if !ok {
		t.Fatal("expected a match")
	}
	if loc.Code != "BBB" {
		t.Errorf("active location should win the tie, got %s", loc.Code)
	}

	// Equal activity: lexicographically smallest code wins.
	other := storageLoc("T1", "ABB", 1)
	other.Pattern = "X-??"
	v = NewView("T1", []types.Location{active, other}, nil)
	loc, _ = v.Resolve("X-01")
	if loc.Code != "ABB" {
		t.Errorf("expected lexicographic tie-break, got %s", loc.Code)
	}
}

func TestResolveIdempotentOverCanonical(t *testing.T) {
	v := NewView("T1", []types.Location{storageLoc("T1", "01-A-015-C", 2)}, nil)
	a, okA := v.Resolve("1-a-15c")
	b, okB := v.Resolve("01-A-015-C")
	if !okA || !okB || a.Code != b.Code {
		t.Errorf("Resolve(raw) and Resolve(canonical) disagree: %v/%v", a.Code, b.Code)
	}
}

func TestCountByTypeAndActive(t *testing.T) {
	inactive := storageLoc("T1", "02-A-001-A", 1)
	inactive.IsActive = false
	v := NewView("T1", []types.Location{
		storageLoc("T1", "01-A-001-A", 1),
		inactive,
		{Code: "RECV-01", WarehouseID: "T1", Type: types.LocationReceiving, Capacity: 10, IsActive: true},
	}, nil)

	if got := v.CountByType(types.LocationStorage); got != 2 {
		t.Errorf("expected 2 storage locations, got %d", got)
	}
	if got := len(v.Active()); got != 2 {
		t.Errorf("expected 2 active locations, got %d", got)
	}
}

// =============================================================================
// VIRTUAL EXPANSION TESTS
// =============================================================================

func TestExpand(t *testing.T) {
	cfg := types.WarehouseConfig{
		ID:              "cfg1",
		WarehouseID:     "T1",
		Aisles:          2,
		Racks:           2,
		Positions:       3,
		Levels:          2,
		LevelNames:      "AB",
		DefaultCapacity: 2,
		SpecialAreas: []types.SpecialArea{
			{Code: "RECV-01", Type: types.LocationReceiving, Capacity: 10, Zone: "GENERAL"},
		},
	}
	locs := Expand(cfg)
	want := 2*2*3*2 + 1
	if len(locs) != want {
		t.Fatalf("expected %d locations, got %d", want, len(locs))
	}

	v := NewView("T1", locs, &cfg)
	loc, ok := v.GetByCode("01-A-001-A")
	if !ok {
		t.Fatal("expected generated storage slot")
	}
	if loc.Capacity != 2 || loc.Type != types.LocationStorage || loc.ConfigID != "cfg1" {
		t.Errorf("unexpected generated location: %+v", loc)
	}
	if loc.Structure == nil || loc.Structure.Aisle != 1 || loc.Structure.Level != "A" {
		t.Errorf("structure not decoded: %+v", loc.Structure)
	}

	recv, ok := v.GetByCode("RECV-01")
	if !ok || recv.Type != types.LocationReceiving || recv.Capacity != 10 {
		t.Errorf("special area not expanded: %+v", recv)
	}
}

func TestExpandBidimensional(t *testing.T) {
	cfg := types.WarehouseConfig{
		ID: "cfg1", WarehouseID: "T1",
		Aisles: 1, Racks: 1, Positions: 2, Levels: 4,
		Bidimensional: true, DefaultCapacity: 1,
	}
	locs := Expand(cfg)
	if len(locs) != 2 {
		t.Fatalf("bidimensional should ignore levels, got %d locations", len(locs))
	}
}

func TestWithinBounds(t *testing.T) {
	cfg := &types.WarehouseConfig{Aisles: 2, Racks: 3, Positions: 35, Levels: 4, LevelNames: "ABCD"}

	if dim, _, ok := WithinBounds(cfg, 3, "A", 1, "A"); ok || dim != "aisle" {
		t.Errorf("expected aisle violation, got %q ok=%v", dim, ok)
	}
	if dim, limit, ok := WithinBounds(cfg, 1, "A", 40, "A"); ok || dim != "position" || limit != 35 {
		t.Errorf("expected position violation, got %q limit=%d", dim, limit)
	}
	if dim, _, ok := WithinBounds(cfg, 1, "D", 1, "A"); ok || dim != "rack" {
		t.Errorf("expected rack violation, got %q", dim)
	}
	if dim, _, ok := WithinBounds(cfg, 1, "A", 1, "E"); ok || dim != "level" {
		t.Errorf("expected level violation, got %q", dim)
	}
	if _, _, ok := WithinBounds(cfg, 2, "C", 35, "D"); !ok {
		t.Error("expected in-bounds code to pass")
	}
	if _, _, ok := WithinBounds(nil, 99, "Z", 999, "Z"); !ok {
		t.Error("nil config imposes no bounds")
	}
}

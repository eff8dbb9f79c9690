// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package grid

import (
	"math"
	"testing"
)

// Well-distributed sample coordinates, including edge-adjacent ones.
var samplePoints = []struct {
	name     string
	lat, lng float64
}{
	{"london", 51.5074, -0.1278},
	{"tokyo", 35.6762, 139.6503},
	{"sydney", -33.8688, 151.2093},
	{"quito", -0.1807, -78.4678},
	{"reykjavik", 64.1466, -21.9426},
	{"ushuaia", -54.8019, -68.3030},
	{"fiji_near_antimeridian", -17.7134, 179.9},
	{"origin", 0, 0},
}

func TestCellAtDeterministic(t *testing.T) {
	for _, p := range samplePoints {
		for _, res := range []int{0, 4, 8, 12, 15} {
			a, err := CellAt(p.lat, p.lng, res)
			if err != nil {
				t.Fatalf("%s res %d: %v", p.name, res, err)
			}
			b, err := CellAt(p.lat, p.lng, res)
			if err != nil {
				t.Fatalf("%s res %d: %v", p.name, res, err)
			}
			if a != b {
				t.Errorf("%s res %d: repeated CellAt differs: %s vs %s", p.name, res, a, b)
			}
			if len(a) != 16 {
				t.Errorf("%s res %d: id %q is not 16 chars", p.name, res, a)
			}
		}
	}
}

func TestCellAtNearbyPointsShareCell(t *testing.T) {
	// Two points a few meters apart should land in the same resolution-8 cell
	// in the overwhelming majority of placements.
	same := 0
	total := 0
	for _, p := range samplePoints {
		a, err := CellAt(p.lat, p.lng, 8)
		if err != nil {
			t.Fatal(err)
		}
		b, err := CellAt(p.lat+1e-5, p.lng+1e-5, 8)
		if err != nil {
			t.Fatal(err)
		}
		total++
		if a == b {
			same++
		}
	}
	if same < total-1 {
		t.Errorf("only %d/%d nearby point pairs shared a cell", same, total)
	}
}

func TestCellAtInvalidInput(t *testing.T) {
	if _, err := CellAt(51.5, -0.1, -1); err == nil {
		t.Error("expected error for negative resolution")
	}
	if _, err := CellAt(51.5, -0.1, MaxResolution+1); err == nil {
		t.Error("expected error for resolution beyond max")
	}
	if _, err := CellAt(91, 0, 8); err == nil {
		t.Error("expected error for latitude beyond pole")
	}
	if _, err := CellAt(0, 181, 8); err == nil {
		t.Error("expected error for longitude beyond antimeridian")
	}
	if _, err := CellAt(math.NaN(), 0, 8); err == nil {
		t.Error("expected error for NaN latitude")
	}
}

func TestCenterRoundTrips(t *testing.T) {
	// The center of a cell must map back to the same cell.
	for _, p := range samplePoints {
		for _, res := range []int{2, 8, 14} {
			id, err := CellAt(p.lat, p.lng, res)
			if err != nil {
				t.Fatal(err)
			}
			lat, lng, err := Center(id)
			if err != nil {
				t.Fatal(err)
			}
			if lat < -90 || lat > 90 {
				// Coarse cells near the poles can have out-of-domain centers;
				// those are not produced by CellAt for in-domain input.
				continue
			}
			back, err := CellAt(lat, lng, res)
			if err != nil {
				t.Fatalf("%s: center of %s: %v", p.name, id, err)
			}
			if back != id {
				t.Errorf("%s res %d: center round trip %s -> %s", p.name, res, id, back)
			}
		}
	}
}

func TestResolutionEncoding(t *testing.T) {
	for res := MinResolution; res <= MaxResolution; res++ {
		id, err := CellAt(48.8566, 2.3522, res)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Resolution(id)
		if err != nil {
			t.Fatal(err)
		}
		if got != res {
			t.Errorf("resolution %d encoded as %d", res, got)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, bad := range []CellID{"", "xyz", "123", "zzzzzzzzzzzzzzzz", "0000000000000000"} {
		if _, err := Resolution(bad); err == nil {
			t.Errorf("expected decode error for %q", bad)
		}
	}
}

func TestNeighborsInteriorRingOne(t *testing.T) {
	id, err := CellAt(51.5074, -0.1278, 8)
	if err != nil {
		t.Fatal(err)
	}
	neighbors, err := Neighbors(id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 6 {
		t.Fatalf("interior cell should have 6 ring-1 neighbors, got %d", len(neighbors))
	}
	seen := map[CellID]bool{}
	for _, n := range neighbors {
		if n.Cell == id {
			t.Error("cell listed as its own neighbor")
		}
		if seen[n.Cell] {
			t.Errorf("duplicate neighbor %s", n.Cell)
		}
		seen[n.Cell] = true
		if n.DistanceKm <= 0 {
			t.Errorf("neighbor %s has non-positive distance %f", n.Cell, n.DistanceKm)
		}
		if n.Direction == "" {
			t.Errorf("neighbor %s missing direction", n.Cell)
		}
	}
}

func TestNeighborsRingTwoCount(t *testing.T) {
	id, err := CellAt(35.6762, 139.6503, 8)
	if err != nil {
		t.Fatal(err)
	}
	neighbors, err := Neighbors(id, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Interior disk of radius 2 minus the center: 6 + 12.
	if len(neighbors) != 18 {
		t.Errorf("expected 18 cells within 2 rings, got %d", len(neighbors))
	}
}

func TestNeighborSymmetry(t *testing.T) {
	for _, p := range samplePoints {
		id, err := CellAt(p.lat, p.lng, 8)
		if err != nil {
			t.Fatal(err)
		}
		neighbors, err := Neighbors(id, 1)
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range neighbors {
			ok, err := IsNeighbor(n.Cell, id, 1)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Errorf("%s: %s -> %s not symmetric", p.name, id, n.Cell)
			}
		}
	}
}

func TestNeighborsPolarTruncation(t *testing.T) {
	// A cell at extreme latitude loses the neighbors that would sit beyond
	// the pole. That must be tolerated, not error.
	id, err := CellAt(89.9, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	neighbors, err := Neighbors(id, 1)
	if err != nil {
		t.Fatalf("polar neighbors must not error: %v", err)
	}
	if len(neighbors) >= 6 {
		t.Errorf("expected truncated neighbor set near pole, got %d", len(neighbors))
	}
}

func TestNeighborsInvalidRing(t *testing.T) {
	id, _ := CellAt(0, 0, 8)
	if _, err := Neighbors(id, 0); err == nil {
		t.Error("expected error for ring count 0")
	}
}

func TestParentChildHierarchy(t *testing.T) {
	id, err := CellAt(40.7128, -74.0060, 9)
	if err != nil {
		t.Fatal(err)
	}

	parent, err := Parent(id, 8)
	if err != nil {
		t.Fatal(err)
	}
	pres, _ := Resolution(parent)
	if pres != 8 {
		t.Fatalf("parent resolution = %d, want 8", pres)
	}

	children, err := Children(parent, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) == 0 {
		t.Fatal("parent has no children")
	}

	found := false
	for _, ch := range children {
		if ch == id {
			found = true
		}
		// Exactly one parent per child.
		back, err := Parent(ch, 8)
		if err != nil {
			t.Fatal(err)
		}
		if back != parent {
			t.Errorf("child %s resolves to parent %s, want %s", ch, back, parent)
		}
	}
	if !found {
		t.Errorf("original cell %s missing from its parent's children", id)
	}
}

func TestHierarchyResolutionOrder(t *testing.T) {
	id, _ := CellAt(0, 0, 8)

	if _, err := Parent(id, 8); err == nil {
		t.Error("Parent at same resolution must fail")
	}
	if _, err := Parent(id, 9); err == nil {
		t.Error("Parent at finer resolution must fail")
	}
	if _, err := Children(id, 8); err == nil {
		t.Error("Children at same resolution must fail")
	}
	if _, err := Children(id, 7); err == nil {
		t.Error("Children at coarser resolution must fail")
	}
}

func TestChildrenSpanCap(t *testing.T) {
	id, _ := CellAt(51.5, -0.12, 0)

	if _, err := Children(id, maxChildSpan+1); err == nil {
		t.Error("expected error for span beyond the cap")
	}
	if _, err := Children(id, 15); err == nil {
		t.Error("expected error for full-depth span")
	}

	children, err := Children(id, maxChildSpan)
	if err != nil {
		t.Fatalf("span at the cap must work: %v", err)
	}
	if len(children) == 0 {
		t.Fatal("capped span returned no children")
	}
}

func TestBoundaryHasSixCorners(t *testing.T) {
	id, _ := CellAt(51.5074, -0.1278, 8)
	boundary, err := Boundary(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(boundary) != 6 {
		t.Fatalf("boundary has %d corners, want 6", len(boundary))
	}
	lat, lng, _ := Center(id)
	for _, corner := range boundary {
		if math.Abs(corner[0]-lat) > 1 || math.Abs(corner[1]-lng) > 1 {
			t.Errorf("corner %v implausibly far from center (%f, %f)", corner, lat, lng)
		}
	}
}

func TestDisplayNameTiers(t *testing.T) {
	cases := []struct {
		res  int
		want string
	}{
		{4, "District Chat"},
		{7, "District Chat"},
		{8, "Neighborhood Chat"},
		{9, "Local Chat"},
		{15, "Local Chat"},
	}
	for _, c := range cases {
		id, err := CellAt(51.5, -0.12, c.res)
		if err != nil {
			t.Fatal(err)
		}
		if got := DisplayName(id); got != c.want {
			t.Errorf("res %d: DisplayName = %q, want %q", c.res, got, c.want)
		}
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// London to Paris is roughly 344 km.
	d := haversineKm(51.5074, -0.1278, 48.8566, 2.3522)
	if d < 330 || d > 360 {
		t.Errorf("London-Paris distance = %f km, want ~344", d)
	}
}

func TestCompassDirections(t *testing.T) {
	cases := []struct {
		lat2, lng2 float64
		want       string
	}{
		{1, 0, "N"},
		{-1, 0, "S"},
		{0, 1, "E"},
		{0, -1, "W"},
		{1, 1, "NE"},
	}
	for _, c := range cases {
		if got := compass(0, 0, c.lat2, c.lng2); got != c.want {
			t.Errorf("compass to (%f, %f) = %q, want %q", c.lat2, c.lng2, got, c.want)
		}
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, -42, 1 << 26, -(1 << 26)} {
		if got := unzigzag(zigzag(n)); got != n {
			t.Errorf("zigzag round trip %d -> %d", n, got)
		}
	}
}

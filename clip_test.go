// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func TestNewMask_Invalid(t *testing.T) {
	tests := []struct {
		name string
		g    orb.Geometry
	}{
		{"nil", nil},
		{"point", orb.Point{1, 2}},
		{"line", orb.LineString{{0, 0}, {1, 1}}},
		{"empty bound", orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 5}}},
		{"empty polygon", orb.Polygon{}},
		{"flat polygon", orb.Polygon{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMask(tt.g); !errors.Is(err, ErrInput) {
				t.Errorf("NewMask(%v) error = %v, want %v", tt.g, err, ErrInput)
			}
		})
	}
}

func TestMask_Clip(t *testing.T) {
	region := Region{SeedID: "r", Geometry: orb.MultiPolygon{square(0, 0, 10)}}
	tests := []struct {
		name      string
		mask      orb.Geometry
		wantParts int
		wantArea  float64
		wantHoles int
	}{
		{"bound contains region", orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}, 1, 100, 0},
		{"bound overlaps region", orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{15, 15}}, 1, 25, 0},
		{"bound misses region", orb.Bound{Min: orb.Point{20, 20}, Max: orb.Point{30, 30}}, 0, 0, 0},
		{"polygon overlaps region", square(-5, -5, 10), 1, 25, 0},
		{"holed polygon", orb.Polygon{
			square(-1, -1, 12)[0],
			reversed(square(4, 4, 2)[0]),
		}, 1, 96, 1},
		{"two parts", orb.MultiPolygon{square(-1, -1, 3), square(8, 8, 3)}, 2, 8, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMask(tt.mask)
			if err != nil {
				t.Fatalf("NewMask(...) error = %v, want nil", err)
			}
			got, err := m.Clip(region)
			if err != nil {
				t.Fatalf("m.Clip(...) error = %v, want nil", err)
			}
			if got.SeedID != "r" {
				t.Errorf("got.SeedID = %q, want %q", got.SeedID, "r")
			}
			if got.Geometry == nil {
				t.Fatalf("got.Geometry = nil, want non-nil")
			}
			if len(got.Geometry) != tt.wantParts {
				t.Fatalf("len(got.Geometry) = %v, want %v: %v", len(got.Geometry), tt.wantParts, got.Geometry)
			}
			if a := planar.Area(got.Geometry); math.Abs(a-tt.wantArea) > 1e-9 {
				t.Errorf("area = %v, want %v", a, tt.wantArea)
			}
			holes := 0
			for _, p := range got.Geometry {
				holes += len(p) - 1
			}
			if holes != tt.wantHoles {
				t.Errorf("holes = %v, want %v", holes, tt.wantHoles)
			}
			verifyRegion(t, got)
		})
	}
}

// A single mask part can cut a region into several polygons.
func TestMask_ClipSplitsRegion(t *testing.T) {
	u := orb.Polygon{{{-1, -1}, {11, -1}, {11, 11}, {7, 11}, {7, 2}, {3, 2}, {3, 11}, {-1, 11}, {-1, -1}}}
	m, err := NewMask(u)
	if err != nil {
		t.Fatalf("NewMask(...) error = %v, want nil", err)
	}
	strip := orb.Polygon{{{0, 5}, {10, 5}, {10, 6}, {0, 6}, {0, 5}}}
	got, err := m.Clip(Region{SeedID: "r", Geometry: orb.MultiPolygon{strip}})
	if err != nil {
		t.Fatalf("m.Clip(...) error = %v, want nil", err)
	}
	if len(got.Geometry) != 2 {
		t.Fatalf("len(got.Geometry) = %v, want 2: %v", len(got.Geometry), got.Geometry)
	}
	if a := planar.Area(got.Geometry); math.Abs(a-6) > 1e-9 {
		t.Errorf("area = %v, want 6", a)
	}
	for _, p := range []orb.Point{{1.5, 5.5}, {8.5, 5.5}} {
		if !planar.MultiPolygonContains(got.Geometry, p) {
			t.Errorf("clipped region does not contain %v", p)
		}
	}
	if planar.MultiPolygonContains(got.Geometry, orb.Point{5, 5.5}) {
		t.Errorf("clipped region contains the gap between the arms")
	}
	verifyRegion(t, got)
}

func TestMask_ClipDoesNotModifyRegion(t *testing.T) {
	region := Region{SeedID: "r", Geometry: orb.MultiPolygon{square(0, 0, 10)}}
	m := WorldMask()
	got, err := m.Clip(region)
	if err != nil {
		t.Fatalf("m.Clip(...) error = %v, want nil", err)
	}
	got.Geometry[0][0][0] = orb.Point{99, 99}
	if region.Geometry[0][0][0] != (orb.Point{0, 0}) {
		t.Errorf("Clip shares storage with its input")
	}
}

func TestMaskFromSeeds(t *testing.T) {
	seeds := []SeedInput{{ID: "a", Lat: 10, Lng: 20}, {ID: "b", Lat: -5, Lng: 30}, {ID: "c", Lat: 88, Lng: 179}}
	m, err := MaskFromSeeds(seeds, 3)
	if err != nil {
		t.Fatalf("MaskFromSeeds(...) error = %v, want nil", err)
	}
	want := orb.Bound{Min: orb.Point{17, -8}, Max: orb.Point{180, 90}}
	if got := m.Bound(); !got.Equal(want) {
		t.Errorf("m.Bound() = %v, want %v", got, want)
	}

	if _, err := MaskFromSeeds(nil, 1); !errors.Is(err, ErrInput) {
		t.Errorf("MaskFromSeeds(nil, 1) error = %v, want %v", err, ErrInput)
	}
	if _, err := MaskFromSeeds(seeds, -1); !errors.Is(err, ErrInput) {
		t.Errorf("MaskFromSeeds(..., -1) error = %v, want %v", err, ErrInput)
	}
}

// square returns a CCW square polygon with lower-left corner (x, y).
func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func reversed(r orb.Ring) orb.Ring {
	r = r.Clone()
	r.Reverse()
	return r
}

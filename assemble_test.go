// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/golang/geo/s2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func TestAssembleCell(t *testing.T) {
	tests := []struct {
		name      string
		vertices  [][2]float64 // lat, lng
		seed      [2]float64
		wantParts int
		wantArea  float64
		inside    []orb.Point
		outside   []orb.Point
	}{
		{
			name:      "simple square",
			vertices:  [][2]float64{{9, 19}, {9, 21}, {11, 21}, {11, 19}},
			seed:      [2]float64{10, 20},
			wantParts: 1,
			wantArea:  4,
			inside:    []orb.Point{{20, 10}},
			outside:   []orb.Point{{22, 10}},
		},
		{
			name:      "antimeridian",
			vertices:  [][2]float64{{-1, 179}, {-1, -179}, {1, -179}, {1, 179}},
			seed:      [2]float64{0, 180},
			wantParts: 2,
			wantArea:  4,
			inside:    []orb.Point{{179.5, 0}, {-179.5, 0}},
			outside:   []orb.Point{{0, 0}},
		},
		{
			name:      "north pole inside",
			vertices:  [][2]float64{{80, 0}, {80, 90}, {80, 180}, {80, -90}},
			seed:      [2]float64{90, 0},
			wantParts: 2,
			wantArea:  3600,
			inside:    []orb.Point{{45, 85}, {-135, 85}},
			outside:   []orb.Point{{45, 75}},
		},
		{
			name:      "south pole inside",
			vertices:  [][2]float64{{-80, 0}, {-80, -90}, {-80, 180}, {-80, 90}},
			seed:      [2]float64{-85, 10},
			wantParts: 2,
			wantArea:  3600,
			inside:    []orb.Point{{10, -85}, {-170, -89}},
			outside:   []orb.Point{{10, -75}},
		},
		{
			name:      "lune with pole vertices",
			vertices:  [][2]float64{{0, 45}, {90, 0}, {0, -45}, {-90, 0}},
			seed:      [2]float64{0, 0},
			wantParts: 1,
			wantArea:  90 * 180,
			inside:    []orb.Point{{0, 0}, {40, 80}, {-40, -80}},
			outside:   []orb.Point{{50, 0}},
		},
		{
			name:      "pole on an edge",
			vertices:  [][2]float64{{70, 0}, {70, 90}, {70, 180}, {80, 180}, {80, 0}},
			seed:      [2]float64{85, 90},
			wantParts: 1,
			wantArea:  180 * 20,
			inside:    []orb.Point{{90, 85}, {10, 89}},
			outside:   []orb.Point{{-90, 85}},
		},
		{
			name:      "both poles inside",
			vertices:  [][2]float64{{9, 19}, {11, 19}, {11, 21}, {9, 21}},
			seed:      [2]float64{-40, -100},
			wantParts: 2,
			wantArea:  360*180 - 4,
			inside:    []orb.Point{{0, 89}, {0, -89}, {-100, -40}, {20, 12}},
			outside:   []orb.Point{{20, 10}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := RefinedCell{SeedID: "s", Vertices: pointsLL(tt.vertices)}
			got, err := AssembleCell(c, mustSeed(t, tt.seed))
			if err != nil {
				t.Fatalf("AssembleCell(...) error = %v, want nil", err)
			}
			if got.SeedID != "s" {
				t.Errorf("got.SeedID = %q, want %q", got.SeedID, "s")
			}
			if len(got.Geometry) != tt.wantParts {
				t.Errorf("len(got.Geometry) = %v, want %v: %v", len(got.Geometry), tt.wantParts, got.Geometry)
			}
			if a := planar.Area(got.Geometry); math.Abs(a-tt.wantArea) > 1e-6 {
				t.Errorf("area = %v, want %v", a, tt.wantArea)
			}
			verifyRegion(t, got)
			for _, p := range tt.inside {
				if !planar.MultiPolygonContains(got.Geometry, p) {
					t.Errorf("region does not contain %v", p)
				}
			}
			for _, p := range tt.outside {
				if planar.MultiPolygonContains(got.Geometry, p) {
					t.Errorf("region contains %v", p)
				}
			}
		})
	}
}

func TestAssembleCell_Errors(t *testing.T) {
	tests := []struct {
		name     string
		vertices [][2]float64
		seed     [2]float64
	}{
		{"too few vertices", [][2]float64{{0, 0}, {0, 1}}, [2]float64{0, 0.5}},
		{"seed outside", [][2]float64{{9, 19}, {9, 21}, {11, 21}, {11, 19}}, [2]float64{30, 30}},
		{"winds twice", [][2]float64{
			{80, 0}, {80, 90}, {80, 180}, {80, -90},
			{81, 0}, {81, 90}, {81, 180}, {81, -90},
		}, [2]float64{90, 0}},
		{"only poles", [][2]float64{{90, 0}, {-90, 0}, {90, 0}}, [2]float64{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := RefinedCell{SeedID: "s", Vertices: pointsLL(tt.vertices)}
			if _, err := AssembleCell(c, mustSeed(t, tt.seed)); !errors.Is(err, ErrAssembly) {
				t.Errorf("AssembleCell(...) error = %v, want %v", err, ErrAssembly)
			}
		})
	}
}

// The top edge runs along lat 80 in lng/lat but bulges to lat 81.3 on the
// sphere, and the bottom one to lat 72.5, so the seed is only inside once the
// edges follow their arcs.
func TestAssembleCell_HighLatitudeSeed(t *testing.T) {
	c := RefinedCell{SeedID: "s", Vertices: pointsLL([][2]float64{{70, 0}, {70, 60}, {80, 60}, {80, 0}})}
	seed := mustSeed(t, [2]float64{80.5, 30})

	if _, err := assembleCell(c, seed, 0); !errors.Is(err, errSeedOutside) {
		t.Fatalf("assembleCell(..., 0) error = %v, want %v", err, errSeedOutside)
	}
	got, err := AssembleCell(c, seed)
	if err != nil {
		t.Fatalf("AssembleCell(...) error = %v, want nil", err)
	}
	verifyRegion(t, got)
	for _, p := range []orb.Point{{30, 80.5}, {30, 81.2}, {30, 72.8}} {
		if !planar.MultiPolygonContains(got.Geometry, p) {
			t.Errorf("region does not contain %v", p)
		}
	}
	for _, p := range []orb.Point{{30, 81.5}, {30, 72.3}, {61, 75}} {
		if planar.MultiPolygonContains(got.Geometry, p) {
			t.Errorf("region contains %v", p)
		}
	}
}

func TestDensifyPlanar(t *testing.T) {
	verts := pointsLL([][2]float64{{70, 0}, {70, 60}, {80, 60}, {90, 0}, {80, -170}, {80, 170}})
	const tol = 1e-4
	got := densifyPlanar(verts, tol)

	k := 0
	for i, a := range verts {
		b := verts[(i+1)%len(verts)]
		if got[k] != a {
			t.Fatalf("got[%d] = %v, want vertex %d", k, got[k], i)
		}
		normal := a.Cross(b.Vector).Normalize()
		prev := a
		for k++; k < len(got) && got[k] != b; k++ {
			if d := math.Abs(got[k].Dot(normal)); d > 1e-12 {
				t.Errorf("inserted point %d is %v off the great circle", k, d)
			}
			prev = got[k]
		}
		if isPole(a) || isPole(b) {
			continue
		}
		if d := planarDeviation(prev, b, s2.Interpolate(0.5, prev, b)); d > tol {
			t.Errorf("edge %d ends with a segment %v° off its arc, want <= %v", i, d, tol)
		}
	}
	if len(got) <= len(verts) {
		t.Fatalf("len(densifyPlanar(...)) = %v, want more than %v", len(got), len(verts))
	}

	// Walking the ring backwards yields the same points.
	rev := slices.Clone(verts)
	slices.Reverse(rev)
	back := densifyPlanar(rev, tol)
	slices.Reverse(back)
	m := slices.Index(back, verts[0])
	if m < 0 || !slices.Equal(got, slices.Concat(back[m:], back[:m])) {
		t.Errorf("densifyPlanar(reversed) differs from densifyPlanar(...)")
	}
}

func TestSplitAntimeridian(t *testing.T) {
	tests := []struct {
		name      string
		ring      orb.Ring
		wantParts int
	}{
		{
			name:      "on the antimeridian",
			ring:      orb.Ring{{-60, 19.47}, {-120, 34.9}, {-180, 19.47}, {-180, -90}, {-60, -90}},
			wantParts: 1,
		},
		{
			name:      "rounded past the antimeridian",
			ring:      orb.Ring{{-60, 19.47}, {-120, 34.9}, {-180.00000000000003, 19.47}, {-180.00000000000003, -90}, {-60.00000000000003, -90}},
			wantParts: 1,
		},
		{
			name:      "rounded short of the next antimeridian",
			ring:      orb.Ring{{179.99999999999997, 0}, {200, 0}, {200, 10}, {179.99999999999997, 10}},
			wantParts: 1,
		},
		{
			name:      "across the antimeridian",
			ring:      orb.Ring{{170, 0}, {190, 0}, {190, 10}, {170, 10}},
			wantParts: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := orb.Polygon{closeRing(tt.ring)}
			got := splitAntimeridian(p)
			if len(got) != tt.wantParts {
				t.Fatalf("len(splitAntimeridian(...)) = %v, want %v: %v", len(got), tt.wantParts, got)
			}
			verifyRegion(t, Region{Geometry: orb.MultiPolygon(got)})
			if a, want := planar.Area(orb.MultiPolygon(got)), planar.Area(p); math.Abs(a-want) > 1e-6 {
				t.Errorf("area = %v, want %v", a, want)
			}
		})
	}
}

func TestSnapAntimeridian(t *testing.T) {
	p := orb.Polygon{{{-180.00000000000003, 0}, {179.99999999999997, 1}, {540.0000000000001, 2}, {179.9, 3}, {0, 4}}}
	want := orb.Polygon{{{-180, 0}, {180, 1}, {540, 2}, {179.9, 3}, {0, 4}}}
	got := snapAntimeridian(p)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapAntimeridian(...) mismatch (-want +got):\n%s", diff)
	}
	if p[0][0][0] == -180 {
		t.Errorf("snapAntimeridian(...) modified its input")
	}
}

func TestRingsOf(t *testing.T) {
	a := toGeomPolygon(orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}})
	b := toGeomPolygon(orb.Polygon{{{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1}}})

	rings := ringsOf(a.Intersection(b))
	if len(rings) != 1 || !rings[0].Closed() {
		t.Fatalf("ringsOf(intersection) = %v, want one closed ring", rings)
	}
	if got := math.Abs(planar.Area(rings[0])); math.Abs(got-1) > 1e-9 {
		t.Errorf("intersection area = %v, want 1", got)
	}
	if got := nestRings(ringsOf(a.Difference(b))); len(got) != 1 || math.Abs(planar.Area(got[0])-3) > 1e-9 {
		t.Errorf("nestRings(ringsOf(difference)) = %v, want one polygon of area 3", got)
	}
	if got := ringsOf(nil); got != nil {
		t.Errorf("ringsOf(nil) = %v, want nil", got)
	}
}

func TestUnwrapRing(t *testing.T) {
	tests := []struct {
		name        string
		verts       []ringVertex
		want        orb.Ring
		wantWinding float64
	}{
		{
			"across antimeridian",
			[]ringVertex{{lng: 170, lat: 0}, {lng: -170, lat: 0}, {lng: -170, lat: 10}},
			orb.Ring{{170, 0}, {190, 0}, {190, 10}},
			0,
		},
		{
			"starts after pole",
			[]ringVertex{{lat: -90, pole: -1}, {lng: 10, lat: -80}, {lng: -10, lat: -80}},
			orb.Ring{{10, -80}, {-10, -80}, {-10, -90}, {10, -90}},
			0,
		},
		{
			"around north pole",
			[]ringVertex{{lng: 0, lat: 80}, {lng: 120, lat: 80}, {lng: -120, lat: 80}},
			orb.Ring{{0, 80}, {120, 80}, {240, 80}},
			360,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, winding, err := unwrapRing(tt.verts)
			if err != nil {
				t.Fatalf("unwrapRing(...) error = %v, want nil", err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("unwrapRing(...) mismatch (-want +got):\n%s", diff)
			}
			if math.Abs(winding-tt.wantWinding) > 1e-9 {
				t.Errorf("unwrapRing(...) winding = %v, want %v", winding, tt.wantWinding)
			}
		})
	}
}

func TestInsertPoles(t *testing.T) {
	verts := pointsLL([][2]float64{{70, 0}, {70, 90}, {70, 180}, {80, 180}, {80, 0}})
	got := insertPoles(verts)
	if len(got) != len(verts)+1 {
		t.Fatalf("len(insertPoles(...)) = %v, want %v", len(got), len(verts)+1)
	}
	if got[4] != northPole {
		t.Errorf("insertPoles(...)[4] = %v, want north pole", got[4])
	}
}

func TestNestRings(t *testing.T) {
	outer := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}} // CW
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}      // CCW
	island := orb.Ring{{4.5, 4.5}, {5.5, 4.5}, {5.5, 5.5}, {4.5, 5.5}, {4.5, 4.5}}
	other := orb.Ring{{20, 0}, {21, 0}, {21, 1}, {20, 1}}

	got := nestRings([]orb.Ring{hole, island, other, outer})
	if len(got) != 3 {
		t.Fatalf("len(nestRings(...)) = %v, want 3", len(got))
	}
	if len(got[0]) != 2 {
		t.Fatalf("len(got[0]) = %v, want outer ring and hole", len(got[0]))
	}
	if got[0][0].Orientation() != orb.CCW || got[0][1].Orientation() != orb.CW {
		t.Errorf("nestRings(...) orientations = %v, %v, want CCW, CW",
			got[0][0].Orientation(), got[0][1].Orientation())
	}
	if a := planar.Area(orb.MultiPolygon(got)); math.Abs(a-(100-4+1+1)) > 1e-9 {
		t.Errorf("area = %v, want %v", a, 98.0)
	}
}

// verifyRegion checks ring closure, orientation and the coordinate range.
func verifyRegion(t *testing.T, r Region) {
	t.Helper()
	for i, p := range r.Geometry {
		for j, ring := range p {
			if len(ring) < 4 || !ring.Closed() {
				t.Errorf("polygon %d ring %d is not closed: %v", i, j, ring)
			}
			want := orb.CCW
			if j > 0 {
				want = orb.CW
			}
			if got := ring.Orientation(); got != want {
				t.Errorf("polygon %d ring %d orientation = %v, want %v", i, j, got, want)
			}
			for _, pt := range ring {
				if pt[0] < -180-1e-9 || pt[0] > 180+1e-9 || pt[1] < -90-1e-9 || pt[1] > 90+1e-9 {
					t.Errorf("polygon %d ring %d point %v out of range", i, j, pt)
				}
			}
		}
	}
}

func pointsLL(lls [][2]float64) s2.PointVector {
	pts := make(s2.PointVector, len(lls))
	for i, ll := range lls {
		pts[i] = pointLL(ll[0], ll[1])
	}
	return pts
}

func mustSeed(t *testing.T, ll [2]float64) Seed {
	t.Helper()
	seeds, err := PrepareSeeds([]SeedInput{{ID: "s", Lat: ll[0], Lng: ll[1]}, {ID: "other", Lat: -ll[0], Lng: ll[1] + 90}})
	if err != nil {
		t.Fatalf("PrepareSeeds(...) error = %v, want nil", err)
	}
	return seeds[0]
}

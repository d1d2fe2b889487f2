// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"
)

// maskPart is one polygon of a Mask, indexed by its bounds.
type maskPart struct {
	geom.Polygon
	rect *geom.Bounds // set when the part is an axis-aligned rectangle
}

// Mask is an area of interest that regions are clipped to. It is read-only
// after construction and safe for concurrent use.
type Mask struct {
	tree   *rtree.Rtree
	parts  int
	bounds orb.Bound
}

// NewMask prepares g for clipping. g must be an orb.Polygon, orb.MultiPolygon
// or orb.Bound in WGS84 degrees. Overlapping parts of a MultiPolygon are
// clipped against independently.
func NewMask(g orb.Geometry) (*Mask, error) {
	var polys []orb.Polygon
	var rects []orb.Bound
	switch g := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		polys = g
	case orb.Bound:
		rects = []orb.Bound{g}
	case nil:
		return nil, fmt.Errorf("%w: nil mask", ErrInput)
	default:
		return nil, fmt.Errorf("%w: unsupported mask geometry %s", ErrInput, g.GeoJSONType())
	}

	m := &Mask{tree: rtree.NewTree(25, 50)}
	first := true
	add := func(part *maskPart, b orb.Bound) {
		m.tree.Insert(part)
		m.parts++
		if first {
			m.bounds, first = b, false
			return
		}
		m.bounds = m.bounds.Union(b)
	}

	for _, r := range rects {
		if !validBound(r) {
			return nil, fmt.Errorf("%w: empty mask bound %v", ErrInput, r)
		}
		gb := &geom.Bounds{
			Min: geom.Point{X: r.Min[0], Y: r.Min[1]},
			Max: geom.Point{X: r.Max[0], Y: r.Max[1]},
		}
		add(&maskPart{Polygon: gb.Polygons()[0], rect: gb}, r)
	}
	for _, p := range polys {
		if len(p) == 0 || len(p[0]) < 3 {
			continue
		}
		gp := toGeomPolygon(p)
		if gp.Area() == 0 {
			continue
		}
		add(&maskPart{Polygon: gp}, p.Bound())
	}
	if m.parts == 0 {
		return nil, fmt.Errorf("%w: mask has no area", ErrInput)
	}
	return m, nil
}

// WorldMask returns a mask covering [-180, 180] x [-90, 90].
func WorldMask() *Mask {
	m, _ := NewMask(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}})
	return m
}

// MaskFromSeeds returns the bounding box of seeds grown by padDegrees on every
// side and limited to the valid coordinate range.
func MaskFromSeeds(seeds []SeedInput, padDegrees float64) (*Mask, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: no seeds", ErrInput)
	}
	if !(padDegrees >= 0) || math.IsInf(padDegrees, 1) {
		return nil, fmt.Errorf("%w: padding must be non-negative and finite, got %v", ErrInput, padDegrees)
	}
	b := orb.Point{seeds[0].Lng, seeds[0].Lat}.Bound()
	for _, s := range seeds[1:] {
		b = b.Extend(orb.Point{s.Lng, s.Lat})
	}
	b = b.Pad(padDegrees)
	b.Min = orb.Point{max(b.Min[0], -180), max(b.Min[1], -90)}
	b.Max = orb.Point{min(b.Max[0], 180), min(b.Max[1], 90)}
	return NewMask(b)
}

// Bound returns the bounding box of the mask.
func (m *Mask) Bound() orb.Bound {
	return m.bounds
}

// Clip intersects r with the mask. A region that misses the mask entirely
// yields an empty Geometry, not an error. Holes of the mask become holes of
// the clipped polygons.
func (m *Mask) Clip(r Region) (Region, error) {
	out := Region{SeedID: r.SeedID, Geometry: orb.MultiPolygon{}}
	for _, p := range r.Geometry {
		if len(p) == 0 {
			continue
		}
		gp := toGeomPolygon(p)
		pb := gp.Bounds()
		for _, cand := range m.tree.SearchIntersect(pb) {
			part, ok := cand.(*maskPart)
			if !ok {
				return Region{}, fmt.Errorf("unexpected mask index entry %T", cand)
			}
			if part.rect != nil && boundsWithin(pb, part.rect) {
				out.Geometry = append(out.Geometry, p.Clone())
				continue
			}
			rings := ringsOf(part.Intersection(gp))
			if len(rings) == 0 {
				continue
			}
			out.Geometry = append(out.Geometry, nestRings(rings)...)
		}
	}
	return out, nil
}

func validBound(b orb.Bound) bool {
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Max[0] > b.Min[0] && b.Max[1] > b.Min[1]
}

func boundsWithin(inner, outer *geom.Bounds) bool {
	return inner.Min.X >= outer.Min.X && inner.Min.Y >= outer.Min.Y &&
		inner.Max.X <= outer.Max.X && inner.Max.Y <= outer.Max.Y
}

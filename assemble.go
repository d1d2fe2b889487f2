// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ctessum/geom"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	// poleTolDegrees is how close to ±90 a vertex latitude must be to count
	// as the pole.
	poleTolDegrees = 1e-9

	// onEdgeTol bounds |p·n̂| for a pole p to lie on the great circle with
	// unit normal n̂.
	onEdgeTol = 1e-12

	// windingTolDegrees is the tolerance on the net longitude swept by a ring.
	windingTolDegrees = 1e-6

	// minRingArea drops slivers (in square degrees) left over by clipping.
	minRingArea = 1e-12

	// antimeridianSnap is how close to ±180 (mod 360) an unwrapped longitude
	// is moved onto the antimeridian before splitting.
	antimeridianSnap = 1e-9

	// maxSplitDepth bounds the halvings of a single edge by densifyPlanar.
	maxSplitDepth = 16
)

// planarTolerances are the bounds, in degrees, on how far a straight lng/lat
// edge may stray from its great-circle arc, tried in order until the seed
// falls inside its polygons. Zero keeps the edges as refined.
var planarTolerances = []float64{0, 1e-2, 1e-4, 1e-6}

var errSeedOutside = errors.New("assembled polygons do not contain the seed")

var (
	northPole = s2.PointFromCoords(0, 0, 1)
	southPole = s2.PointFromCoords(0, 0, -1)
)

// Region is the geographic polygon of one seed in WGS84 degrees, [lng, lat]
// ordered. Outer rings are CCW and closed. Geometry is empty when the region
// was clipped away entirely.
type Region struct {
	SeedID   string
	Geometry orb.MultiPolygon
}

// ringVertex is a cell vertex in degrees. pole is +1 or -1 for the north or
// south pole, whose longitude is undefined.
type ringVertex struct {
	lng, lat float64
	pole     int
}

// AssembleCell converts c into WGS84 polygons.
//
// A pole on the boundary of c is inserted as a vertex and expanded into a
// segment of the pole line (lat = ±90) between the longitudes of its
// neighbors. Longitudes are unwrapped along the ring; a cell whose boundary
// winds once around a pole is closed along that pole's line, and a cell that
// contains both poles is cut open at the longitude of its complement. The
// result is split at the antimeridian into polygons within [-180, 180].
//
// Straight lng/lat edges cut corners off the spherical cell, most at high
// latitude. If the seed ends up outside, the edges are subdivided along their
// arcs with decreasing tolerance. It fails with ErrAssembly if the polygons
// still do not contain the seed.
func AssembleCell(c RefinedCell, seed Seed) (Region, error) {
	var (
		reg Region
		err error
	)
	for _, tol := range planarTolerances {
		reg, err = assembleCell(c, seed, tol)
		if !errors.Is(err, errSeedOutside) {
			break
		}
	}
	return reg, err
}

// assembleCell assembles c with edges subdivided until they are within tol
// degrees of their arcs. A zero tol keeps the edges.
func assembleCell(c RefinedCell, seed Seed, tol float64) (Region, error) {
	if len(c.Vertices) < 3 {
		return Region{}, fmt.Errorf("%w: seed %q: cell has %d vertices", ErrAssembly, c.SeedID, len(c.Vertices))
	}

	pts := insertPoles(c.Vertices)
	if tol > 0 {
		pts = densifyPlanar(pts, tol)
	}
	verts := ringVertices(pts)
	ring, winding, err := unwrapRing(verts)
	if err != nil {
		return Region{}, fmt.Errorf("%w: seed %q: %w", ErrAssembly, c.SeedID, err)
	}

	var pieces []orb.Polygon
	x0, y0 := ring[0][0], ring[0][1]
	switch {
	case math.Abs(winding) < windingTolDegrees:
		ring = closeRing(ring)
		if ring.Orientation() == orb.CCW {
			pieces = []orb.Polygon{{dedupRing(ring)}}
			break
		}
		// The boundary runs clockwise: the cell is everything but the ring.
		pieces, err = complementPieces(ring)
		if err != nil {
			return Region{}, fmt.Errorf("%w: seed %q: %w", ErrAssembly, c.SeedID, err)
		}
	case math.Abs(winding-360) < windingTolDegrees:
		ring = append(ring, orb.Point{x0 + 360, y0}, orb.Point{x0 + 360, 90}, orb.Point{x0, 90})
		pieces = []orb.Polygon{{dedupRing(closeRing(ring))}}
	case math.Abs(winding+360) < windingTolDegrees:
		ring = append(ring, orb.Point{x0 - 360, y0}, orb.Point{x0 - 360, -90}, orb.Point{x0, -90})
		pieces = []orb.Polygon{{dedupRing(closeRing(ring))}}
	default:
		return Region{}, fmt.Errorf("%w: seed %q: boundary winds %.6f° around the pole axis",
			ErrAssembly, c.SeedID, winding)
	}

	var mp orb.MultiPolygon
	for _, p := range pieces {
		if len(p) == 0 || len(p[0]) < 4 {
			continue
		}
		if p[0].Orientation() != orb.CCW {
			return Region{}, fmt.Errorf("%w: seed %q: ring is not counter-clockwise", ErrAssembly, c.SeedID)
		}
		mp = append(mp, splitAntimeridian(p)...)
	}

	pt := orb.Point{seed.LatLng.Lng.Degrees(), seed.LatLng.Lat.Degrees()}
	if len(mp) == 0 || !planar.MultiPolygonContains(mp, pt) {
		return Region{}, fmt.Errorf("%w: seed %q: %w", ErrAssembly, c.SeedID, errSeedOutside)
	}
	return Region{SeedID: c.SeedID, Geometry: mp}, nil
}

// insertPoles returns verts with every pole that lies strictly inside an edge
// inserted as an explicit vertex.
func insertPoles(verts s2.PointVector) s2.PointVector {
	out := make(s2.PointVector, 0, len(verts)+2)
	for i, a := range verts {
		b := verts[(i+1)%len(verts)]
		out = append(out, a)

		n := a.Cross(b.Vector)
		if n.Norm2() == 0 {
			continue
		}
		n = n.Normalize()
		for _, p := range []s2.Point{northPole, southPole} {
			if math.Abs(p.Dot(n)) > onEdgeTol || isPole(a) || isPole(b) {
				continue
			}
			if a.Cross(p.Vector).Dot(n) > 0 && p.Cross(b.Vector).Dot(n) > 0 {
				out = append(out, p)
			}
		}
	}
	return out
}

// densifyPlanar returns verts with points of the great-circle arcs inserted
// until every edge, drawn straight in lng/lat, stays within tol degrees of its
// arc. Edges touching a pole are meridians and are kept. An edge is split the
// same way whichever cell walks it, so neighbors keep a common boundary.
func densifyPlanar(verts s2.PointVector, tol float64) s2.PointVector {
	out := make(s2.PointVector, 0, len(verts))
	var mids s2.PointVector
	for i, a := range verts {
		b := verts[(i+1)%len(verts)]
		out = append(out, a)
		if isPole(a) || isPole(b) {
			continue
		}

		mids = mids[:0]
		if pointLess(a, b) {
			mids = splitArc(mids, a, b, tol, 0)
		} else {
			mids = splitArc(mids, b, a, tol, 0)
			slices.Reverse(mids)
		}
		out = append(out, mids...)
	}
	return out
}

// splitArc appends to dst the interior points of the arc from a to b, in
// order, obtained by halving it while its planar edge deviates by more than
// tol.
func splitArc(dst s2.PointVector, a, b s2.Point, tol float64, depth int) s2.PointVector {
	if depth >= maxSplitDepth || a.Distance(b) == 0 {
		return dst
	}
	m := s2.Interpolate(0.5, a, b)
	if planarDeviation(a, b, m) <= tol {
		return dst
	}
	dst = splitArc(dst, a, m, tol, depth+1)
	dst = append(dst, m)
	return splitArc(dst, m, b, tol, depth+1)
}

// planarDeviation is the distance in degrees between the arc midpoint m of a
// and b and the midpoint of the straight lng/lat edge between them.
func planarDeviation(a, b, m s2.Point) float64 {
	la, lb, lm := s2.LatLngFromPoint(a), s2.LatLngFromPoint(b), s2.LatLngFromPoint(m)
	dLng := wrap180(lb.Lng.Degrees() - la.Lng.Degrees())
	x := wrap180(lm.Lng.Degrees() - (la.Lng.Degrees() + dLng/2))
	y := lm.Lat.Degrees() - (la.Lat.Degrees()+lb.Lat.Degrees())/2
	return math.Hypot(x, y)
}

// pointLess orders points lexicographically by coordinates.
func pointLess(a, b s2.Point) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

func isPole(p s2.Point) bool {
	return math.Abs(s2.LatLngFromPoint(p).Lat.Degrees()) >= 90-poleTolDegrees
}

func ringVertices(verts s2.PointVector) []ringVertex {
	out := make([]ringVertex, len(verts))
	for i, p := range verts {
		ll := s2.LatLngFromPoint(p)
		lat := ll.Lat.Degrees()
		switch {
		case lat >= 90-poleTolDegrees:
			out[i] = ringVertex{lat: 90, pole: 1}
		case lat <= -90+poleTolDegrees:
			out[i] = ringVertex{lat: -90, pole: -1}
		default:
			out[i] = ringVertex{lng: ll.Lng.Degrees(), lat: lat}
		}
	}
	return out
}

// unwrapRing lays verts out in the plane with continuous longitudes, starting
// at the first vertex that is not a pole. It returns the open ring and the
// net longitude swept on the way back to the start.
//
// The south pole line is walked eastwards and the north pole line westwards,
// which keeps the interior on the left.
func unwrapRing(verts []ringVertex) (orb.Ring, float64, error) {
	n := len(verts)
	start := -1
	for i, v := range verts {
		if v.pole == 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, 0, fmt.Errorf("every vertex is a pole")
	}

	first := verts[start]
	x, prev := first.lng, first.lng
	ring := make(orb.Ring, 0, n+4)
	ring = append(ring, orb.Point{x, first.lat})
	for k := 1; k <= n; k++ {
		v := verts[(start+k)%n]
		if v.pole == 0 {
			x += wrap180(v.lng - prev)
			prev = v.lng
			if k < n {
				ring = append(ring, orb.Point{x, v.lat})
			}
			continue
		}

		next := verts[(start+k+1)%n]
		if next.pole != 0 {
			return nil, 0, fmt.Errorf("edge between both poles")
		}
		var d float64
		if v.pole < 0 {
			d = mod360(next.lng - prev)
		} else {
			d = -mod360(prev - next.lng)
		}
		ring = append(ring, orb.Point{x, v.lat}, orb.Point{x + d, v.lat})
		x += d
		prev = next.lng
		k++
		if k < n {
			ring = append(ring, orb.Point{x, next.lat})
		}
	}
	return ring, x - first.lng, nil
}

// complementPieces returns the region outside the clockwise ring hole, cut
// open along the vertical line through the middle of hole so that the result
// has no holes.
func complementPieces(hole orb.Ring) ([]orb.Polygon, error) {
	b := hole.Bound()
	if b.Right()-b.Left() >= 360 {
		return nil, fmt.Errorf("complement ring spans %.6f° of longitude", b.Right()-b.Left())
	}
	cx := (b.Left() + b.Right()) / 2

	h := hole.Clone()
	h.Reverse()
	shifted := shiftRing(h, 360)

	window := &geom.Bounds{
		Min: geom.Point{X: cx, Y: -90},
		Max: geom.Point{X: cx + 360, Y: 90},
	}
	holes := geom.Polygon{toGeomPath(h), toGeomPath(shifted)}
	res := window.Polygons()[0].Difference(holes)

	return nestRings(ringsOf(res)), nil
}

// splitAntimeridian cuts p, given in unwrapped longitudes, into polygons
// within [-180, 180].
func splitAntimeridian(p orb.Polygon) []orb.Polygon {
	p = snapAntimeridian(p)
	b := p.Bound()
	kMin := int(math.Floor((b.Left() + 180) / 360))
	kMax := int(math.Ceil((b.Right()-180)/360))
	if kMin >= kMax {
		return []orb.Polygon{shiftPolygon(p, -360*float64(kMin))}
	}

	gp := toGeomPolygon(p)
	var out []orb.Polygon
	for k := kMin; k <= kMax; k++ {
		off := 360 * float64(k)
		window := &geom.Bounds{
			Min: geom.Point{X: off - 180, Y: -91},
			Max: geom.Point{X: off + 180, Y: 91},
		}
		rings := ringsOf(gp.Intersection(window))
		if len(rings) == 0 {
			continue
		}
		for _, q := range nestRings(rings) {
			out = append(out, shiftPolygon(q, -off))
		}
	}
	return out
}

// snapAntimeridian returns a copy of p with longitudes within
// antimeridianSnap of 180 + 360k moved onto it, so that rounding in the
// unwrapping does not leave a sliver across the cut.
func snapAntimeridian(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = make(orb.Ring, len(r))
		for j, pt := range r {
			am := 180 + 360*math.Round((pt[0]-180)/360)
			if math.Abs(pt[0]-am) <= antimeridianSnap {
				pt[0] = am
			}
			out[i][j] = pt
		}
	}
	return out
}

// nestRings assembles rings into polygons by containment: a ring inside an
// even number of other rings is an outer ring (CCW), otherwise it is a hole
// (CW) of the smallest ring containing it.
func nestRings(rings []orb.Ring) []orb.Polygon {
	type entry struct {
		ring  orb.Ring
		area  float64
		depth int
		poly  int
	}
	var es []entry
	for _, r := range rings {
		r = dedupRing(closeRing(r))
		if len(r) < 4 {
			continue
		}
		if a := math.Abs(planar.Area(r)); a > minRingArea {
			es = append(es, entry{ring: r, area: a})
		}
	}
	slices.SortStableFunc(es, func(a, b entry) int { return cmp.Compare(b.area, a.area) })

	var polys []orb.Polygon
	for i := range es {
		parent := -1
		for j := i - 1; j >= 0; j-- {
			if ringInside(es[i].ring, es[j].ring) {
				parent = j
				break
			}
		}
		if parent >= 0 {
			es[i].depth = es[parent].depth + 1
		}
		if es[i].depth%2 == 0 {
			if es[i].ring.Orientation() != orb.CCW {
				es[i].ring.Reverse()
			}
			es[i].poly = len(polys)
			polys = append(polys, orb.Polygon{es[i].ring})
			continue
		}
		if es[i].ring.Orientation() != orb.CW {
			es[i].ring.Reverse()
		}
		es[i].poly = es[parent].poly
		polys[es[i].poly] = append(polys[es[i].poly], es[i].ring)
	}
	return polys
}

// ringInside reports whether inner lies inside outer, judged by the first
// vertex of inner that is not also a vertex of outer.
func ringInside(inner, outer orb.Ring) bool {
	if !outer.Bound().Contains(inner.Bound().Min) || !outer.Bound().Contains(inner.Bound().Max) {
		return false
	}
	shared := make(map[orb.Point]struct{}, len(outer))
	for _, p := range outer {
		shared[p] = struct{}{}
	}
	for _, p := range inner {
		if _, ok := shared[p]; ok {
			continue
		}
		return planar.RingContains(outer, p)
	}
	return false
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// dedupRing drops consecutive duplicate points of a closed ring.
func dedupRing(r orb.Ring) orb.Ring {
	out := r[:0:0]
	for i, p := range r {
		if i > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func shiftRing(r orb.Ring, dx float64) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, p := range r {
		out[i] = orb.Point{p[0] + dx, p[1]}
	}
	return out
}

func shiftPolygon(p orb.Polygon, dx float64) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = shiftRing(r, dx)
	}
	return out
}

// wrap180 maps d into [-180, 180].
func wrap180(d float64) float64 {
	return math.Remainder(d, 360)
}

// mod360 maps d into [0, 360).
func mod360(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// toGeomPath converts a ring into an implicitly closed path.
func toGeomPath(r orb.Ring) geom.Path {
	n := len(r)
	if n > 1 && r[0] == r[n-1] {
		n--
	}
	path := make(geom.Path, n)
	for i := range n {
		path[i] = geom.Point{X: r[i][0], Y: r[i][1]}
	}
	return path
}

func toGeomPolygon(p orb.Polygon) geom.Polygon {
	out := make(geom.Polygon, len(p))
	for i, r := range p {
		out[i] = toGeomPath(r)
	}
	return out
}

// ringsOf flattens the result of a polygon operation into closed rings.
func ringsOf(res geom.Polygonal) []orb.Ring {
	if res == nil {
		return nil
	}
	var rings []orb.Ring
	for _, p := range res.Polygons() {
		rings = append(rings, fromGeomPolygon(p)...)
	}
	return rings
}

func fromGeomPolygon(p geom.Polygon) []orb.Ring {
	rings := make([]orb.Ring, 0, len(p))
	for _, path := range p {
		r := make(orb.Ring, 0, len(path)+1)
		for _, pt := range path {
			r = append(r, orb.Point{pt.X, pt.Y})
		}
		rings = append(rings, closeRing(r))
	}
	return rings
}

// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package s2delaunay computes Delaunay triangulations of points on the unit sphere
// as the convex hull of the points.
package s2delaunay

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
	"github.com/markus-wa/quickhull-go/v2"
)

const (
	defaultEps = 1e-12
)

var (
	// ErrInsufficientVertices is returned for fewer than 4 vertices.
	ErrInsufficientVertices = errors.New("s2delaunay: insufficient vertices for triangulation (minimum 4 required)")

	// ErrInconsistentHull is returned when the convex hull does not describe a
	// closed triangulation of every input vertex. Near-duplicate vertices and
	// numerically flat inputs end up here.
	ErrInconsistentHull = errors.New("s2delaunay: inconsistent convex hull")
)

// Triangulation is a Delaunay triangulation of points on the sphere.
// Incident triangles are stored per vertex in CSR layout.
type Triangulation struct {
	Vertices  s2.PointVector
	Triangles [][3]int

	// IncidentTriangleIndices holds, for each vertex, the indices of its incident
	// triangles sorted in CCW order (look out of sphere).
	IncidentTriangleIndices []int
	IncidentTriangleOffsets []int
}

// IncidentTriangles returns the CCW-sorted triangles incident to vertex vIdx.
// It panics if vIdx is out of range.
func (dt *Triangulation) IncidentTriangles(vIdx int) []int {
	if vIdx < 0 || vIdx+1 >= len(dt.IncidentTriangleOffsets) {
		panic("IncidentTriangles: vIdx out of range")
	}
	start := dt.IncidentTriangleOffsets[vIdx]
	end := dt.IncidentTriangleOffsets[vIdx+1]
	return dt.IncidentTriangleIndices[start:end]
}

// TriangleVertices returns the three vertices of triangle tIdx in CCW order.
// It panics if tIdx is out of range.
func (dt *Triangulation) TriangleVertices(tIdx int) (s2.Point, s2.Point, s2.Point) {
	if tIdx < 0 || tIdx >= len(dt.Triangles) {
		panic("TriangleVertices: tIdx out of bounds")
	}
	t := dt.Triangles[tIdx]
	return dt.Vertices[t[0]], dt.Vertices[t[1]], dt.Vertices[t[2]]
}

// TriangulationOptions configures NewTriangulation.
type TriangulationOptions struct {
	Eps float64
}

// TriangulationOption sets a field of TriangulationOptions.
type TriangulationOption func(*TriangulationOptions) error

// WithEps sets the tolerance passed to the convex hull.
func WithEps(eps float64) TriangulationOption {
	return func(o *TriangulationOptions) error {
		if eps <= 0 {
			return fmt.Errorf("s2delaunay: eps must be positive, got %v", eps)
		}
		o.Eps = eps
		return nil
	}
}

// NewTriangulation triangulates vertices, which must lie on the unit sphere and
// must not all lie on one plane.
func NewTriangulation(vertices s2.PointVector, setters ...TriangulationOption) (dt *Triangulation, err error) {
	opts := TriangulationOptions{
		Eps: defaultEps,
	}
	for _, set := range setters {
		if err := set(&opts); err != nil {
			return nil, err
		}
	}

	numVertices := len(vertices)
	if numVertices < 4 {
		return nil, ErrInsufficientVertices
	}
	numTriangles := 2 * (numVertices - 2)

	r3vertices := make([]r3.Vector, numVertices)
	var interior r3.Vector
	for i, p := range vertices {
		r3vertices[i] = p.Vector
		interior = interior.Add(p.Vector)
	}
	interior = interior.Mul(1 / float64(numVertices))

	ch, err := convexHull(r3vertices, opts.Eps)
	if err != nil {
		return nil, err
	}
	if len(ch.Indices) != numTriangles*3 {
		return nil, fmt.Errorf("%w: %d indices for %d vertices, want %d",
			ErrInconsistentHull, len(ch.Indices), numVertices, numTriangles*3)
	}

	dt = &Triangulation{
		Vertices:                vertices,
		Triangles:               make([][3]int, numTriangles),
		IncidentTriangleIndices: make([]int, numTriangles*3),
		IncidentTriangleOffsets: make([]int, numVertices+1),
	}

	for _, idx := range ch.Indices {
		dt.IncidentTriangleOffsets[idx+1]++
	}
	for i := range numVertices {
		if dt.IncidentTriangleOffsets[i+1] < 3 {
			return nil, fmt.Errorf("%w: vertex %d has %d incident triangles",
				ErrInconsistentHull, i, dt.IncidentTriangleOffsets[i+1])
		}
		dt.IncidentTriangleOffsets[i+1] += dt.IncidentTriangleOffsets[i]
	}

	nxt := make([]int, numVertices)
	copy(nxt, dt.IncidentTriangleOffsets[:numVertices])
	for i := range numTriangles {
		base := i * 3
		for j := range 3 {
			v := ch.Indices[base+j]
			dt.Triangles[i][j] = v
			dt.IncidentTriangleIndices[nxt[v]] = i
			nxt[v]++
		}
		if !sortTriangleVerticesCCW(&dt.Triangles[i], dt.Vertices, interior) {
			return nil, fmt.Errorf("%w: triangle %d is degenerate", ErrInconsistentHull, i)
		}
	}

	for i := range numVertices {
		incidentTriangles := dt.IncidentTriangles(i)
		if !sortIncidentTriangleIndicesCCW(i, incidentTriangles, dt.Triangles) {
			return nil, fmt.Errorf("%w: triangles around vertex %d do not form a fan",
				ErrInconsistentHull, i)
		}
	}

	return dt, nil
}

// convexHull wraps quickhull, converting its panics on ill-conditioned input
// into errors.
func convexHull(points []r3.Vector, eps float64) (ch quickhull.ConvexHull, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: quickhull: %v", ErrInconsistentHull, r)
		}
	}()
	qh := new(quickhull.QuickHull)
	return qh.ConvexHull(points, true, true, eps), nil
}

// sortTriangleVerticesCCW orients t so that its normal points away from
// interior, a point strictly inside the hull. The facet normal is then the
// direction of the triangle's spherical circumcenter even when the hull does not
// contain the origin. It reports false for a zero-area triangle.
func sortTriangleVerticesCCW(t *[3]int, v s2.PointVector, interior r3.Vector) bool {
	p0, p1, p2 := v[t[0]], v[t[1]], v[t[2]]
	norm := p1.Sub(p0.Vector).Cross(p2.Sub(p0.Vector))
	side := norm.Dot(p0.Sub(interior))
	if side == 0 {
		return false
	}
	if side < 0 {
		t[1], t[2] = t[2], t[1]
	}
	return true
}

// sortIncidentTriangleIndicesCCW orders the triangles around vIdx so that each
// triangle follows its CCW predecessor across a shared edge. It reports false
// if the triangles do not close into a single fan.
func sortIncidentTriangleIndicesCCW(vIdx int, incidentTris []int, tris [][3]int) bool {
	n := len(incidentTris)
	for i := 1; i < n; i++ {
		prv := PrevVertex(tris[incidentTris[i-1]], vIdx)
		found := false
		for j := i; j < n; j++ {
			if NextVertex(tris[incidentTris[j]], vIdx) == prv {
				incidentTris[i], incidentTris[j] = incidentTris[j], incidentTris[i]
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return NextVertex(tris[incidentTris[0]], vIdx) == PrevVertex(tris[incidentTris[n-1]], vIdx)
}

// PrevVertex returns the vertex preceding vIdx in t.
func PrevVertex(t [3]int, vIdx int) int {
	switch vIdx {
	case t[0]:
		return t[2]
	case t[1]:
		return t[0]
	case t[2]:
		return t[1]
	}
	panic("PrevVertex: vIdx not in triangle")
}

// NextVertex returns the vertex following vIdx in t.
func NextVertex(t [3]int, vIdx int) int {
	switch vIdx {
	case t[0]:
		return t[1]
	case t[1]:
		return t[2]
	case t[2]:
		return t[0]
	}
	panic("NextVertex: vIdx not in triangle")
}

// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2voronoi

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/2dChan/s2regionizer/s2delaunay"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

const (
	defaultEps = 1e-12

	// planeTol bounds the distance of sites from a common plane relative to the
	// squared extent of the site set. Sphere curvature puts non-cocircular sites
	// at roughly extent²/8 from any plane.
	planeTol = 1e-8

	// mergeTol is the angle (radians) below which two Voronoi vertices of one
	// cell are treated as the same vertex.
	mergeTol = 1e-10

	// windingTol is the tolerance on the total azimuth swept by a cell boundary.
	windingTol = 1e-6
)

var (
	// ErrTooFewSites is returned for fewer than 2 sites.
	ErrTooFewSites = errors.New("s2voronoi: at least 2 sites required")

	// ErrDegenerate is returned when the sites lie on a single great-circle arc.
	ErrDegenerate = errors.New("s2voronoi: sites lie on a single great-circle arc")

	// ErrNumerical is returned when the site configuration is too ill-conditioned
	// to produce a valid diagram.
	ErrNumerical = errors.New("s2voronoi: ill-conditioned site configuration")
)

// Diagram is a Voronoi diagram on the unit sphere. Cells are stored in CSR
// layout: the vertices and neighbors of cell i are
// CellVertices[CellOffsets[i]:CellOffsets[i+1]] and likewise for CellNeighbors.
type Diagram struct {
	Sites    s2.PointVector
	Vertices s2.PointVector

	// CellVertices is sorted in CCW order per cell (look out of sphere).
	CellVertices []int
	// CellNeighbors[k] is the cell across the edge from vertex k to vertex k+1.
	CellNeighbors []int
	CellOffsets   []int

	eps float64
}

// DiagramOptions configures NewDiagram.
type DiagramOptions struct {
	Eps float64
}

// DiagramOption sets a field of DiagramOptions.
type DiagramOption func(*DiagramOptions) error

// WithEps sets the numerical tolerance used by the convex hull and the
// great-circle test.
func WithEps(eps float64) DiagramOption {
	return func(o *DiagramOptions) error {
		if eps <= 0 {
			return fmt.Errorf("s2voronoi: eps must be positive, got %v", eps)
		}
		o.Eps = eps
		return nil
	}
}

// NumCells returns the number of cells, which equals the number of sites.
func (vd *Diagram) NumCells() int {
	return len(vd.Sites)
}

// Cell returns the cell of site i.
func (vd *Diagram) Cell(i int) (Cell, error) {
	if i < 0 || i >= len(vd.Sites) {
		return Cell{}, fmt.Errorf("Cell: index %d out of range [0 %d)", i, len(vd.Sites))
	}
	return Cell{idx: i, d: vd}, nil
}

// NewDiagram computes the Voronoi diagram of sites, which must be distinct
// points on the unit sphere.
//
// Sites in general position are triangulated through their convex hull. Sites
// on a common plane produce a fan of lunes between the two poles of that plane;
// if the plane passes through the origin and the sites fit in a semicircle the
// diagram is undefined and ErrDegenerate is returned.
func NewDiagram(sites s2.PointVector, setters ...DiagramOption) (*Diagram, error) {
	opts := DiagramOptions{
		Eps: defaultEps,
	}
	for _, set := range setters {
		if err := set(&opts); err != nil {
			return nil, err
		}
	}

	if len(sites) < 2 {
		return nil, ErrTooFewSites
	}

	var vd *Diagram
	if pl, ok := fitPlane(sites, opts.Eps); ok {
		var err error
		vd, err = newLuneDiagram(sites, pl)
		if err != nil {
			return nil, err
		}
	} else {
		dt, err := s2delaunay.NewTriangulation(sites, s2delaunay.WithEps(opts.Eps))
		if err != nil {
			if errors.Is(err, s2delaunay.ErrInconsistentHull) {
				return nil, fmt.Errorf("%w: %w", ErrNumerical, err)
			}
			return nil, err
		}
		vd, err = newDelaunayDiagram(dt)
		if err != nil {
			return nil, err
		}
		vd.mergeVertices()
	}
	vd.eps = opts.Eps

	for i := range vd.NumCells() {
		if err := vd.validateCell(i); err != nil {
			return nil, err
		}
	}
	return vd, nil
}

// Relax applies steps iterations of Lloyd relaxation: every site moves to the
// spherical centroid of its cell and the diagram is rebuilt.
func (vd *Diagram) Relax(steps int) error {
	if steps < 0 {
		return fmt.Errorf("Relax: steps must be non-negative, got %d", steps)
	}
	eps := vd.eps
	if eps == 0 {
		eps = defaultEps
	}
	for range steps {
		sites := make(s2.PointVector, vd.NumCells())
		for i := range sites {
			sites[i] = Cell{idx: i, d: vd}.Centroid()
		}
		nvd, err := NewDiagram(sites, WithEps(eps))
		if err != nil {
			return err
		}
		*vd = *nvd
	}
	return nil
}

func newDelaunayDiagram(dt *s2delaunay.Triangulation) (*Diagram, error) {
	numTriangles := len(dt.Triangles)
	numNeighbors := len(dt.IncidentTriangleIndices)
	vd := &Diagram{
		Sites:         dt.Vertices,
		Vertices:      make(s2.PointVector, numTriangles),
		CellVertices:  dt.IncidentTriangleIndices,
		CellNeighbors: make([]int, numNeighbors),
		CellOffsets:   dt.IncidentTriangleOffsets,
	}

	for i := range numTriangles {
		p0, p1, p2 := dt.TriangleVertices(i)
		c := triangleCircumcenter(p0, p1, p2)
		if c.Norm2() == 0 {
			return nil, fmt.Errorf("%w: triangle %d has no circumcenter", ErrNumerical, i)
		}
		vd.Vertices[i] = s2.Point{Vector: c.Normalize()}
	}

	for vIdx := range dt.Vertices {
		offset := dt.IncidentTriangleOffsets[vIdx]
		it := dt.IncidentTriangles(vIdx)
		for i, tIdx := range it {
			vd.CellNeighbors[offset+i] = s2delaunay.PrevVertex(dt.Triangles[tIdx], vIdx)
		}
	}

	return vd, nil
}

// plane is the set of points p with normal·p == offset; offset >= 0.
type plane struct {
	normal r3.Vector
	offset float64
}

// fitPlane reports whether all sites lie on one plane and returns it. Two
// sites always do; their plane is taken through the origin.
func fitPlane(sites s2.PointVector, eps float64) (plane, bool) {
	a := sites[0]

	bi, extent2 := 0, 0.0
	for i, p := range sites {
		if d := p.Sub(a.Vector).Norm2(); d > extent2 {
			bi, extent2 = i, d
		}
	}
	ab := sites[bi].Sub(a.Vector)

	var normal r3.Vector
	for _, p := range sites {
		if c := ab.Cross(p.Sub(a.Vector)); c.Norm2() > normal.Norm2() {
			normal = c
		}
	}
	if normal.Norm2() <= eps*eps*extent2 {
		// Collinear in 3D: at most two distinct points of the sphere.
		normal = a.Cross(sites[bi].Vector)
		if normal.Norm2() == 0 {
			normal = s2.Ortho(a).Vector
		}
		return plane{normal: normal.Normalize()}, true
	}

	normal = normal.Normalize()
	offset := normal.Dot(a.Vector)
	for _, p := range sites {
		if math.Abs(normal.Dot(p.Vector)-offset) > planeTol*extent2 {
			return plane{}, false
		}
	}
	if offset < 0 {
		normal, offset = normal.Mul(-1), -offset
	}
	if offset <= eps {
		offset = 0
	}
	return plane{normal: normal, offset: offset}, true
}

// newLuneDiagram builds the diagram of sites lying on a common circle. Every
// cell is a lune from the circle's pole n to -n, bounded by the half great
// circles bisecting it from its two neighbors along the circle. Each bisector
// is represented by its midpoint at 90° from n.
func newLuneDiagram(sites s2.PointVector, pl plane) (*Diagram, error) {
	n := len(sites)
	pole := s2.Point{Vector: pl.normal}
	u := s2.Ortho(pole).Vector
	w := pl.normal.Cross(u)

	az := make([]float64, n)
	order := make([]int, n)
	for i, p := range sites {
		az[i] = math.Atan2(p.Dot(w), p.Dot(u))
		order[i] = i
	}
	slices.SortFunc(order, func(i, j int) int {
		switch {
		case az[i] < az[j]:
			return -1
		case az[i] > az[j]:
			return 1
		}
		return 0
	})

	gaps := make([]float64, n)
	maxGap := 0.0
	for k := range n {
		cur, next := order[k], order[(k+1)%n]
		g := az[next] - az[cur]
		if g <= 0 {
			g += 2 * math.Pi
		}
		gaps[k] = g
		maxGap = max(maxGap, g)
	}
	if pl.offset == 0 && maxGap >= math.Pi-windingTol {
		return nil, ErrDegenerate
	}

	vd := &Diagram{
		Sites:         sites,
		Vertices:      make(s2.PointVector, 2+n),
		CellVertices:  make([]int, 4*n),
		CellNeighbors: make([]int, 4*n),
		CellOffsets:   make([]int, n+1),
	}
	vd.Vertices[0] = pole
	vd.Vertices[1] = s2.Point{Vector: pl.normal.Mul(-1)}
	for k := range n {
		mid := az[order[k]] + gaps[k]/2
		vd.Vertices[2+k] = s2.Point{Vector: u.Mul(math.Cos(mid)).Add(w.Mul(math.Sin(mid))).Normalize()}
	}

	for k, site := range order {
		prev, next := order[(k-1+n)%n], order[(k+1)%n]
		prevMid, nextMid := 2+(k-1+n)%n, 2+k
		offset := 4 * site
		copy(vd.CellVertices[offset:offset+4], []int{nextMid, 0, prevMid, 1})
		copy(vd.CellNeighbors[offset:offset+4], []int{next, prev, prev, next})
	}
	for i := range n {
		vd.CellOffsets[i+1] = 4 * (i + 1)
	}
	return vd, nil
}

// mergeVertices collapses vertices of a cell that coincide, as happens for the
// circumcenters of cocircular sites, and drops the zero-length edges between
// them together with their neighbor entries.
func (vd *Diagram) mergeVertices() {
	parent := make([]int, len(vd.Vertices))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	merged := false
	for c := range vd.NumCells() {
		idx := vd.CellVertices[vd.CellOffsets[c]:vd.CellOffsets[c+1]]
		for k := range idx {
			a, b := idx[k], idx[(k+1)%len(idx)]
			if vd.Vertices[a].Distance(vd.Vertices[b]).Radians() < mergeTol {
				ra, rb := find(a), find(b)
				if ra != rb {
					parent[rb] = ra
					merged = true
				}
			}
		}
	}
	if !merged {
		return
	}

	remap := make([]int, len(vd.Vertices))
	vertices := make(s2.PointVector, 0, len(vd.Vertices))
	for i := range vd.Vertices {
		if find(i) == i {
			remap[i] = len(vertices)
			vertices = append(vertices, vd.Vertices[i])
		}
	}

	cellVertices := make([]int, 0, len(vd.CellVertices))
	cellNeighbors := make([]int, 0, len(vd.CellNeighbors))
	offsets := make([]int, len(vd.CellOffsets))
	for c := range vd.NumCells() {
		start := len(cellVertices)
		for k := vd.CellOffsets[c]; k < vd.CellOffsets[c+1]; k++ {
			v := remap[find(vd.CellVertices[k])]
			if len(cellVertices) > start && cellVertices[len(cellVertices)-1] == v {
				cellNeighbors[len(cellNeighbors)-1] = vd.CellNeighbors[k]
				continue
			}
			cellVertices = append(cellVertices, v)
			cellNeighbors = append(cellNeighbors, vd.CellNeighbors[k])
		}
		for len(cellVertices)-start > 1 && cellVertices[len(cellVertices)-1] == cellVertices[start] {
			cellVertices = cellVertices[:len(cellVertices)-1]
			cellNeighbors = cellNeighbors[:len(cellNeighbors)-1]
		}
		offsets[c+1] = len(cellVertices)
	}

	vd.Vertices = vertices
	vd.CellVertices = cellVertices
	vd.CellNeighbors = cellNeighbors
	vd.CellOffsets = offsets
}

// validateCell checks that the boundary of cell i winds exactly once, CCW,
// around its site.
func (vd *Diagram) validateCell(i int) error {
	c := Cell{idx: i, d: vd}
	n := c.NumVertices()
	if n < 3 {
		return fmt.Errorf("%w: cell %d has %d vertices", ErrNumerical, i, n)
	}
	site := c.Site()
	total := 0.0
	for k := range n {
		a := vd.Vertices[vd.CellVertices[vd.CellOffsets[i]+k]]
		b := vd.Vertices[vd.CellVertices[vd.CellOffsets[i]+(k+1)%n]]
		step := azimuthStep(site, a, b)
		if step <= 0 {
			return fmt.Errorf("%w: cell %d is not convex around its site", ErrNumerical, i)
		}
		total += step
	}
	if math.Abs(total-2*math.Pi) > windingTol {
		return fmt.Errorf("%w: cell %d winds %.6f rad around its site", ErrNumerical, i, total)
	}
	return nil
}

// azimuthStep returns the signed angle from a to b as seen from center,
// positive for CCW (look out of sphere).
func azimuthStep(center, a, b s2.Point) float64 {
	u := s2.Ortho(center).Vector
	w := center.Cross(u)
	return math.Remainder(
		math.Atan2(b.Dot(w), b.Dot(u))-math.Atan2(a.Dot(w), a.Dot(u)),
		2*math.Pi,
	)
}

// triangleCircumcenter returns the outward normal of the CCW triangle p1 p2 p3,
// which points at its spherical circumcenter. The result is not normalized.
func triangleCircumcenter(p1, p2, p3 s2.Point) r3.Vector {
	v1 := p1.Sub(p2.Vector)
	v2 := p2.Sub(p3.Vector)
	return v1.Cross(v2)
}

// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"errors"
	"fmt"

	"github.com/2dChan/s2regionizer/s2voronoi"
	"github.com/golang/geo/s2"
)

// VoronoiCell is the spherical cell of one seed.
type VoronoiCell struct {
	SeedID string
	Site   s2.Point
	// Vertices is sorted in CCW order (look out of sphere).
	Vertices s2.PointVector
	// Neighbors[k] is the id of the seed across the edge from vertex k to
	// vertex k+1.
	Neighbors []string
}

// CellBuilder computes the Voronoi cells of sites. For each site it returns
// the CCW boundary vertices and, per boundary edge, the index of the
// neighboring site.
type CellBuilder interface {
	ComputeCells(sites s2.PointVector) ([]s2.PointVector, [][]int, error)
}

// DiagramBuilder is the default CellBuilder, backed by s2voronoi.
type DiagramBuilder struct {
	Eps float64
}

// ComputeCells implements CellBuilder.
func (b DiagramBuilder) ComputeCells(sites s2.PointVector) ([]s2.PointVector, [][]int, error) {
	var opts []s2voronoi.DiagramOption
	if b.Eps > 0 {
		opts = append(opts, s2voronoi.WithEps(b.Eps))
	}
	vd, err := s2voronoi.NewDiagram(sites, opts...)
	if err != nil {
		return nil, nil, err
	}

	vertices := make([]s2.PointVector, vd.NumCells())
	neighbors := make([][]int, vd.NumCells())
	for i := range vd.NumCells() {
		c, err := vd.Cell(i)
		if err != nil {
			return nil, nil, err
		}
		vertices[i] = c.Vertices()
		neighbors[i] = append([]int(nil), c.NeighborIndices()...)
	}
	return vertices, neighbors, nil
}

// BuildCells computes the cells of seeds with b and maps builder failures to
// ErrInput, ErrDegenerateGeometry or ErrNumerical.
func BuildCells(seeds []Seed, b CellBuilder) ([]VoronoiCell, error) {
	vertices, neighbors, err := b.ComputeCells(Points(seeds))
	switch {
	case err == nil:
	case errors.Is(err, s2voronoi.ErrTooFewSites):
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	case errors.Is(err, s2voronoi.ErrDegenerate):
		return nil, fmt.Errorf("%w: %w", ErrDegenerateGeometry, err)
	case errors.Is(err, s2voronoi.ErrNumerical):
		return nil, fmt.Errorf("%w: %w", ErrNumerical, err)
	default:
		return nil, fmt.Errorf("cell builder: %w", err)
	}

	if len(vertices) != len(seeds) || len(neighbors) != len(seeds) {
		return nil, fmt.Errorf("%w: cell builder returned %d cells for %d seeds",
			ErrNumerical, len(vertices), len(seeds))
	}
	cells := make([]VoronoiCell, len(seeds))
	for i, s := range seeds {
		if len(vertices[i]) < 3 || len(neighbors[i]) != len(vertices[i]) {
			return nil, fmt.Errorf("%w: cell of seed %q has %d vertices and %d neighbors",
				ErrNumerical, s.ID, len(vertices[i]), len(neighbors[i]))
		}
		ids := make([]string, len(neighbors[i]))
		for k, n := range neighbors[i] {
			if n < 0 || n >= len(seeds) {
				return nil, fmt.Errorf("%w: cell of seed %q has neighbor %d out of range",
					ErrNumerical, s.ID, n)
			}
			ids[k] = seeds[n].ID
		}
		cells[i] = VoronoiCell{
			SeedID:    s.ID,
			Site:      s.Point,
			Vertices:  vertices[i],
			Neighbors: ids,
		}
	}
	return cells, nil
}

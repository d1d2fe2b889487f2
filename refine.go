// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used to measure edge lengths.
const EarthRadiusMeters = 6371008.8

// maxRefinedVertices caps the size of a refined cell.
const maxRefinedVertices = 1 << 22

// RefinedCell is a VoronoiCell whose long edges have been subdivided. Its
// Neighbors still refer to the edges of the unrefined cell.
type RefinedCell VoronoiCell

// EdgeLengthMeters returns the great-circle distance between a and b.
func EdgeLengthMeters(a, b s2.Point) float64 {
	return a.Distance(b).Radians() * EarthRadiusMeters
}

// RefineCell splits every edge of c longer than maxChordMeters into
// ceil(length/maxChordMeters) equal great-circle parts. The split points of
// an edge do not depend on its direction, so the two cells sharing it agree
// on them exactly.
func RefineCell(c VoronoiCell, maxChordMeters float64) (RefinedCell, error) {
	if err := validateChord(maxChordMeters); err != nil {
		return RefinedCell{}, err
	}

	n := len(c.Vertices)
	out := make(s2.PointVector, 0, n)
	for i, a := range c.Vertices {
		b := c.Vertices[(i+1)%n]
		out = append(out, a)

		parts := math.Ceil(EdgeLengthMeters(a, b) / maxChordMeters)
		if len(out)+int(min(parts, maxRefinedVertices)) > maxRefinedVertices {
			return RefinedCell{}, fmt.Errorf("%w: max chord %v m yields more than %d vertices for seed %q",
				ErrInput, maxChordMeters, maxRefinedVertices, c.SeedID)
		}
		m := int(parts)
		for k := 1; k < m; k++ {
			if pointLess(a, b) {
				out = append(out, s2.Interpolate(float64(k)/parts, a, b))
			} else {
				out = append(out, s2.Interpolate(float64(m-k)/parts, b, a))
			}
		}
	}

	return RefinedCell{
		SeedID:    c.SeedID,
		Site:      c.Site,
		Vertices:  out,
		Neighbors: c.Neighbors,
	}, nil
}

func validateChord(maxChordMeters float64) error {
	if !(maxChordMeters > 0) || math.IsInf(maxChordMeters, 1) {
		return fmt.Errorf("%w: max chord must be positive and finite, got %v", ErrInput, maxChordMeters)
	}
	return nil
}

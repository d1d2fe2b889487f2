// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// SeedInput is a caller-supplied seed position in WGS84 degrees.
type SeedInput struct {
	ID  string
	Lat float64
	Lng float64
}

// Seed is a validated seed projected onto the unit sphere.
type Seed struct {
	ID     string
	LatLng s2.LatLng
	Point  s2.Point
}

// PrepareSeeds validates in and projects every seed onto the unit sphere,
// preserving order and ids.
//
// It rejects an empty or single-seed input, duplicate ids, non-finite or
// out-of-range latitudes and seeds that share a sphere position. Longitudes
// are normalized into [-180, 180]; seeds at a pole share a position whatever
// their longitude.
func PrepareSeeds(in []SeedInput) ([]Seed, error) {
	switch len(in) {
	case 0:
		return nil, fmt.Errorf("%w: no seeds", ErrInput)
	case 1:
		return nil, fmt.Errorf("%w: a single seed covers the whole sphere", ErrInput)
	}

	seeds := make([]Seed, len(in))
	ids := make(map[string]int, len(in))
	positions := make(map[[2]float64]int, len(in))
	for i, s := range in {
		if j, ok := ids[s.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate seed id %q at %d and %d", ErrInput, s.ID, j, i)
		}
		ids[s.ID] = i

		lat, lng, err := canonicalLatLng(s.Lat, s.Lng)
		if err != nil {
			return nil, fmt.Errorf("%w: seed %q: %w", ErrInput, s.ID, err)
		}
		key := [2]float64{lat, lng}
		if j, ok := positions[key]; ok {
			return nil, fmt.Errorf("%w: duplicate seeds present: %q and %q", ErrInput, in[j].ID, s.ID)
		}
		positions[key] = i

		ll := s2.LatLngFromDegrees(lat, lng)
		seeds[i] = Seed{
			ID:     s.ID,
			LatLng: ll,
			Point:  s2.PointFromLatLng(ll),
		}
	}
	return seeds, nil
}

// canonicalLatLng returns the position in a form where equal sphere positions
// compare equal.
func canonicalLatLng(lat, lng float64) (float64, float64, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return 0, 0, fmt.Errorf("non-finite coordinate (%v, %v)", lat, lng)
	}
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lat == 90 || lat == -90 {
		return lat, 0, nil
	}
	lng = math.Remainder(lng, 360)
	if lng == -180 {
		lng = 180
	}
	return lat, lng, nil
}

// Points returns the unit vectors of seeds.
func Points(seeds []Seed) s2.PointVector {
	pts := make(s2.PointVector, len(seeds))
	for i, s := range seeds {
		pts[i] = s.Point
	}
	return pts
}

// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package utils provides seeded random fixtures for diagrams and regionizer runs.
package utils

import (
	"math"
	"math/rand"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// GenerateRandomPoints generates a vector of random points on the S2 sphere.
// The seed parameter ensures reproducibility.
func GenerateRandomPoints(cnt int, seed int64) s2.PointVector {
	//nolint:gosec
	random := rand.New(rand.NewSource(seed))
	sites := make(s2.PointVector, cnt)

	for i := range cnt {
		sites[i] = s2.PointFromLatLng(s2.LatLng{
			Lat: s1.Angle((random.Float64() - 0.5) * math.Pi),
			Lng: s1.Angle((random.Float64()*2 - 1) * math.Pi),
		})
	}

	return sites
}

// GenerateRandomLatLngs generates cnt random positions in degrees inside the
// given latitude and longitude ranges. The seed parameter ensures
// reproducibility.
func GenerateRandomLatLngs(cnt int, seed int64, minLat, maxLat, minLng, maxLng float64) [][2]float64 {
	//nolint:gosec
	random := rand.New(rand.NewSource(seed))
	out := make([][2]float64, cnt)

	for i := range cnt {
		out[i] = [2]float64{
			minLat + random.Float64()*(maxLat-minLat),
			minLng + random.Float64()*(maxLng-minLng),
		}
	}

	return out
}

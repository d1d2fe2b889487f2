// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"github.com/paulmach/orb/geojson"
)

// SeedIDProperty is the GeoJSON feature property holding the seed id.
const SeedIDProperty = "seed_id"

// EncodeGeoJSON returns regions as a feature collection, one MultiPolygon
// feature per region in order.
func EncodeGeoJSON(regions []Region) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range regions {
		f := geojson.NewFeature(r.Geometry)
		f.Properties[SeedIDProperty] = r.SeedID
		fc.Append(f)
	}
	return fc
}

// RegionsByID indexes regions by seed id.
func RegionsByID(regions []Region) map[string]Region {
	m := make(map[string]Region, len(regions))
	for _, r := range regions {
		m[r.SeedID] = r
	}
	return m
}

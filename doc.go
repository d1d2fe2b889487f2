// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package s2regionizer partitions the Earth's surface into Thiessen regions
// around a set of seed points.
//
// The cells are computed on the sphere (see package s2voronoi), long boundary
// edges are subdivided along great circles so that the planar polygons stay
// close to the true geodesic boundary, and each cell is converted to a WGS84
// orb.MultiPolygon and clipped to a caller-supplied Mask.
//
//	r, err := s2regionizer.New(s2regionizer.WithConcurrency(8))
//	...
//	regions, err := r.Regionize(ctx, seeds, 10_000, mask)
//
// Cells that contain a pole are closed along the pole line (lat = ±90), and
// cells that cross the antimeridian are split into one polygon per side.
package s2regionizer

// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"context"
	"errors"
)

var (
	// ErrInput is returned for invalid caller input: no seeds, a single seed,
	// duplicate ids or positions, bad coordinates, a bad chord bound or mask.
	ErrInput = errors.New("s2regionizer: invalid input")

	// ErrDegenerateGeometry is returned when the seeds lie on a single
	// great-circle arc and the diagram is undefined.
	ErrDegenerateGeometry = errors.New("s2regionizer: degenerate seed geometry")

	// ErrNumerical is returned when the seed configuration is too
	// ill-conditioned for the hull computation.
	ErrNumerical = errors.New("s2regionizer: numerical failure")

	// ErrAssembly is returned when a cell cannot be converted into polygons
	// that enclose its seed.
	ErrAssembly = errors.New("s2regionizer: polygon assembly failed")

	// ErrSequenceConsumed is yielded when a sequence returned by
	// Regionizer.Regions is ranged over more than once.
	ErrSequenceConsumed = errors.New("s2regionizer: region sequence already consumed")
)

// errorKind names the class of err for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInput):
		return "input"
	case errors.Is(err, ErrDegenerateGeometry):
		return "degenerate"
	case errors.Is(err, ErrNumerical):
		return "numerical"
	case errors.Is(err, ErrAssembly):
		return "assembly"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

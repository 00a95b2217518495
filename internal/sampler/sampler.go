// Package sampler produces the spatial sample point sets that drive crop
// extraction: sparse quality-weighted carcass sets for training, and dense
// overlapping grids for inference sweeps. Point sets are generated per run
// and never persisted.
package sampler

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/seisvol/seisvol/internal/geometry"
	"github.com/seisvol/seisvol/internal/grid"
	"github.com/seisvol/seisvol/pkg/logger"
)

// SampleCarcass selects a sparse subset of grid cells on every frequency-th
// inline and crossline, weighted by the coverage map so higher-quality
// cells are preferentially included. Cells with no live data (NaN) are
// never selected. Deterministic for a fixed seed.
//
// Returned points are 2D grid locations with the depth coordinate zero.
func SampleCarcass(q *geometry.QualityMap, frequency int, seed int64) ([]grid.Point, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("carcass frequency must be positive, got %d", frequency)
	}

	rng := rand.New(rand.NewSource(seed))
	var points []grid.Point

	for i := 0; i < q.InlineCount; i++ {
		for x := 0; x < q.CrosslineCount; x++ {
			if i%frequency != 0 && x%frequency != 0 {
				continue
			}
			if q.Dead(i, x) {
				continue
			}
			// Quality scores are normalized to [0, 1] and double as
			// inclusion probability.
			if rng.Float64() >= q.At(i, x) {
				continue
			}
			points = append(points, grid.Point{i, x, 0})
		}
	}

	logger.Debug("Carcass sampled",
		zap.Int("frequency", frequency),
		zap.Int64("seed", seed),
		zap.Int("points", len(points)),
	)
	return points, nil
}

// MakeGrid produces every crop origin needed to tile the extent with the
// given crop shape, consecutive origins per axis offset by
// cropShape - overlap. An overlap equal to the crop extent degenerates to
// unit step. The final origin per axis is clamped so the crop stays inside
// the extent; the union of all crops covers the extent with no gaps.
func MakeGrid(extent grid.Extent, cropShape, overlap grid.Shape) ([]grid.Point, error) {
	shape := extent.Shape()
	for ax := 0; ax < 3; ax++ {
		if cropShape[ax] <= 0 {
			return nil, &grid.InvalidExtentError{Axis: ax, Request: cropShape[ax],
				Limit: shape[ax], Reason: "crop shape must be positive"}
		}
		if cropShape[ax] > shape[ax] {
			return nil, &grid.InvalidExtentError{Axis: ax, Request: cropShape[ax],
				Limit: shape[ax], Reason: "crop shape exceeds extent"}
		}
		if overlap[ax] < 0 || overlap[ax] > cropShape[ax] {
			return nil, &grid.InvalidExtentError{Axis: ax, Request: overlap[ax],
				Limit: cropShape[ax], Reason: "overlap outside [0, crop shape]"}
		}
	}

	axes := [3][]int{}
	for ax := 0; ax < 3; ax++ {
		axes[ax] = axisOrigins(extent.Lo[ax], extent.Hi[ax], cropShape[ax], overlap[ax])
	}

	points := make([]grid.Point, 0, len(axes[0])*len(axes[1])*len(axes[2]))
	for _, i := range axes[0] {
		for _, x := range axes[1] {
			for _, z := range axes[2] {
				points = append(points, grid.Point{i, x, z})
			}
		}
	}
	return points, nil
}

func axisOrigins(lo, hi, crop, overlap int) []int {
	step := crop - overlap
	if step <= 0 {
		step = 1
	}
	last := hi - crop

	var origins []int
	for o := lo; ; o += step {
		if o >= last {
			origins = append(origins, last)
			return origins
		}
		origins = append(origins, o)
	}
}

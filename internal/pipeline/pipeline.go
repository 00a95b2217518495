// Package pipeline executes an explicit ordered list of stage descriptors
// over crops: load, mask, reshape, scale, augment, predict. The stage list
// is plain data interpreted by a small loop, so compositions are easy to
// build from configuration without operator tricks.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/seisvol/seisvol/internal/assemble"
	"github.com/seisvol/seisvol/internal/grid"
	"github.com/seisvol/seisvol/internal/horizon"
	"github.com/seisvol/seisvol/internal/volume"
)

// Predictor is the model collaborator: a pure function from crop to
// prediction of identical spatial shape.
type Predictor interface {
	Predict(ctx context.Context, crop grid.Crop) (grid.Crop, error)
}

type PredictorFunc func(ctx context.Context, crop grid.Crop) (grid.Crop, error)

func (f PredictorFunc) Predict(ctx context.Context, crop grid.Crop) (grid.Crop, error) {
	return f(ctx, crop)
}

type StageKind string

const (
	StageLoad    StageKind = "load"
	StageMask    StageKind = "mask"
	StageReshape StageKind = "reshape"
	StageScale   StageKind = "scale"
	StageAugment StageKind = "augment"
	StagePredict StageKind = "predict"
)

// Stage is one tagged descriptor. Only the parameter block matching Kind
// is consulted.
type Stage struct {
	Kind StageKind

	// Load
	CropShape grid.Shape

	// Mask
	Horizon    *horizon.Horizon
	MaskRadius int

	// Reshape
	NewShape grid.Shape

	// Scale: fixed range when Max > Min, per-crop min/max otherwise.
	ScaleMin float64
	ScaleMax float64

	// Augment
	FlipCrossline bool
	NoiseSigma    float64
	Seed          int64
}

// item is what flows between stages: the data crop and an optional
// co-located label mask.
type item struct {
	crop grid.Crop
	mask *grid.Crop
}

// Runner binds a stage list to a volume and a predictor.
type Runner struct {
	vol       *volume.Volume
	predictor Predictor
	stages    []Stage
	// workers bounds concurrent crop extraction. Independent from the
	// batch orchestrator's cubes-per-batch bound; the two are configured
	// separately and never inferred from one another.
	workers int
}

func NewRunner(vol *volume.Volume, predictor Predictor, stages []Stage, workers int) (*Runner, error) {
	if len(stages) == 0 || stages[0].Kind != StageLoad {
		return nil, fmt.Errorf("pipeline must start with a load stage")
	}
	if workers <= 0 {
		workers = 1
	}
	for _, st := range stages {
		if st.Kind == StagePredict && predictor == nil {
			return nil, fmt.Errorf("pipeline has a predict stage but no predictor")
		}
	}
	return &Runner{vol: vol, predictor: predictor, stages: stages, workers: workers}, nil
}

// Run pushes every sample point through the stage list and hands the final
// crop to the assembler. Distinct crops have no ordering dependency, so
// they run in parallel; the assembler is order-independent by contract.
func (r *Runner) Run(ctx context.Context, points []grid.Point, asm *assemble.Assembler) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for pi, p := range points {
		pi, p := pi, p
		g.Go(func() error {
			it, err := r.execute(ctx, pi, p)
			if err != nil {
				return fmt.Errorf("sample point %v: %w", p, err)
			}
			if asm != nil {
				return asm.Add(it.crop)
			}
			return nil
		})
	}
	return g.Wait()
}

// Extract runs the stage list for one point without assembling, for
// training loops that consume (crop, mask) pairs directly.
func (r *Runner) Extract(ctx context.Context, index int, p grid.Point) (grid.Crop, *grid.Crop, error) {
	it, err := r.execute(ctx, index, p)
	if err != nil {
		return grid.Crop{}, nil, err
	}
	return it.crop, it.mask, nil
}

func (r *Runner) execute(ctx context.Context, index int, p grid.Point) (*item, error) {
	it := &item{}
	for si, st := range r.stages {
		if err := r.runStage(ctx, st, it, index, p); err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", si, st.Kind, err)
		}
	}
	return it, nil
}

func (r *Runner) runStage(ctx context.Context, st Stage, it *item, index int, p grid.Point) error {
	switch st.Kind {
	case StageLoad:
		crop, err := r.vol.ReadCrop(ctx, p, st.CropShape)
		if err != nil {
			return err
		}
		it.crop = crop
		return nil

	case StageMask:
		mask := buildMask(it.crop, st.Horizon, st.MaskRadius)
		it.mask = &mask
		return nil

	case StageReshape:
		if st.NewShape.Size() != it.crop.Shape.Size() {
			return fmt.Errorf("reshape %v does not preserve size of %v", st.NewShape, it.crop.Shape)
		}
		it.crop.Shape = st.NewShape
		if it.mask != nil {
			it.mask.Shape = st.NewShape
		}
		return nil

	case StageScale:
		scale(&it.crop, st.ScaleMin, st.ScaleMax)
		return nil

	case StageAugment:
		augment(&it.crop, it.mask, st, index)
		return nil

	case StagePredict:
		pred, err := r.predictor.Predict(ctx, it.crop)
		if err != nil {
			return err
		}
		if pred.Shape != it.crop.Shape {
			return fmt.Errorf("prediction shape %v differs from crop shape %v", pred.Shape, it.crop.Shape)
		}
		pred.Origin = it.crop.Origin
		it.crop = pred
		return nil

	default:
		return fmt.Errorf("unknown stage kind %q", st.Kind)
	}
}

// buildMask marks cells within radius of the horizon pick in each column.
func buildMask(crop grid.Crop, h *horizon.Horizon, radius int) grid.Crop {
	mask := grid.Crop{
		Origin: crop.Origin,
		Shape:  crop.Shape,
		Data:   make([]float32, crop.Shape.Size()),
	}
	if h == nil {
		return mask
	}
	for i := 0; i < crop.Shape[0]; i++ {
		for x := 0; x < crop.Shape[1]; x++ {
			gi, gx := crop.Origin[0]+i, crop.Origin[1]+x
			if gi >= h.InlineCount || gx >= h.CrosslineCount {
				continue
			}
			d := h.At(gi, gx)
			if d < 0 {
				continue
			}
			for z := 0; z < crop.Shape[2]; z++ {
				gz := crop.Origin[2] + z
				if abs(gz-d) <= radius {
					mask.Data[(i*crop.Shape[1]+x)*crop.Shape[2]+z] = 1
				}
			}
		}
	}
	return mask
}

func scale(crop *grid.Crop, lo, hi float64) {
	if hi <= lo {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, v := range crop.Data {
			lo = math.Min(lo, float64(v))
			hi = math.Max(hi, float64(v))
		}
	}
	span := hi - lo
	if span == 0 {
		for i := range crop.Data {
			crop.Data[i] = 0
		}
		return
	}
	for i, v := range crop.Data {
		crop.Data[i] = float32((float64(v) - lo) / span)
	}
}

// augment is deterministic per (seed, sample index) so a fixed seed
// reproduces a training run exactly.
func augment(crop *grid.Crop, mask *grid.Crop, st Stage, index int) {
	rng := rand.New(rand.NewSource(st.Seed + int64(index)))

	if st.FlipCrossline && rng.Intn(2) == 1 {
		flipCrossline(crop)
		if mask != nil {
			flipCrossline(mask)
		}
	}
	if st.NoiseSigma > 0 {
		for i := range crop.Data {
			crop.Data[i] += float32(rng.NormFloat64() * st.NoiseSigma)
		}
	}
}

func flipCrossline(crop *grid.Crop) {
	s := crop.Shape
	for i := 0; i < s[0]; i++ {
		for x := 0; x < s[1]/2; x++ {
			xr := s[1] - 1 - x
			for z := 0; z < s[2]; z++ {
				a := (i*s[1]+x)*s[2] + z
				b := (i*s[1]+xr)*s[2] + z
				crop.Data[a], crop.Data[b] = crop.Data[b], crop.Data[a]
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

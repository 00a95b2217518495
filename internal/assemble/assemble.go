// Package assemble reassembles a stream of predicted crops into one
// coherent volume. Crops arrive in arbitrary order, possibly from several
// goroutines; overlapping cells are resolved by a commutative, associative
// combine rule so the result is independent of arrival order.
package assemble

import (
	"sync"

	"github.com/seisvol/seisvol/internal/grid"
	"github.com/seisvol/seisvol/internal/metrics"
)

type CombineRule string

const (
	// RuleMean averages overlapping contributions. Default.
	RuleMean CombineRule = "mean"
	// RuleMax keeps the strongest contribution per cell.
	RuleMax CombineRule = "max"
)

// Result is the assembled volume over the requested extent. Cells never
// touched by any crop are zero.
type Result struct {
	Extent grid.Extent
	Data   []float32
}

func (r *Result) At(i, x, z int) float32 {
	s := r.Extent.Shape()
	return r.Data[((i-r.Extent.Lo[0])*s[1]+(x-r.Extent.Lo[1]))*s[2]+(z-r.Extent.Lo[2])]
}

// Assembler accumulates crops into sum and count buffers. Accumulation is
// sum-based rather than running-replace, which is what makes the result
// order-independent.
type Assembler struct {
	mu     sync.Mutex
	extent grid.Extent
	rule   CombineRule

	sum   []float64
	count []int32
}

func New(extent grid.Extent, rule CombineRule) *Assembler {
	if rule == "" {
		rule = RuleMean
	}
	return &Assembler{
		extent: extent,
		rule:   rule,
		sum:    make([]float64, extent.Size()),
		count:  make([]int32, extent.Size()),
	}
}

// Add absorbs one predicted crop at its origin offset. Safe to call from
// multiple goroutines. Crops extending outside the extent are rejected
// before any cell is touched.
func (a *Assembler) Add(crop grid.Crop) error {
	for ax := 0; ax < 3; ax++ {
		if crop.Origin[ax] < a.extent.Lo[ax] || crop.Origin[ax]+crop.Shape[ax] > a.extent.Hi[ax] {
			return &grid.InvalidExtentError{
				Axis:    ax,
				Request: crop.Origin[ax] + crop.Shape[ax],
				Limit:   a.extent.Hi[ax],
				Reason:  "crop outside assembly extent",
			}
		}
	}

	shape := a.extent.Shape()
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < crop.Shape[0]; i++ {
		for x := 0; x < crop.Shape[1]; x++ {
			for z := 0; z < crop.Shape[2]; z++ {
				v := float64(crop.At(i, x, z))
				gi := crop.Origin[0] + i - a.extent.Lo[0]
				gx := crop.Origin[1] + x - a.extent.Lo[1]
				gz := crop.Origin[2] + z - a.extent.Lo[2]
				c := (gi*shape[1]+gx)*shape[2] + gz

				switch a.rule {
				case RuleMax:
					if a.count[c] == 0 || v > a.sum[c] {
						a.sum[c] = v
					}
				default:
					a.sum[c] += v
				}
				a.count[c]++
			}
		}
	}

	metrics.CropsAssembled.Inc()
	return nil
}

// Finalize applies the combine rule's normalization and returns the
// assembled volume. The assembler can keep absorbing crops afterwards;
// Finalize reads a consistent snapshot.
func (a *Assembler) Finalize() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := &Result{
		Extent: a.extent,
		Data:   make([]float32, len(a.sum)),
	}
	for c, s := range a.sum {
		if a.count[c] == 0 {
			continue
		}
		switch a.rule {
		case RuleMax:
			out.Data[c] = float32(s)
		default:
			out.Data[c] = float32(s / float64(a.count[c]))
		}
	}
	return out
}

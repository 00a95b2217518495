// Package horizon converts an assembled probability volume into a labeled
// surface: one depth pick per (inline, crossline) column. A stateless
// transform over the assembler's output, plus the persistence format for
// picked surfaces.
package horizon

import (
	"bufio"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/seisvol/seisvol/internal/assemble"
	"github.com/seisvol/seisvol/pkg/logger"
)

type PickMode string

const (
	// PickFirst takes the shallowest crossing of the threshold.
	PickFirst PickMode = "first"
	// PickStrongest takes the depth of the largest value at or above the
	// threshold.
	PickStrongest PickMode = "strongest"
)

type ExtractOptions struct {
	Threshold    float64
	Mode         PickMode
	MinComponent int // connected components smaller than this are dropped
}

// Horizon is a surface over the grid: Depth[i*CrosslineCount+x] is the
// picked depth in grid units, or -1 where no pick survived.
type Horizon struct {
	InlineCount    int
	CrosslineCount int
	Depth          []int
}

func (h *Horizon) At(i, x int) int {
	return h.Depth[i*h.CrosslineCount+x]
}

func (h *Horizon) PickCount() int {
	n := 0
	for _, d := range h.Depth {
		if d >= 0 {
			n++
		}
	}
	return n
}

// Extract thresholds the assembled volume column by column, then discards
// picks belonging to connected surface components smaller than
// MinComponent (4-neighborhood over the inline/crossline plane).
func Extract(res *assemble.Result, opts ExtractOptions) *Horizon {
	if opts.Mode == "" {
		opts.Mode = PickStrongest
	}
	shape := res.Extent.Shape()
	h := &Horizon{
		InlineCount:    shape[0],
		CrosslineCount: shape[1],
		Depth:          make([]int, shape[0]*shape[1]),
	}

	for i := 0; i < shape[0]; i++ {
		for x := 0; x < shape[1]; x++ {
			h.Depth[i*shape[1]+x] = pickColumn(res, i, x, opts)
		}
	}

	dropped := dropSmallComponents(h, opts.MinComponent)
	logger.Debug("Horizon extracted",
		zap.Float64("threshold", opts.Threshold),
		zap.String("mode", string(opts.Mode)),
		zap.Int("picks", h.PickCount()),
		zap.Int("dropped_cells", dropped),
	)
	return h
}

func pickColumn(res *assemble.Result, i, x int, opts ExtractOptions) int {
	lo, hi := res.Extent.Lo, res.Extent.Hi
	best, bestVal := -1, 0.0
	for z := lo[2]; z < hi[2]; z++ {
		v := float64(res.At(lo[0]+i, lo[1]+x, z))
		if v < opts.Threshold {
			continue
		}
		if opts.Mode == PickFirst {
			return z - lo[2]
		}
		if best == -1 || v > bestVal {
			best, bestVal = z-lo[2], v
		}
	}
	return best
}

// dropSmallComponents flood-fills picked cells and clears components below
// the minimum size. Returns how many cells were cleared.
func dropSmallComponents(h *Horizon, minSize int) int {
	if minSize <= 1 {
		return 0
	}
	ni, nx := h.InlineCount, h.CrosslineCount
	visited := make([]bool, ni*nx)
	dropped := 0

	for start := range h.Depth {
		if visited[start] || h.Depth[start] < 0 {
			continue
		}

		var component []int
		stack := []int{start}
		visited[start] = true
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, c)

			i, x := c/nx, c%nx
			for _, n := range [][2]int{{i - 1, x}, {i + 1, x}, {i, x - 1}, {i, x + 1}} {
				if n[0] < 0 || n[0] >= ni || n[1] < 0 || n[1] >= nx {
					continue
				}
				nc := n[0]*nx + n[1]
				if !visited[nc] && h.Depth[nc] >= 0 {
					visited[nc] = true
					stack = append(stack, nc)
				}
			}
		}

		if len(component) < minSize {
			for _, c := range component {
				h.Depth[c] = -1
			}
			dropped += len(component)
		}
	}
	return dropped
}

// Write persists the horizon as ordered "inline crossline depth" triples,
// one per line, raster order, cells without a pick omitted.
func Write(w io.Writer, h *Horizon) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < h.InlineCount; i++ {
		for x := 0; x < h.CrosslineCount; x++ {
			d := h.At(i, x)
			if d < 0 {
				continue
			}
			if _, err := fmt.Fprintf(bw, "%d %d %d\n", i, x, d); err != nil {
				return fmt.Errorf("failed to write horizon: %w", err)
			}
		}
	}
	return bw.Flush()
}

// Read parses the triple format back into a horizon of the given shape.
func Read(r io.Reader, inlineCount, crosslineCount int) (*Horizon, error) {
	h := &Horizon{
		InlineCount:    inlineCount,
		CrosslineCount: crosslineCount,
		Depth:          make([]int, inlineCount*crosslineCount),
	}
	for c := range h.Depth {
		h.Depth[c] = -1
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		var i, x, d int
		if _, err := fmt.Sscanf(sc.Text(), "%d %d %d", &i, &x, &d); err != nil {
			return nil, fmt.Errorf("horizon line %d: %w", line, err)
		}
		if i < 0 || i >= inlineCount || x < 0 || x >= crosslineCount {
			return nil, fmt.Errorf("horizon line %d: cell (%d, %d) outside %dx%d grid",
				line, i, x, inlineCount, crosslineCount)
		}
		h.Depth[i*crosslineCount+x] = d
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read horizon: %w", err)
	}
	return h, nil
}

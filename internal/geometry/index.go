// Package geometry derives the acquisition grid of a trace container:
// which (inline, crossline) cells carry a trace, where that trace lives in
// the file, and per-cell summary statistics. The index is built once per
// container and never mutated afterwards.
package geometry

import (
	"fmt"
	"io"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/seisvol/seisvol/internal/metrics"
	"github.com/seisvol/seisvol/internal/segy"
	"github.com/seisvol/seisvol/pkg/logger"
)

// TraceStats summarizes one trace's amplitudes.
type TraceStats struct {
	Min  float64
	Max  float64
	Mean float64
	RMS  float64
}

// Index maps grid cells to trace offsets. Cells with no trace, or whose
// trace is entirely zero amplitude, are marked dead in the zero-trace mask.
type Index struct {
	Path string

	InlineMin     int
	InlineStep    int
	InlineCount   int
	CrosslineMin  int
	CrosslineStep int
	CrosslineCount int

	NumSamples     int
	SampleInterval int // microseconds

	offsets []int64 // cell -> trace offset, -1 when absent
	stats   []TraceStats
	dead    []bool
}

type scanned struct {
	inline    int
	crossline int
	offset    int64
	stats     TraceStats
	zero      bool
}

// Build scans the whole container once and assembles the grid. The source
// container is not modified. Fails with segy.MalformedHeaderError when the
// declared index fields do not form a regular grid.
func Build(r *segy.Reader) (*Index, error) {
	r.Rewind()

	var traces []scanned
	inlines := map[int]struct{}{}
	crosslines := map[int]struct{}{}

	for {
		tr, off, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		metrics.TracesRead.Inc()

		st, zero := summarize(tr.Samples)
		traces = append(traces, scanned{
			inline:    tr.Header.Inline,
			crossline: tr.Header.Crossline,
			offset:    off,
			stats:     st,
			zero:      zero,
		})
		inlines[tr.Header.Inline] = struct{}{}
		crosslines[tr.Header.Crossline] = struct{}{}
	}

	if len(traces) == 0 {
		return nil, &segy.MalformedHeaderError{Path: r.Path(), Field: "traces", Reason: "container holds no traces"}
	}

	ilMin, ilStep, ilCount, err := axis(r.Path(), "inline", inlines)
	if err != nil {
		return nil, err
	}
	xlMin, xlStep, xlCount, err := axis(r.Path(), "crossline", crosslines)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		Path:           r.Path(),
		InlineMin:      ilMin,
		InlineStep:     ilStep,
		InlineCount:    ilCount,
		CrosslineMin:   xlMin,
		CrosslineStep:  xlStep,
		CrosslineCount: xlCount,
		NumSamples:     r.NumSamples,
		SampleInterval: r.SampleInterval,
		offsets:        make([]int64, ilCount*xlCount),
		stats:          make([]TraceStats, ilCount*xlCount),
		dead:           make([]bool, ilCount*xlCount),
	}
	for i := range idx.offsets {
		idx.offsets[i] = -1
		idx.dead[i] = true
	}

	for _, tr := range traces {
		cell, err := idx.cell(tr.inline, tr.crossline)
		if err != nil {
			return nil, err
		}
		if idx.offsets[cell] != -1 {
			return nil, &segy.MalformedHeaderError{
				Path: r.Path(), Field: "inline/crossline",
				Reason: fmt.Sprintf("duplicate trace at (%d, %d)", tr.inline, tr.crossline),
			}
		}
		idx.offsets[cell] = tr.offset
		idx.stats[cell] = tr.stats
		idx.dead[cell] = tr.zero
	}

	logger.Info("Geometry index built",
		zap.String("path", r.Path()),
		zap.Int("traces", len(traces)),
		zap.Int("inlines", ilCount),
		zap.Int("crosslines", xlCount),
		zap.Int("dead_cells", idx.DeadCount()),
	)
	return idx, nil
}

// axis validates that the observed coordinate values form a regular,
// possibly sparse, arithmetic progression.
func axis(path, field string, values map[int]struct{}) (min, step, count int, err error) {
	sorted := make([]int, 0, len(values))
	for v := range values {
		sorted = append(sorted, v)
	}
	sort.Ints(sorted)

	min = sorted[0]
	if len(sorted) == 1 {
		return min, 1, 1, nil
	}

	step = sorted[1] - sorted[0]
	for i := 2; i < len(sorted); i++ {
		d := sorted[i] - sorted[i-1]
		step = gcd(step, d)
	}
	if step <= 0 {
		return 0, 0, 0, &segy.MalformedHeaderError{
			Path: path, Field: field,
			Reason: fmt.Sprintf("values do not form a regular grid (derived step %d)", step),
		}
	}

	count = (sorted[len(sorted)-1]-min)/step + 1
	return min, step, count, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func (idx *Index) cell(inline, crossline int) (int, error) {
	i := inline - idx.InlineMin
	x := crossline - idx.CrosslineMin
	if i < 0 || i%idx.InlineStep != 0 || x < 0 || x%idx.CrosslineStep != 0 {
		return 0, &segy.MalformedHeaderError{
			Path: idx.Path, Field: "inline/crossline",
			Reason: fmt.Sprintf("coordinate (%d, %d) off the inferred grid", inline, crossline),
		}
	}
	i /= idx.InlineStep
	x /= idx.CrosslineStep
	if i >= idx.InlineCount || x >= idx.CrosslineCount {
		return 0, &segy.MalformedHeaderError{
			Path: idx.Path, Field: "inline/crossline",
			Reason: fmt.Sprintf("coordinate (%d, %d) outside the inferred extent", inline, crossline),
		}
	}
	return i*idx.CrosslineCount + x, nil
}

// OffsetAt returns the trace file offset for grid cell (i, x) in grid
// units (0-based, step-normalized). ok is false for absent traces.
func (idx *Index) OffsetAt(i, x int) (off int64, ok bool) {
	off = idx.offsets[i*idx.CrosslineCount+x]
	return off, off != -1
}

// StatsAt returns the summary statistics for grid cell (i, x).
func (idx *Index) StatsAt(i, x int) TraceStats {
	return idx.stats[i*idx.CrosslineCount+x]
}

// Dead reports whether cell (i, x) has no live data: no trace at all, or
// a trace whose every sample is zero.
func (idx *Index) Dead(i, x int) bool {
	return idx.dead[i*idx.CrosslineCount+x]
}

func (idx *Index) DeadCount() int {
	n := 0
	for _, d := range idx.dead {
		if d {
			n++
		}
	}
	return n
}

func summarize(samples []float32) (TraceStats, bool) {
	st := TraceStats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum, sumSq float64
	zero := true
	for _, s := range samples {
		v := float64(s)
		if v != 0 {
			zero = false
		}
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		sum += v
		sumSq += v * v
	}
	n := float64(len(samples))
	if n > 0 {
		st.Mean = sum / n
		st.RMS = math.Sqrt(sumSq / n)
	}
	if zero {
		st.Min, st.Max = 0, 0
	}
	return st, zero
}

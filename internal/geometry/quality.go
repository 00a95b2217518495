package geometry

import "math"

// QualityMap is a per-cell data reliability score over the acquisition
// grid, NaN where a cell has no live data. Derived from the index on
// demand; callers get a fresh copy every time.
type QualityMap struct {
	InlineCount    int
	CrosslineCount int
	Values         []float64 // row-major, inline-major
}

func (q *QualityMap) At(i, x int) float64 {
	return q.Values[i*q.CrosslineCount+x]
}

func (q *QualityMap) Dead(i, x int) bool {
	return math.IsNaN(q.At(i, x))
}

// Quality computes the coverage map from trace statistics: amplitude
// variance per cell normalized by the largest variance over live cells,
// so scores land in (0, 1]. A flat but non-zero trace scores 0.
func (idx *Index) Quality() *QualityMap {
	q := &QualityMap{
		InlineCount:    idx.InlineCount,
		CrosslineCount: idx.CrosslineCount,
		Values:         make([]float64, idx.InlineCount*idx.CrosslineCount),
	}

	maxVar := 0.0
	variances := make([]float64, len(q.Values))
	for c := range q.Values {
		if idx.dead[c] {
			variances[c] = math.NaN()
			continue
		}
		st := idx.stats[c]
		v := st.RMS*st.RMS - st.Mean*st.Mean
		if v < 0 {
			v = 0 // rounding can push the difference slightly negative
		}
		variances[c] = v
		if v > maxVar {
			maxVar = v
		}
	}

	for c, v := range variances {
		switch {
		case math.IsNaN(v):
			q.Values[c] = math.NaN()
		case maxVar == 0:
			q.Values[c] = 0
		default:
			q.Values[c] = v / maxVar
		}
	}
	return q
}

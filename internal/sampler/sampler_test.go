package sampler

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/seisvol/seisvol/internal/geometry"
	"github.com/seisvol/seisvol/internal/grid"
)

func qualityMap(ni, nx int, at func(i, x int) float64) *geometry.QualityMap {
	q := &geometry.QualityMap{
		InlineCount:    ni,
		CrosslineCount: nx,
		Values:         make([]float64, ni*nx),
	}
	for i := 0; i < ni; i++ {
		for x := 0; x < nx; x++ {
			q.Values[i*nx+x] = at(i, x)
		}
	}
	return q
}

func TestSampleCarcassExcludesDeadCells(t *testing.T) {
	q := qualityMap(20, 20, func(i, x int) float64 {
		if (i+x)%3 == 0 {
			return math.NaN()
		}
		return 1
	})

	points, err := SampleCarcass(q, 1, 42)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(points) == 0 {
		t.Fatal("expected a non-empty carcass")
	}
	for _, p := range points {
		if q.Dead(p[0], p[1]) {
			t.Errorf("dead cell (%d, %d) appears in carcass", p[0], p[1])
		}
	}
}

func TestSampleCarcassDeterministicPerSeed(t *testing.T) {
	q := qualityMap(30, 30, func(i, x int) float64 {
		return float64((i*7+x*3)%10) / 10
	})

	a, err := SampleCarcass(q, 5, 7)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	b, err := SampleCarcass(q, 5, 7)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed should reproduce the same carcass")
	}

	c, err := SampleCarcass(q, 5, 8)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds should not reproduce the same carcass")
	}
}

func TestSampleCarcassRespectsFrequency(t *testing.T) {
	q := qualityMap(40, 40, func(i, x int) float64 { return 1 })

	points, err := SampleCarcass(q, 10, 1)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	for _, p := range points {
		if p[0]%10 != 0 && p[1]%10 != 0 {
			t.Errorf("point (%d, %d) is off the carcass lines", p[0], p[1])
		}
	}
}

func TestMakeGridTilesWithOverlap(t *testing.T) {
	extent := grid.NewExtent(grid.Point{0, 0, 0}, grid.Point{100, 100, 50})
	points, err := MakeGrid(extent, grid.Shape{1, 32, 32}, grid.Shape{1, 16, 16})
	if err != nil {
		t.Fatalf("make grid: %v", err)
	}

	// Axis origins: inline 0..99 step 1; crossline 0,16,32,48,64,68;
	// depth 0,16,18.
	if want := 100 * 6 * 3; len(points) != want {
		t.Fatalf("grid has %d origins, want %d", len(points), want)
	}

	covered := make([]bool, 100*100*50)
	for _, p := range points {
		for x := p[1]; x < p[1]+32; x++ {
			for z := p[2]; z < p[2]+32; z++ {
				if x >= 100 || z >= 50 {
					t.Fatalf("crop at %v exceeds the extent", p)
				}
				covered[(p[0]*100+x)*50+z] = true
			}
		}
	}
	for c, ok := range covered {
		if !ok {
			t.Fatalf("cell %d not covered, tiling has gaps", c)
		}
	}
}

func TestMakeGridSingleCrop(t *testing.T) {
	extent := grid.NewExtent(grid.Point{0, 0, 0}, grid.Point{8, 8, 8})
	points, err := MakeGrid(extent, grid.Shape{8, 8, 8}, grid.Shape{0, 0, 0})
	if err != nil {
		t.Fatalf("make grid: %v", err)
	}
	if len(points) != 1 || points[0] != (grid.Point{0, 0, 0}) {
		t.Errorf("points = %v, want exactly the origin", points)
	}
}

func TestMakeGridOffsetExtent(t *testing.T) {
	extent := grid.NewExtent(grid.Point{10, 0, 0}, grid.Point{20, 4, 4})
	points, err := MakeGrid(extent, grid.Shape{5, 4, 4}, grid.Shape{0, 0, 0})
	if err != nil {
		t.Fatalf("make grid: %v", err)
	}
	for _, p := range points {
		if p[0] < 10 || p[0]+5 > 20 {
			t.Errorf("origin %v outside the extent", p)
		}
	}
}

func TestMakeGridRejectsOversizedCrop(t *testing.T) {
	extent := grid.NewExtent(grid.Point{0, 0, 0}, grid.Point{10, 10, 10})

	_, err := MakeGrid(extent, grid.Shape{11, 4, 4}, grid.Shape{0, 0, 0})
	var extErr *grid.InvalidExtentError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want InvalidExtentError", err)
	}
	if extErr.Axis != 0 {
		t.Errorf("offending axis = %d, want 0", extErr.Axis)
	}
}

// Package grid holds the spatial coordinate types shared by the volume
// store, the sampler and the assembler. Axis order is always
// (inline, crossline, depth).
package grid

import "fmt"

type Point [3]int

type Shape [3]int

func (s Shape) Size() int {
	return s[0] * s[1] * s[2]
}

// Extent is a half-open coordinate range per axis: [Lo, Hi).
type Extent struct {
	Lo Point
	Hi Point
}

func NewExtent(lo, hi Point) Extent {
	return Extent{Lo: lo, Hi: hi}
}

func (e Extent) Shape() Shape {
	return Shape{e.Hi[0] - e.Lo[0], e.Hi[1] - e.Lo[1], e.Hi[2] - e.Lo[2]}
}

func (e Extent) Size() int {
	return e.Shape().Size()
}

func (e Extent) Contains(p Point) bool {
	for ax := 0; ax < 3; ax++ {
		if p[ax] < e.Lo[ax] || p[ax] >= e.Hi[ax] {
			return false
		}
	}
	return true
}

// Crop is a fixed-shape sub-volume located at Origin within some extent.
// Data is laid out inline-major: index = (i*shape[1]+x)*shape[2]+z.
type Crop struct {
	Origin Point
	Shape  Shape
	Data   []float32
}

func (c Crop) At(i, x, z int) float32 {
	return c.Data[(i*c.Shape[1]+x)*c.Shape[2]+z]
}

// InvalidExtentError reports a crop shape or coordinate request that does
// not fit the target extent. Pure validation failure, no work is attempted.
type InvalidExtentError struct {
	Axis    int
	Request int
	Limit   int
	Reason  string
}

func (e *InvalidExtentError) Error() string {
	return fmt.Sprintf("invalid extent on axis %d: %s (request %d, limit %d)",
		e.Axis, e.Reason, e.Request, e.Limit)
}

package models

import (
	"fmt"
	"strings"
)

// Shape holds the extent of a grid along each axis, fastest-varying axis first.
// A 3-D shape {w, h, d} lays its data out as z*w*h + y*w + x.
type Shape []int

// Len returns the number of pixels covered by the shape.
func (s Shape) Len() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, e := range s {
		n *= e
	}
	return n
}

// Equal reports whether two shapes have identical dimensionality and extents.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Strides returns the offset in the flat data array of one step along each axis.
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	step := 1
	for i, e := range s {
		strides[i] = step
		step *= e
	}
	return strides
}

// Coords writes the per-axis coordinates of flat index idx into dst and returns it.
func (s Shape) Coords(idx int, dst []int) []int {
	if cap(dst) < len(s) {
		dst = make([]int, len(s))
	}
	dst = dst[:len(s)]
	for i, e := range s {
		dst[i] = idx % e
		idx /= e
	}
	return dst
}

// Index converts per-axis coordinates into a flat index, or -1 when the
// coordinates fall outside the grid.
func (s Shape) Index(coords []int) int {
	if len(coords) != len(s) {
		return -1
	}
	idx := 0
	step := 1
	for i, e := range s {
		c := coords[i]
		if c < 0 || c >= e {
			return -1
		}
		idx += c * step
		step *= e
	}
	return idx
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, e := range s {
		parts[i] = fmt.Sprint(e)
	}
	return strings.Join(parts, "x")
}

// LabelGrid is one observer's segmentation: a class label per pixel.
type LabelGrid struct {
	Shape Shape
	Data  []uint8
}

// NewLabelGrid allocates a zero-filled label grid.
func NewLabelGrid(shape Shape) *LabelGrid {
	return &LabelGrid{
		Shape: shape.Clone(),
		Data:  make([]uint8, shape.Len()),
	}
}

// NewLabelGridFrom wraps existing label data. The slice is not copied.
func NewLabelGridFrom(shape Shape, data []uint8) *LabelGrid {
	return &LabelGrid{Shape: shape.Clone(), Data: data}
}

// Clone returns a deep copy of the grid.
func (g *LabelGrid) Clone() *LabelGrid {
	return &LabelGrid{
		Shape: g.Shape.Clone(),
		Data:  append([]uint8(nil), g.Data...),
	}
}

// Max returns the largest label present in the grid.
func (g *LabelGrid) Max() uint8 {
	var m uint8
	for _, v := range g.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// ProbabilityGrid holds one floating point value per pixel, typically the
// probability of a single class.
type ProbabilityGrid struct {
	Shape Shape
	Data  []float64
}

// NewProbabilityGrid allocates a zero-filled probability grid.
func NewProbabilityGrid(shape Shape) *ProbabilityGrid {
	return &ProbabilityGrid{
		Shape: shape.Clone(),
		Data:  make([]float64, shape.Len()),
	}
}

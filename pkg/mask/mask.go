// Package mask derives the disagreement mask that restricts label fusion to
// the pixels where observers do not all agree.
package mask

import (
	"labelfusion/internal/models"
)

// Build returns a mask that is true wherever the observers report different
// labels. With a single observer the mask is false everywhere.
//
// All observers must share the shape of observers[0]; callers validate this.
func Build(observers []*models.LabelGrid) *models.Mask {
	m := models.NewMask(observers[0].Shape)
	if len(observers) < 2 {
		return m
	}
	ref := observers[0].Data
	for i := range m.Data {
		v := ref[i]
		for _, o := range observers[1:] {
			if o.Data[i] != v {
				m.Data[i] = true
				break
			}
		}
	}
	return m
}

// BuildDilated builds the disagreement mask and dilates it by radius.
func BuildDilated(observers []*models.LabelGrid, radius int) *models.Mask {
	return Dilate(Build(observers), radius)
}

// Dilate returns the union of m translated by every offset of a ball of the
// given radius. The ball contains the offsets o with sum(o_k^2) <= radius^2,
// which in 2-D with radius 1 is the 4-connected cross. This Euclidean ball is
// the chosen convention; box or rounded elements of other toolkits can cover
// more offsets at the same radius. A radius of zero or less returns a copy of m.
func Dilate(m *models.Mask, radius int) *models.Mask {
	out := m.Clone()
	if radius <= 0 {
		return out
	}

	offsets := BallOffsets(len(m.Shape), radius)
	shape := m.Shape
	coords := make([]int, len(shape))
	shifted := make([]int, len(shape))

	for i, set := range m.Data {
		if !set {
			continue
		}
		coords = shape.Coords(i, coords)
		for _, off := range offsets {
			for k := range coords {
				shifted[k] = coords[k] + off[k]
			}
			if j := shape.Index(shifted); j >= 0 {
				out.Data[j] = true
			}
		}
	}
	return out
}

// BallOffsets enumerates the offsets of an N-dimensional ball structuring
// element, excluding the origin.
func BallOffsets(dims, radius int) [][]int {
	if dims == 0 || radius <= 0 {
		return nil
	}
	var offsets [][]int
	cur := make([]int, dims)
	for k := range cur {
		cur[k] = -radius
	}
	r2 := radius * radius
	for {
		d2 := 0
		zero := true
		for _, c := range cur {
			d2 += c * c
			if c != 0 {
				zero = false
			}
		}
		if d2 <= r2 && !zero {
			offsets = append(offsets, append([]int(nil), cur...))
		}

		// advance odometer
		k := 0
		for k < dims {
			cur[k]++
			if cur[k] <= radius {
				break
			}
			cur[k] = -radius
			k++
		}
		if k == dims {
			return offsets
		}
	}
}

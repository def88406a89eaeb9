package gridio

import (
	"fmt"

	"labelfusion/internal/models"
)

// Relabel replaces every label listed in from by the label at the same
// position in to, in place. Labels not listed are kept.
func Relabel(g *models.LabelGrid, from, to []int) error {
	if len(from) != len(to) {
		return fmt.Errorf("got %d input labels and %d output labels", len(from), len(to))
	}
	if len(from) == 0 {
		return nil
	}

	var lut [256]uint8
	var listed [256]bool
	for v := range lut {
		lut[v] = uint8(v)
	}
	for i, v := range from {
		if v < 0 || v > 255 || to[i] < 0 || to[i] > 255 {
			return fmt.Errorf("relabeling %d to %d leaves the 8-bit range", v, to[i])
		}
		if listed[v] {
			return fmt.Errorf("input label %d is listed twice", v)
		}
		listed[v] = true
		lut[v] = uint8(to[i])
	}

	for i, v := range g.Data {
		g.Data[i] = lut[v]
	}
	return nil
}

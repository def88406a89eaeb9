package gridio

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"labelfusion/internal/models"
)

// Palette returns one colour per class. Class 0 is black, the others get
// evenly spaced hues of equal lightness.
func Palette(numClasses int) []color.RGBA {
	out := make([]color.RGBA, numClasses)
	if numClasses == 0 {
		return out
	}
	out[0] = color.RGBA{A: 255}
	for c := 1; c < numClasses; c++ {
		hue := 360 * float64(c-1) / float64(numClasses-1)
		r, g, b := colorful.Hcl(hue, 0.6, 0.65).Clamped().RGB255()
		out[c] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

// WriteLabelPreview saves a colour rendering of the labels, enlarged by scale
// with nearest-neighbour sampling. For 3-D grids the middle slice is used.
func (w *Writer) WriteLabelPreview(path string, g *models.LabelGrid, numClasses, scale int) error {
	width, height, depth, err := planes(g.Shape)
	if err != nil {
		return err
	}
	if m := int(g.Max()); m >= numClasses {
		return fmt.Errorf("label %d has no colour with %d classes", m, numClasses)
	}

	palette := Palette(numClasses)
	plane := width * height
	data := g.Data[(depth/2)*plane : (depth/2+1)*plane]

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, palette[data[y*width+x]])
		}
	}

	var out image.Image = img
	if scale > 1 {
		out = imaging.Resize(img, width*scale, height*scale, imaging.NearestNeighbor)
	}
	return w.saveSlices(path, 1, func(int) image.Image { return out })
}

package gridio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"labelfusion/internal/models"
)

// Writer saves grids to disk. A 2-D grid is written to the image file at the
// given path, a 3-D grid to a directory of numbered PNG slices.
type Writer struct {
	// Compress selects the strongest PNG compression.
	Compress bool
}

func (w *Writer) encodeOptions() []imaging.EncodeOption {
	level := png.DefaultCompression
	if w.Compress {
		level = png.BestCompression
	}
	return []imaging.EncodeOption{imaging.PNGCompressionLevel(level)}
}

// WriteLabelGrid saves labels as 8-bit grayscale images.
func (w *Writer) WriteLabelGrid(path string, g *models.LabelGrid) error {
	width, height, depth, err := planes(g.Shape)
	if err != nil {
		return err
	}
	plane := width * height
	return w.saveSlices(path, depth, func(z int) image.Image {
		img := image.NewGray(image.Rect(0, 0, width, height))
		copy(img.Pix, g.Data[z*plane:(z+1)*plane])
		return img
	})
}

// WriteProbabilityGrid saves probabilities as 16-bit grayscale images, or as
// raw little-endian float32 values when path ends in .bin.
func (w *Writer) WriteProbabilityGrid(path string, g *models.ProbabilityGrid) error {
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		return writeFloat32(path, g.Data)
	}
	width, height, depth, err := planes(g.Shape)
	if err != nil {
		return err
	}
	plane := width * height
	return w.saveSlices(path, depth, func(z int) image.Image {
		return floatToImage(g.Data[z*plane:(z+1)*plane], width, height)
	})
}

// saveSlices writes a single image to path when depth is 1, and otherwise
// one PNG per slice into the directory path.
func (w *Writer) saveSlices(path string, depth int, slice func(z int) image.Image) error {
	if depth == 1 {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := imaging.Save(slice(0), path, w.encodeOptions()...); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
		return nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create slice directory: %w", err)
	}
	for z := 0; z < depth; z++ {
		filename := filepath.Join(path, fmt.Sprintf("%03d.png", z))
		if err := imaging.Save(slice(z), filename, w.encodeOptions()...); err != nil {
			return fmt.Errorf("failed to save slice %d: %w", z, err)
		}
	}
	return nil
}

// planes splits a 2-D or 3-D shape into its slice size and slice count.
func planes(shape models.Shape) (width, height, depth int, err error) {
	switch len(shape) {
	case 2:
		return shape[0], shape[1], 1, nil
	case 3:
		return shape[0], shape[1], shape[2], nil
	}
	return 0, 0, 0, fmt.Errorf("only 2-D and 3-D grids can be saved, got shape %v", shape)
}

// floatToImage converts values in [0, 1] to a 16-bit grayscale image.
func floatToImage(data []float64, width, height int) image.Image {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := math.Min(1, math.Max(0, data[y*width+x]))
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(v * 65535.0))})
		}
	}
	return img
}

// writeFloat32 stores values as consecutive little-endian float32 numbers.
func writeFloat32(path string, values []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create binary file: %w", err)
	}

	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	buf := bufio.NewWriter(file)
	if err := binary.Write(buf, binary.LittleEndian, out); err != nil {
		file.Close()
		return fmt.Errorf("failed to write binary data: %w", err)
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write binary data: %w", err)
	}
	return file.Close()
}

// Package gridio reads and writes label grids, probability grids and
// confusion reports.
//
// A 2-D grid is a single image. A 3-D grid is a directory of equally sized
// slice images ordered by the number in their file names. Shapes are
// fastest axis first: {width, height} or {width, height, depth}.
package gridio

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"labelfusion/internal/models"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true,
}

// ReadLabelGrid loads a label grid from an image or a slice directory. The
// label of a pixel is its 8-bit intensity.
func ReadLabelGrid(path string) (*models.LabelGrid, error) {
	images, err := loadImages(path)
	if err != nil {
		return nil, err
	}
	shape := shapeOf(images)
	g := models.NewLabelGrid(shape)
	plane := shape[0] * shape[1]
	for z, img := range images {
		labelsFromImage(img, g.Data[z*plane:(z+1)*plane])
	}
	return g, nil
}

// ReadProbabilityGrid loads a probability grid from an image or a slice
// directory, scaling 16-bit intensities to [0, 1].
func ReadProbabilityGrid(path string) (*models.ProbabilityGrid, error) {
	images, err := loadImages(path)
	if err != nil {
		return nil, err
	}
	shape := shapeOf(images)
	g := models.NewProbabilityGrid(shape)
	plane := shape[0] * shape[1]
	for z, img := range images {
		imageToFloat(img, g.Data[z*plane:(z+1)*plane])
	}
	return g, nil
}

// loadImages returns the single image at path, or the sorted slices when
// path is a directory. All slices must have the same size.
func loadImages(path string) ([]image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", path, err)
	}
	if !info.IsDir() {
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", path, err)
		}
		return []image.Image{img}, nil
	}

	files, err := sliceFiles(path)
	if err != nil {
		return nil, err
	}

	var images []image.Image
	var size image.Point
	for _, name := range files {
		img, err := imaging.Open(filepath.Join(path, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		// All slices must share the size of the first one
		if len(images) == 0 {
			size = img.Bounds().Size()
		} else if img.Bounds().Size() != size {
			return nil, fmt.Errorf("slice %s is %v, expected %v", name, img.Bounds().Size(), size)
		}
		images = append(images, img)
	}
	return images, nil
}

// sliceFiles lists the image files in dir ordered by the number embedded in
// their names, then by name.
func sliceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}

	sort.Slice(files, func(i, j int) bool {
		numI, numJ := extractNumber(files[i]), extractNumber(files[j])
		if numI != numJ {
			return numI < numJ
		}
		return files[i] < files[j]
	})
	return files, nil
}

// extractNumber returns the decimal digits of a file name read as one
// number, or 0 when there are none.
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	num, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return num
}

func shapeOf(images []image.Image) models.Shape {
	b := images[0].Bounds()
	if len(images) == 1 {
		return models.Shape{b.Dx(), b.Dy()}
	}
	return models.Shape{b.Dx(), b.Dy(), len(images)}
}

// labelsFromImage writes the 8-bit intensity of every pixel to dst.
func labelsFromImage(img image.Image, dst []uint8) {
	b := img.Bounds()
	width := b.Dx()
	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			off := gray.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst[y*width:(y+1)*width], gray.Pix[off:off+width])
		}
		return
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			dst[y*width+x] = uint8(r >> 8)
		}
	}
}

// imageToFloat writes the intensity of every pixel scaled to [0, 1] to dst.
func imageToFloat(img image.Image, dst []float64) {
	b := img.Bounds()
	width := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Convert 16-bit color to float64 (0-1 range)
			dst[y*width+x] = float64(r) / 65535.0
		}
	}
}

package mask

import (
	"testing"

	"labelfusion/internal/models"
)

func grid(shape models.Shape, data ...uint8) *models.LabelGrid {
	return models.NewLabelGridFrom(shape, data)
}

// TestBuild verifies the N-ary "not all equal" test
func TestBuild(t *testing.T) {
	shape := models.Shape{4, 1}
	observers := []*models.LabelGrid{
		grid(shape, 0, 1, 2, 1),
		grid(shape, 0, 1, 2, 0),
		grid(shape, 0, 0, 2, 1),
	}

	m := Build(observers)
	want := []bool{false, true, false, true}
	for i, w := range want {
		if m.Data[i] != w {
			t.Errorf("pixel %d: expected %v, got %v", i, w, m.Data[i])
		}
	}
	if m.Count() != 2 {
		t.Errorf("Expected 2 active pixels, got %d", m.Count())
	}
}

// TestBuildSingleObserver verifies that one observer always agrees with itself
func TestBuildSingleObserver(t *testing.T) {
	m := Build([]*models.LabelGrid{grid(models.Shape{3, 1}, 0, 1, 2)})
	if m.Count() != 0 {
		t.Errorf("Expected empty mask for a single observer, got %d active pixels", m.Count())
	}
}

// TestDilateSinglePixel verifies that radius 1 in 2-D adds the 4-connected neighbours
func TestDilateSinglePixel(t *testing.T) {
	shape := models.Shape{5, 5}
	m := models.NewMask(shape)
	m.Data[shape.Index([]int{2, 2})] = true

	d := Dilate(m, 1)

	if d.Count() != 5 {
		t.Fatalf("Expected 5 active pixels after dilation, got %d", d.Count())
	}
	for _, c := range [][]int{{2, 2}, {1, 2}, {3, 2}, {2, 1}, {2, 3}} {
		if !d.Data[shape.Index(c)] {
			t.Errorf("Expected pixel %v to be set", c)
		}
	}
	if d.Data[shape.Index([]int{1, 1})] {
		t.Errorf("Diagonal neighbour should not be set for radius 1")
	}
	if m.Count() != 1 {
		t.Errorf("Dilate must not modify its input")
	}
}

// TestDilateRadiusTwo verifies the Euclidean ball: radius 2 in 2-D is a
// 13-pixel diamond with the (1,1) diagonals but not the (2,1) knight moves
func TestDilateRadiusTwo(t *testing.T) {
	shape := models.Shape{7, 7}
	m := models.NewMask(shape)
	m.Data[shape.Index([]int{3, 3})] = true

	d := Dilate(m, 2)

	if d.Count() != 13 {
		t.Fatalf("Expected 13 active pixels after dilation, got %d", d.Count())
	}
	for _, c := range [][]int{{1, 3}, {5, 3}, {3, 1}, {3, 5}, {2, 2}, {4, 4}} {
		if !d.Data[shape.Index(c)] {
			t.Errorf("Expected pixel %v to be set", c)
		}
	}
	for _, c := range [][]int{{1, 2}, {5, 4}, {1, 1}} {
		if d.Data[shape.Index(c)] {
			t.Errorf("Pixel %v lies outside the ball", c)
		}
	}
}

// TestDilateBorder verifies that offsets falling outside the grid are dropped
func TestDilateBorder(t *testing.T) {
	shape := models.Shape{3, 3}
	m := models.NewMask(shape)
	m.Data[0] = true

	d := Dilate(m, 1)
	if d.Count() != 3 {
		t.Errorf("Expected 3 active pixels for a corner seed, got %d", d.Count())
	}
}

// TestDilateRadiusZero verifies that a zero radius leaves the mask unchanged
func TestDilateRadiusZero(t *testing.T) {
	shape := models.Shape{3, 3}
	m := models.NewMask(shape)
	m.Data[4] = true

	d := Dilate(m, 0)
	if d.Count() != 1 || !d.Data[4] {
		t.Errorf("Expected unchanged mask, got %v", d.Data)
	}
}

// TestBallOffsets checks the size of the structuring element in several dimensions
func TestBallOffsets(t *testing.T) {
	tests := []struct {
		dims, radius, want int
	}{
		{1, 1, 2},
		{2, 1, 4},
		{3, 1, 6},
		{2, 2, 12},
		{2, 0, 0},
	}
	for _, tt := range tests {
		got := len(BallOffsets(tt.dims, tt.radius))
		if got != tt.want {
			t.Errorf("BallOffsets(%d, %d): expected %d offsets, got %d", tt.dims, tt.radius, tt.want, got)
		}
	}
}

// TestDilate3D verifies dilation along the third axis
func TestDilate3D(t *testing.T) {
	shape := models.Shape{3, 3, 3}
	m := models.NewMask(shape)
	m.Data[shape.Index([]int{1, 1, 1})] = true

	d := BuildDilated([]*models.LabelGrid{
		models.NewLabelGrid(shape),
	}, 1)
	if d.Count() != 0 {
		t.Errorf("Expected empty dilated mask for a single observer, got %d", d.Count())
	}

	d = Dilate(m, 1)
	if d.Count() != 7 {
		t.Errorf("Expected 7 active voxels, got %d", d.Count())
	}
	if !d.Data[shape.Index([]int{1, 1, 0})] || !d.Data[shape.Index([]int{1, 1, 2})] {
		t.Errorf("Expected z-neighbours to be set")
	}
}

package staple

import (
	"math"
	"testing"

	"labelfusion/internal/models"
)

// TestBinaryRecoversTruth verifies that a minority error is outvoted and that
// the erring observer gets lower sensitivity and specificity
func TestBinaryRecoversTruth(t *testing.T) {
	truth := []uint8{1, 1, 1, 1, 1, 0, 0, 0, 0, 0}
	flawed := []uint8{0, 1, 1, 1, 1, 1, 0, 0, 0, 0}
	observers := grids(models.Shape{5, 2}, truth, truth, flawed)

	res, err := RunBinary(observers, BinaryParams{GenerateProbabilities: true})
	if err != nil {
		t.Fatalf("RunBinary failed: %v", err)
	}

	for i, want := range truth {
		if res.Labels.Data[i] != want {
			t.Errorf("Pixel %d: expected label %d, got %d", i, want, res.Labels.Data[i])
		}
	}
	if math.Abs(res.Sensitivity[2]-0.8) > 1e-3 {
		t.Errorf("Expected sensitivity 0.8 for the flawed observer, got %g", res.Sensitivity[2])
	}
	if math.Abs(res.Specificity[2]-0.8) > 1e-3 {
		t.Errorf("Expected specificity 0.8 for the flawed observer, got %g", res.Specificity[2])
	}
	for o := 0; o < 2; o++ {
		if res.Sensitivity[o] < 0.999 || res.Specificity[o] < 0.999 {
			t.Errorf("Observer %d: expected near-perfect performance, got p=%g q=%g",
				o, res.Sensitivity[o], res.Specificity[o])
		}
	}
	if math.Abs(res.Prior-0.5) > 1e-12 {
		t.Errorf("Expected foreground prior 0.5, got %g", res.Prior)
	}

	for i := range truth {
		sum := res.Probabilities[0].Data[i] + res.Probabilities[1].Data[i]
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("Pixel %d: probabilities sum to %g", i, sum)
		}
	}
}

// TestBinaryConfusionLayout verifies that the 2x2 matrices carry the
// sensitivity and specificity estimates
func TestBinaryConfusionLayout(t *testing.T) {
	observers := grids(models.Shape{4, 1},
		[]uint8{0, 0, 1, 1},
		[]uint8{0, 1, 1, 1},
		[]uint8{0, 0, 1, 1},
	)

	res, err := RunBinary(observers, BinaryParams{})
	if err != nil {
		t.Fatalf("RunBinary failed: %v", err)
	}
	for o, cm := range res.Confusion {
		if cm.At(1, 1) != res.Sensitivity[o] {
			t.Errorf("Observer %d: P(1|1) = %g, sensitivity = %g", o, cm.At(1, 1), res.Sensitivity[o])
		}
		if cm.At(0, 0) != res.Specificity[o] {
			t.Errorf("Observer %d: P(0|0) = %g, specificity = %g", o, cm.At(0, 0), res.Specificity[o])
		}
		for truth := 0; truth < 2; truth++ {
			if sum := cm.At(0, truth) + cm.At(1, truth); math.Abs(sum-1) > 1e-12 {
				t.Errorf("Observer %d: row %d sums to %g", o, truth, sum)
			}
		}
	}
}

// TestBinaryConfidenceWeight verifies that the prior is scaled and clamped
func TestBinaryConfidenceWeight(t *testing.T) {
	observers := grids(models.Shape{4, 1}, []uint8{1, 1, 1, 0}, []uint8{1, 1, 1, 0})

	tests := []struct {
		weight float64
		want   float64
	}{
		{0, 0.75},
		{1, 0.75},
		{0.5, 0.375},
		{2, 1},
	}
	for _, tt := range tests {
		res, err := RunBinary(observers, BinaryParams{ConfidenceWeight: tt.weight})
		if err != nil {
			t.Fatalf("RunBinary failed: %v", err)
		}
		if math.Abs(res.Prior-tt.want) > 1e-12 {
			t.Errorf("Weight %g: expected prior %g, got %g", tt.weight, tt.want, res.Prior)
		}
	}
}

// TestBinaryRejectsMultiClass verifies that labels above 1 are an error
func TestBinaryRejectsMultiClass(t *testing.T) {
	observers := grids(models.Shape{2, 1}, []uint8{0, 2}, []uint8{0, 1})
	if _, err := RunBinary(observers, BinaryParams{}); err == nil {
		t.Error("Expected an error for label 2, got nil")
	}
	if _, err := RunBinary(nil, BinaryParams{}); err == nil {
		t.Error("Expected an error for no observers, got nil")
	}
}

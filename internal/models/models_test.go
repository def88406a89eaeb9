package models

import (
	"math"
	"testing"
)

// TestShapeIndexing verifies that Coords and Index are inverse to each other
func TestShapeIndexing(t *testing.T) {
	s := Shape{3, 4, 2}
	if s.Len() != 24 {
		t.Fatalf("Expected 24 pixels, got %d", s.Len())
	}
	coords := make([]int, 0, 3)
	for idx := 0; idx < s.Len(); idx++ {
		coords = s.Coords(idx, coords)
		if got := s.Index(coords); got != idx {
			t.Errorf("Index %d: round trip gave %d", idx, got)
		}
	}
	if got := s.Index([]int{3, 0, 0}); got != -1 {
		t.Errorf("Expected -1 outside the grid, got %d", got)
	}
	if got := s.Strides(); got[0] != 1 || got[1] != 3 || got[2] != 12 {
		t.Errorf("Unexpected strides %v", got)
	}
	if s.String() != "3x4x2" {
		t.Errorf("Expected 3x4x2, got %s", s)
	}
}

// TestPreference covers rank conversion and tie breaking
func TestPreference(t *testing.T) {
	p := RanksFromOrder([]int{2, 0, 1})
	want := Preference{1, 2, 0}
	for c := range want {
		if p[c] != want[c] {
			t.Errorf("Class %d: expected rank %d, got %d", c, want[c], p[c])
		}
	}
	if !p.IsPermutation(3) {
		t.Error("Expected a permutation")
	}
	if (Preference{0, 0, 1}).IsPermutation(3) {
		t.Error("Repeated rank accepted as a permutation")
	}

	tied := []float64{0.4, 0.4, 0.4}
	if got := DefaultPreference(3).ArgMax(tied); got != 0 {
		t.Errorf("Expected class 0 by default, got %d", got)
	}
	if got := p.ArgMax(tied); got != 2 {
		t.Errorf("Expected preferred class 2, got %d", got)
	}
	if got := p.ArgMax([]float64{0.5, 0.3, 0.2}); got != 0 {
		t.Errorf("Expected the maximum to win over preference, got %d", got)
	}
}

// TestNormalizeRows verifies row scaling and the fallbacks for empty rows
func TestNormalizeRows(t *testing.T) {
	c := NewConfusionMatrix(2)
	c.Set(0, 0, 3)
	c.Set(1, 0, 1)

	trust := NewTrustConfusionMatrix(2, 0.9)
	if n := c.Clone().NormalizeRows(trust); n != 1 {
		t.Errorf("Expected 1 replaced row, got %d", n)
	}

	withTrust := c.Clone()
	withTrust.NormalizeRows(trust)
	if withTrust.At(0, 0) != 0.75 || withTrust.At(1, 0) != 0.25 {
		t.Errorf("Unexpected normalized row %v", withTrust.Row(0))
	}
	if withTrust.At(1, 1) != 0.9 {
		t.Errorf("Expected trust fallback 0.9, got %g", withTrust.At(1, 1))
	}

	uniform := c.Clone()
	uniform.NormalizeRows(nil)
	if uniform.At(0, 1) != 0.5 || uniform.At(1, 1) != 0.5 {
		t.Errorf("Expected uniform fallback, got %v", uniform.Row(1))
	}

	if d := withTrust.MaxAbsDiff(uniform); math.Abs(d-0.4) > 1e-12 {
		t.Errorf("Expected distance 0.4, got %g", d)
	}
}

// TestDomainChunks verifies that chunks partition the active pixels in order
func TestDomainChunks(t *testing.T) {
	m := NewMask(Shape{5, 2})
	for _, i := range []int{1, 2, 4, 7, 9} {
		m.Data[i] = true
	}
	d := NewDomain(m.Shape, m)
	if d.Len() != 5 || d.Size() != 10 || !d.Masked() {
		t.Fatalf("Unexpected domain: len %d, size %d", d.Len(), d.Size())
	}
	if d.Contains(3) || !d.Contains(4) {
		t.Error("Contains disagrees with the mask")
	}

	for _, n := range []int{0, 1, 2, 3, 8} {
		var got []int
		for _, c := range d.Chunks(n) {
			if len(c.Indices) == 0 {
				t.Errorf("n=%d: empty chunk", n)
			}
			if d.Indices()[c.Offset] != c.Indices[0] {
				t.Errorf("n=%d: offset %d does not match chunk start", n, c.Offset)
			}
			got = append(got, c.Indices...)
		}
		if len(got) != d.Len() {
			t.Fatalf("n=%d: expected %d indices, got %d", n, d.Len(), len(got))
		}
		for i := range got {
			if got[i] != d.Indices()[i] {
				t.Errorf("n=%d: position %d expected %d, got %d", n, i, d.Indices()[i], got[i])
			}
		}
	}

	full := NewDomain(Shape{3}, nil)
	if full.Masked() || full.Len() != 3 {
		t.Errorf("Expected an unmasked domain of 3 pixels, got %d", full.Len())
	}
	if len(NewDomain(m.Shape, NewMask(m.Shape)).Chunks(4)) != 0 {
		t.Error("Expected no chunks for an empty mask")
	}
}

// TestConfusionVolumeEmpty covers the empty input
func TestConfusionVolumeEmpty(t *testing.T) {
	if ConfusionVolume(nil) != nil {
		t.Error("Expected nil volume for no matrices")
	}
}

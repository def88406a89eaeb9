package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ConfusionMatrix describes one observer's performance: At(i, j) is the
// probability that the observer reports label i when the true label is j.
//
// The matrix is stored with one row per true class, so every stored row is a
// distribution over reported labels and sums to one once estimated.
type ConfusionMatrix struct {
	m *mat.Dense
}

// NewConfusionMatrix allocates a zero matrix for numClasses classes.
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	return &ConfusionMatrix{m: mat.NewDense(numClasses, numClasses, nil)}
}

// NewTrustConfusionMatrix builds the diagonal-biased seed used when nothing
// better is known: the observer reports the true class with probability
// trust and spreads the remaining mass evenly over the other classes.
func NewTrustConfusionMatrix(numClasses int, trust float64) *ConfusionMatrix {
	c := NewConfusionMatrix(numClasses)
	off := 0.0
	if numClasses > 1 {
		off = (1 - trust) / float64(numClasses-1)
	}
	for truth := 0; truth < numClasses; truth++ {
		row := c.Row(truth)
		for reported := range row {
			if reported == truth {
				row[reported] = trust
			} else {
				row[reported] = off
			}
		}
	}
	return c
}

// NumClasses returns the number of classes the matrix covers.
func (c *ConfusionMatrix) NumClasses() int {
	r, _ := c.m.Dims()
	return r
}

// At returns P(reported | truth).
func (c *ConfusionMatrix) At(reported, truth int) float64 {
	return c.m.At(truth, reported)
}

// Set assigns P(reported | truth).
func (c *ConfusionMatrix) Set(reported, truth int, v float64) {
	c.m.Set(truth, reported, v)
}

// Row returns the distribution over reported labels for one true class. The
// returned slice aliases the matrix storage.
func (c *ConfusionMatrix) Row(truth int) []float64 {
	return c.m.RawRowView(truth)
}

// Data returns the backing storage, one true-class row after another.
func (c *ConfusionMatrix) Data() []float64 {
	return c.m.RawMatrix().Data
}

// Dense exposes the matrix as a gonum matrix with rows indexed by true class.
func (c *ConfusionMatrix) Dense() mat.Matrix {
	return c.m
}

// Clone returns a deep copy of the matrix.
func (c *ConfusionMatrix) Clone() *ConfusionMatrix {
	return &ConfusionMatrix{m: mat.DenseCopyOf(c.m)}
}

// NormalizeRows scales every true-class row to sum to one. A row without any
// mass is replaced by the matching row of fallback, or by a uniform
// distribution when fallback is nil. It reports how many rows needed a fallback.
func (c *ConfusionMatrix) NormalizeRows(fallback *ConfusionMatrix) int {
	k := c.NumClasses()
	replaced := 0
	for truth := 0; truth < k; truth++ {
		row := c.Row(truth)
		sum := floats.Sum(row)
		if sum > 0 {
			floats.Scale(1/sum, row)
			continue
		}
		replaced++
		if fallback != nil {
			copy(row, fallback.Row(truth))
			continue
		}
		for i := range row {
			row[i] = 1 / float64(k)
		}
	}
	return replaced
}

// MaxAbsDiff returns the largest absolute element-wise difference between two
// matrices of the same size.
func (c *ConfusionMatrix) MaxAbsDiff(o *ConfusionMatrix) float64 {
	return floats.Distance(c.Data(), o.Data(), math.Inf(1))
}

// ConfusionVolume flattens one matrix per observer into a
// numClasses x numClasses x observers volume, x fastest: x is the true
// label, y the reported label and z the observer.
func ConfusionVolume(matrices []*ConfusionMatrix) []float64 {
	if len(matrices) == 0 {
		return nil
	}
	k := matrices[0].NumClasses()
	vol := make([]float64, k*k*len(matrices))
	for o, cm := range matrices {
		for reported := 0; reported < k; reported++ {
			for truth := 0; truth < k; truth++ {
				vol[truth+k*(reported+k*o)] = cm.At(reported, truth)
			}
		}
	}
	return vol
}

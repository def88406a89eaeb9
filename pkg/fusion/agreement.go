package fusion

import (
	"gonum.org/v1/gonum/stat"

	"labelfusion/internal/models"
)

// Agreement summarises how well each observer matches the fused labelling.
type Agreement struct {
	// Fraction is, per observer, the share of pixels where the observer
	// reports the fused label.
	Fraction []float64

	// Dice is, per observer and class, the overlap 2|A∩B|/(|A|+|B|) between
	// the observer's and the fused region of that class. A class absent from
	// both has overlap 0.
	Dice [][]float64

	// MeanFraction and StdFraction summarise Fraction across observers.
	// StdFraction is 0 for a single observer.
	MeanFraction float64
	StdFraction  float64

	// MeanDice is the per-class Dice averaged over observers.
	MeanDice []float64
}

// ComputeAgreement compares every observer against the fused labels.
func ComputeAgreement(observers []*models.LabelGrid, fused *models.LabelGrid, numClasses int) *Agreement {
	a := &Agreement{
		Fraction: make([]float64, len(observers)),
		Dice:     make([][]float64, len(observers)),
		MeanDice: make([]float64, numClasses),
	}

	fusedCount := make([]int, numClasses)
	for _, v := range fused.Data {
		fusedCount[v]++
	}

	for o, g := range observers {
		observed := make([]int, numClasses)
		overlap := make([]int, numClasses)
		matches := 0
		for i, v := range g.Data {
			observed[v]++
			if v == fused.Data[i] {
				overlap[v]++
				matches++
			}
		}
		if n := len(g.Data); n > 0 {
			a.Fraction[o] = float64(matches) / float64(n)
		}
		a.Dice[o] = make([]float64, numClasses)
		for c := range a.Dice[o] {
			if total := observed[c] + fusedCount[c]; total > 0 {
				a.Dice[o][c] = 2 * float64(overlap[c]) / float64(total)
			}
		}
	}

	if len(observers) > 1 {
		a.MeanFraction, a.StdFraction = stat.MeanStdDev(a.Fraction, nil)
	} else if len(observers) == 1 {
		a.MeanFraction = a.Fraction[0]
	}

	perClass := make([]float64, len(observers))
	for c := range a.MeanDice {
		for o := range observers {
			perClass[o] = a.Dice[o][c]
		}
		if len(perClass) > 0 {
			a.MeanDice[c] = stat.Mean(perClass, nil)
		}
	}
	return a
}

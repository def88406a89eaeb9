package fusion

import (
	"math"

	"github.com/rs/zerolog"

	"labelfusion/internal/models"
	"labelfusion/pkg/staple"
)

// DefaultMaskDilationRadius is the dilation radius applied to the
// disagreement mask unless configured otherwise.
const DefaultMaskDilationRadius = 1

// Params holds the inputs of a fusion run other than the observer grids.
type Params struct {
	// Strategy selects the fusion method.
	Strategy Strategy

	// NumClasses is the number of classes. Zero derives it from the data
	// with DetermineNumClasses.
	NumClasses int

	// Priors holds one prior probability per class. For MULTISTAPLE and
	// MULTISTAPLE2 they are normalised and kept fixed. For STAPLE, Priors[1]
	// rescales the estimated foreground prior. Nil lets the data decide.
	Priors []float64

	// PriorGrids holds a spatially varying prior per class. Only the
	// MULTISTAPLE2 strategies use them; they take precedence over Priors.
	PriorGrids []*models.ProbabilityGrid

	// Trust holds one value in (0, 1] per observer. Voting uses it as the
	// vote weight, MULTISTAPLE2 as the diagonal seed of the confusion matrix.
	Trust []float64

	// TerminationThreshold stops EM once no confusion element changes by
	// more than this. Zero means staple.DefaultTerminationThreshold.
	// STAPLE honours it as well; only VOTE ignores it.
	TerminationThreshold float64

	// MaxIterations caps EM. Zero means staple.DefaultMaxIterations.
	MaxIterations int

	// UseMask restricts the work to pixels where observers disagree, dilated
	// by MaskDilationRadius. Elsewhere the output copies observer 0.
	UseMask            bool
	MaskDilationRadius int

	// PreferenceOrder ranks classes for breaking exact ties: index is the
	// class, value its rank, lower wins. Nil prefers lower class numbers.
	PreferenceOrder models.Preference

	// GenerateProbabilities requests one soft probability grid per class.
	GenerateProbabilities bool

	// GenerateConfusion requests a confusion matrix per observer.
	GenerateConfusion bool

	// NumWorkers bounds the goroutines used per step; zero uses all CPUs.
	NumWorkers int

	// Logger receives progress and configuration warnings. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultParams returns the parameters of a plain MULTISTAPLE2 run.
func DefaultParams() *Params {
	return &Params{
		Strategy:             DefaultStrategy,
		TerminationThreshold: staple.DefaultTerminationThreshold,
		MaxIterations:        staple.DefaultMaxIterations,
		MaskDilationRadius:   DefaultMaskDilationRadius,
	}
}

// Validate checks the parameters that do not depend on the observer grids,
// so callers can reject a configuration before loading any data. Checks
// against the grids happen in Combiner.Process.
func (p *Params) Validate() error {
	if !p.Strategy.Valid() {
		return invalid("strategy", "unknown method %q", string(p.Strategy))
	}
	if p.NumClasses < 0 || p.NumClasses == 1 {
		return invalid("numClasses", "must be at least 2, got %d", p.NumClasses)
	}
	if p.NumClasses > 256 {
		return invalid("numClasses", "labels are 8-bit, got %d classes", p.NumClasses)
	}
	if p.Strategy == StrategyStaple && p.NumClasses > 2 {
		return invalid("numClasses", "STAPLE handles exactly 2 classes, got %d", p.NumClasses)
	}
	if p.NumClasses > 0 && p.Priors != nil && len(p.Priors) != p.NumClasses {
		return invalid("priors", "got %d values for %d classes", len(p.Priors), p.NumClasses)
	}
	for c, v := range p.Priors {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("priors", "value %g for class %d is not a finite non-negative number", v, c)
		}
	}
	if p.NumClasses > 0 && p.PriorGrids != nil && len(p.PriorGrids) != p.NumClasses {
		return invalid("priorGrids", "got %d grids for %d classes", len(p.PriorGrids), p.NumClasses)
	}
	for o, v := range p.Trust {
		if !(v > 0 && v <= 1) {
			return invalid("trust", "value %g for observer %d is outside (0, 1]", v, o)
		}
	}
	if p.TerminationThreshold < 0 || math.IsNaN(p.TerminationThreshold) {
		return invalid("terminationThreshold", "must be positive, got %g", p.TerminationThreshold)
	}
	if p.MaxIterations < 0 {
		return invalid("maxIterations", "must not be negative, got %d", p.MaxIterations)
	}
	if p.MaskDilationRadius < 0 {
		return invalid("maskDilationRadius", "must not be negative, got %d", p.MaskDilationRadius)
	}
	if p.NumClasses > 0 && p.PreferenceOrder != nil && !p.PreferenceOrder.IsPermutation(p.NumClasses) {
		return invalid("preferenceOrder", "%v is not a permutation of [0, %d)", []int(p.PreferenceOrder), p.NumClasses)
	}
	if p.NumWorkers < 0 {
		return invalid("numWorkers", "must not be negative, got %d", p.NumWorkers)
	}
	return nil
}

// DetermineNumClasses returns the largest label in the observers plus one,
// and at least 2.
func DetermineNumClasses(observers []*models.LabelGrid) int {
	k := 2
	for _, g := range observers {
		if m := int(g.Max()) + 1; m > k {
			k = m
		}
	}
	return k
}

// Package voting fuses observer segmentations by trust-weighted label voting.
//
// Voting is deterministic and non-iterative. Exact ties between classes are
// resolved by a preference ranking. Besides the hard labels the fuser can
// produce normalised vote shares per class and an empirical confusion matrix
// per observer, which is how it seeds the EM estimator.
package voting

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"labelfusion/internal/models"
	"labelfusion/internal/parallel"
)

// Params configures a voting run.
type Params struct {
	// NumClasses is the number of classes; every label must be below it.
	NumClasses int

	// Trust holds one vote weight per observer. Nil means 1.0 for everyone.
	Trust []float64

	// Mask restricts voting to the pixels it marks. Nil means every pixel.
	// Outside the mask the output copies observer 0.
	Mask *models.Mask

	// Preference breaks exact ties. Nil means lower class numbers win.
	Preference models.Preference

	// GenerateProbabilities requests the normalised vote shares per class.
	GenerateProbabilities bool

	// GenerateConfusion requests an empirical confusion matrix per observer.
	GenerateConfusion bool

	// ConfusionFallback supplies, per observer, the rows used for fused
	// classes that never occurred. Nil means uniform rows.
	ConfusionFallback []*models.ConfusionMatrix

	// NumWorkers bounds the number of goroutines; zero uses all CPUs.
	NumWorkers int
}

// Result holds the output of a voting run.
type Result struct {
	Labels        *models.LabelGrid
	Probabilities []*models.ProbabilityGrid
	Confusion     []*models.ConfusionMatrix
}

// Fuser performs label voting.
type Fuser struct {
	params Params
}

// NewFuser creates a fuser with the given parameters.
func NewFuser(params Params) *Fuser {
	return &Fuser{params: params}
}

// Fuse votes over the observers and returns the consensus.
func (f *Fuser) Fuse(observers []*models.LabelGrid) (*Result, error) {
	p := f.params
	if len(observers) == 0 {
		return nil, fmt.Errorf("voting requires at least one observer")
	}
	k := p.NumClasses
	if k < 2 {
		return nil, fmt.Errorf("voting requires at least 2 classes, got %d", k)
	}
	for o, g := range observers {
		if m := int(g.Max()); m >= k {
			return nil, fmt.Errorf("observer %d has label %d outside [0, %d)", o, m, k)
		}
	}

	trust := p.Trust
	if trust == nil {
		trust = make([]float64, len(observers))
		for i := range trust {
			trust[i] = 1
		}
	} else if len(trust) != len(observers) {
		return nil, fmt.Errorf("got %d trust values for %d observers", len(trust), len(observers))
	}
	if p.ConfusionFallback != nil && len(p.ConfusionFallback) != len(observers) {
		return nil, fmt.Errorf("got %d fallback matrices for %d observers", len(p.ConfusionFallback), len(observers))
	}
	pref := p.Preference
	if pref == nil {
		pref = models.DefaultPreference(k)
	}

	shape := observers[0].Shape
	domain := models.NewDomain(shape, p.Mask)
	n := len(observers)

	res := &Result{Labels: models.NewLabelGrid(shape)}
	if p.GenerateProbabilities {
		res.Probabilities = make([]*models.ProbabilityGrid, k)
		for c := range res.Probabilities {
			res.Probabilities[c] = models.NewProbabilityGrid(shape)
		}
	}

	// Outside the domain the first observer passes through unchanged.
	first := observers[0].Data
	for i := 0; i < domain.Size(); i++ {
		if domain.Contains(i) {
			continue
		}
		res.Labels.Data[i] = first[i]
		if p.GenerateProbabilities {
			res.Probabilities[first[i]].Data[i] = 1
		}
	}

	chunks := domain.Chunks(parallel.Workers(p.NumWorkers))

	// counts[w] holds, per observer, a K x K block indexed [fused][reported].
	var counts [][]float64
	if p.GenerateConfusion {
		counts = make([][]float64, len(chunks))
		for w := range counts {
			counts[w] = make([]float64, n*k*k)
		}
	}

	parallel.ForEachChunk(chunks, func(w int, chunk models.Chunk) {
		tally := make([]float64, k)
		for _, i := range chunk.Indices {
			for c := range tally {
				tally[c] = 0
			}
			for o, g := range observers {
				tally[g.Data[i]] += trust[o]
			}

			winner := pref.ArgMax(tally)
			res.Labels.Data[i] = uint8(winner)

			if p.GenerateProbabilities {
				sum := floats.Sum(tally)
				for c := range tally {
					if sum > 0 {
						res.Probabilities[c].Data[i] = tally[c] / sum
					} else {
						res.Probabilities[c].Data[i] = 1 / float64(k)
					}
				}
			}
			if counts != nil {
				acc := counts[w]
				for o, g := range observers {
					acc[(o*k+winner)*k+int(g.Data[i])]++
				}
			}
		}
	})

	if p.GenerateConfusion {
		res.Confusion = confusionFromCounts(counts, p.ConfusionFallback, n, k)
	}
	return res, nil
}

// confusionFromCounts merges the per-worker counts in worker order and turns
// them into row-normalised confusion matrices. A fused class that never
// occurred gets the fallback row, or a uniform one.
func confusionFromCounts(counts [][]float64, fallback []*models.ConfusionMatrix, n, k int) []*models.ConfusionMatrix {
	total := make([]float64, n*k*k)
	for _, c := range counts {
		floats.Add(total, c)
	}
	out := make([]*models.ConfusionMatrix, n)
	for o := range out {
		cm := models.NewConfusionMatrix(k)
		copy(cm.Data(), total[o*k*k:(o+1)*k*k])
		if fallback != nil {
			cm.NormalizeRows(fallback[o])
		} else {
			cm.NormalizeRows(nil)
		}
		out[o] = cm
	}
	return out
}

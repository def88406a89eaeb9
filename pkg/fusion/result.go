package fusion

import "labelfusion/internal/models"

// Result is the outcome of a fusion run.
type Result struct {
	Strategy   Strategy
	NumClasses int

	// Labels is the hard consensus labelling, always present.
	Labels *models.LabelGrid

	// Probabilities holds one soft grid per class when requested.
	Probabilities []*models.ProbabilityGrid

	// Confusion holds one matrix per observer when requested.
	Confusion []*models.ConfusionMatrix

	// Priors are the final scalar class priors of an EM run; nil for voting
	// and when spatial priors were used.
	Priors []float64

	// Mask is the dilated disagreement mask, nil when no mask was used.
	Mask *models.Mask

	// Warnings lists the supplied arguments the strategy ignored.
	Warnings []string

	// Iterations is the number of EM iterations; zero for voting.
	Iterations int
	// Converged is false when EM stopped at the iteration cap.
	Converged bool

	Agreement *Agreement
}

// ConfusionVolume flattens the confusion matrices into a
// NumClasses x NumClasses x observers volume with the true label along x,
// the reported label along y and the observer along z. It returns nil when
// no confusion matrices were produced.
func (r *Result) ConfusionVolume() []float64 {
	return models.ConfusionVolume(r.Confusion)
}

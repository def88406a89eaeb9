package staple

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"labelfusion/internal/models"
	"labelfusion/internal/parallel"
)

// BinaryParams configures the two-class STAPLE estimator, which summarises
// each observer by a sensitivity and a specificity.
type BinaryParams struct {
	// ConfidenceWeight rescales the estimated foreground prior. Zero means 1.
	ConfidenceWeight float64

	// Preference breaks an exact 0.5 posterior. Nil prefers label 0.
	Preference models.Preference

	TerminationThreshold float64
	MaxIterations        int
	NumWorkers           int

	GenerateProbabilities bool

	Logger *zerolog.Logger
}

// BinaryResult extends Result with the per-observer performance estimates.
// Confusion holds the same numbers as 2x2 matrices.
type BinaryResult struct {
	Result

	Sensitivity []float64
	Specificity []float64

	// Prior is the foreground prior used throughout the run.
	Prior float64
}

// BinaryEstimator runs binary STAPLE on observers labelled 0 (background)
// and 1 (foreground).
type BinaryEstimator struct {
	params BinaryParams
	log    zerolog.Logger
}

// NewBinaryEstimator creates a binary estimator.
func NewBinaryEstimator(params BinaryParams) *BinaryEstimator {
	e := &BinaryEstimator{params: params, log: zerolog.Nop()}
	if params.Logger != nil {
		e.log = *params.Logger
	}
	if e.params.ConfidenceWeight <= 0 {
		e.params.ConfidenceWeight = 1
	}
	if e.params.TerminationThreshold <= 0 {
		e.params.TerminationThreshold = DefaultTerminationThreshold
	}
	if e.params.MaxIterations <= 0 {
		e.params.MaxIterations = DefaultMaxIterations
	}
	return e
}

// Run estimates the foreground probability at every pixel.
func (e *BinaryEstimator) Run(observers []*models.LabelGrid) (*BinaryResult, error) {
	if len(observers) == 0 {
		return nil, fmt.Errorf("binary STAPLE requires at least one observer")
	}
	for o, g := range observers {
		if m := g.Max(); m > 1 {
			return nil, fmt.Errorf("observer %d has label %d, binary STAPLE accepts only 0 and 1", o, m)
		}
	}
	p := e.params
	n := len(observers)
	shape := observers[0].Shape
	domain := models.FullDomain(shape)
	chunks := domain.Chunks(parallel.Workers(p.NumWorkers))

	pref := p.Preference
	if pref == nil {
		pref = models.DefaultPreference(2)
	}

	prior := foregroundFraction(observers) * p.ConfidenceWeight
	prior = math.Min(1, math.Max(0, prior))

	sens := make([]float64, n)
	spec := make([]float64, n)
	for o := range sens {
		sens[o] = DefaultTrust
		spec[o] = DefaultTrust
	}

	weights := make([]float64, domain.Len())
	res := &BinaryResult{Prior: prior}

	e.log.Debug().Int("observers", n).Float64("prior", prior).Msg("starting binary STAPLE")

	for iter := 1; ; iter++ {
		acc := binaryExpectation(observers, chunks, weights, prior, sens, spec, true)
		update := acc.update(sens, spec)
		res.Iterations = iter
		res.MaxUpdate = update

		e.log.Debug().Int("iteration", iter).Float64("maxUpdate", update).Msg("STAPLE iteration")

		if update < p.TerminationThreshold {
			res.Converged = true
			break
		}
		if iter >= p.MaxIterations {
			e.log.Warn().
				Int("maxIterations", p.MaxIterations).
				Float64("maxUpdate", update).
				Msg("STAPLE stopped at iteration cap before converging")
			break
		}
	}
	binaryExpectation(observers, chunks, weights, prior, sens, spec, false)

	res.Labels = models.NewLabelGrid(shape)
	if p.GenerateProbabilities {
		res.Probabilities = []*models.ProbabilityGrid{
			models.NewProbabilityGrid(shape),
			models.NewProbabilityGrid(shape),
		}
	}
	pair := make([]float64, 2)
	for i, w := range weights {
		pair[0], pair[1] = 1-w, w
		res.Labels.Data[i] = uint8(pref.ArgMax(pair))
		if p.GenerateProbabilities {
			res.Probabilities[0].Data[i] = pair[0]
			res.Probabilities[1].Data[i] = pair[1]
		}
	}

	res.Sensitivity = sens
	res.Specificity = spec
	res.Confusion = make([]*models.ConfusionMatrix, n)
	for o := range res.Confusion {
		cm := models.NewConfusionMatrix(2)
		cm.Set(0, 0, spec[o])
		cm.Set(1, 0, 1-spec[o])
		cm.Set(0, 1, 1-sens[o])
		cm.Set(1, 1, sens[o])
		res.Confusion[o] = cm
	}
	res.Priors = []float64{1 - prior, prior}
	return res, nil
}

// foregroundFraction is the share of foreground labels over all observers
// and pixels.
func foregroundFraction(observers []*models.LabelGrid) float64 {
	fg, total := 0, 0
	for _, g := range observers {
		for _, v := range g.Data {
			if v == 1 {
				fg++
			}
		}
		total += len(g.Data)
	}
	if total == 0 {
		return 0
	}
	return float64(fg) / float64(total)
}

// binaryStats are the sums the M-step needs.
type binaryStats struct {
	sumW, sumNotW float64
	// fgW[o] sums W where observer o reported foreground,
	// bgNotW[o] sums 1-W where it reported background.
	fgW, bgNotW []float64
}

func (a *binaryStats) add(b *binaryStats) {
	a.sumW += b.sumW
	a.sumNotW += b.sumNotW
	for o := range a.fgW {
		a.fgW[o] += b.fgW[o]
		a.bgNotW[o] += b.bgNotW[o]
	}
}

// update re-estimates sensitivity and specificity in place and returns the
// largest change.
func (a *binaryStats) update(sens, spec []float64) float64 {
	maxUpdate := 0.0
	for o := range sens {
		if a.sumW > 0 {
			v := a.fgW[o] / a.sumW
			maxUpdate = math.Max(maxUpdate, math.Abs(v-sens[o]))
			sens[o] = v
		}
		if a.sumNotW > 0 {
			v := a.bgNotW[o] / a.sumNotW
			maxUpdate = math.Max(maxUpdate, math.Abs(v-spec[o]))
			spec[o] = v
		}
	}
	return maxUpdate
}

// binaryExpectation stores the foreground posterior of every pixel in
// weights. With accumulate set it also returns the merged M-step sums.
func binaryExpectation(observers []*models.LabelGrid, chunks []models.Chunk, weights []float64,
	prior float64, sens, spec []float64, accumulate bool) *binaryStats {
	n := len(observers)
	newStats := func() *binaryStats {
		return &binaryStats{fgW: make([]float64, n), bgNotW: make([]float64, n)}
	}
	partial := make([]*binaryStats, len(chunks))

	logFg, logBg := math.Log(prior), math.Log(1-prior)
	logSens, logMissed := make([]float64, n), make([]float64, n)
	logSpec, logFalse := make([]float64, n), make([]float64, n)
	for o := range sens {
		logSens[o], logMissed[o] = math.Log(sens[o]), math.Log(1-sens[o])
		logSpec[o], logFalse[o] = math.Log(spec[o]), math.Log(1-spec[o])
	}

	parallel.ForEachChunk(chunks, func(w int, chunk models.Chunk) {
		st := newStats()
		pair := make([]float64, 2)
		for _, i := range chunk.Indices {
			pair[0], pair[1] = logBg, logFg
			for o, g := range observers {
				if g.Data[i] == 1 {
					pair[0] += logFalse[o]
					pair[1] += logSens[o]
				} else {
					pair[0] += logSpec[o]
					pair[1] += logMissed[o]
				}
			}
			normalizeLog(pair)
			wgt := pair[1]
			weights[i] = wgt

			if !accumulate {
				continue
			}
			st.sumW += wgt
			st.sumNotW += 1 - wgt
			for o, g := range observers {
				if g.Data[i] == 1 {
					st.fgW[o] += wgt
				} else {
					st.bgNotW[o] += 1 - wgt
				}
			}
		}
		partial[w] = st
	})

	if !accumulate {
		return nil
	}
	total := newStats()
	for _, st := range partial {
		total.add(st)
	}
	return total
}

// RunBinary is shorthand for NewBinaryEstimator(params).Run(observers).
func RunBinary(observers []*models.LabelGrid, params BinaryParams) (*BinaryResult, error) {
	return NewBinaryEstimator(params).Run(observers)
}

package staple

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"labelfusion/internal/models"
	"labelfusion/internal/parallel"
)

const (
	// DefaultTrust is the diagonal seed used when no trust is supplied.
	DefaultTrust = 0.99999

	// DefaultTerminationThreshold stops the iteration once no confusion
	// matrix element moves by more than this amount.
	DefaultTerminationThreshold = 1e-5

	// DefaultMaxIterations caps the EM loop for inputs that never settle.
	DefaultMaxIterations = 1000
)

// Params configures a multi-class EM run.
type Params struct {
	// NumClasses is the number of classes; every label must be below it.
	NumClasses int

	// Trust seeds the diagonal of each observer's confusion matrix.
	// Nil means DefaultTrust for every observer.
	Trust []float64

	// Priors fixes a spatially uniform prior per class. When both Priors and
	// PriorGrids are nil the priors are estimated from the data.
	Priors []float64

	// PriorGrids fixes a spatially varying prior per class and takes
	// precedence over Priors.
	PriorGrids []*models.ProbabilityGrid

	// Mask restricts estimation to the pixels it marks. Outside the mask the
	// output copies observer 0 and the pixels do not contribute statistics.
	Mask *models.Mask

	// Preference breaks exact ties in the final labelling.
	Preference models.Preference

	// InitialConfusion replaces the trust seed, for example with matrices
	// obtained by voting. Rows without mass fall back to the trust seed.
	InitialConfusion []*models.ConfusionMatrix

	// TerminationThreshold defaults to DefaultTerminationThreshold.
	TerminationThreshold float64

	// MaxIterations defaults to DefaultMaxIterations.
	MaxIterations int

	// NumWorkers bounds the number of goroutines; zero uses all CPUs.
	NumWorkers int

	// GenerateProbabilities keeps the per-class posteriors as output grids.
	GenerateProbabilities bool

	// Logger receives progress at debug level. Nil disables logging.
	Logger *zerolog.Logger
}

// Result holds the outcome of an EM run.
type Result struct {
	Labels        *models.LabelGrid
	Probabilities []*models.ProbabilityGrid
	Confusion     []*models.ConfusionMatrix

	// Priors are the final spatially uniform priors; nil when PriorGrids
	// were supplied.
	Priors []float64

	Iterations int
	MaxUpdate  float64
	Converged  bool
}

// Estimator jointly estimates observer confusion matrices and the true
// labelling by expectation maximisation.
type Estimator struct {
	params Params
	log    zerolog.Logger
}

// NewEstimator creates an estimator with the given parameters.
func NewEstimator(params Params) *Estimator {
	e := &Estimator{params: params, log: zerolog.Nop()}
	if params.Logger != nil {
		e.log = *params.Logger
	}
	if e.params.TerminationThreshold <= 0 {
		e.params.TerminationThreshold = DefaultTerminationThreshold
	}
	if e.params.MaxIterations <= 0 {
		e.params.MaxIterations = DefaultMaxIterations
	}
	return e
}

// Run estimates the consensus labelling of the observers.
func (e *Estimator) Run(observers []*models.LabelGrid) (*Result, error) {
	if err := e.check(observers); err != nil {
		return nil, err
	}
	p := e.params
	k := p.NumClasses
	shape := observers[0].Shape
	domain := models.NewDomain(shape, p.Mask)

	pref := p.Preference
	if pref == nil {
		pref = models.DefaultPreference(k)
	}

	s := &emState{
		observers: observers,
		k:         k,
		domain:    domain,
		chunks:    domain.Chunks(parallel.Workers(p.NumWorkers)),
		posterior: make([]float64, domain.Len()*k),
		logTable:  make([]float64, len(observers)*k*k),
	}
	s.confusion = e.initialConfusion(len(observers))
	s.initPriors(p.Priors, p.PriorGrids)

	e.log.Debug().
		Int("observers", len(observers)).
		Int("classes", k).
		Int("activePixels", domain.Len()).
		Int("workers", len(s.chunks)).
		Msg("starting EM estimation")

	res := &Result{}
	for iter := 1; ; iter++ {
		update := s.iterate()
		res.Iterations = iter
		res.MaxUpdate = update

		e.log.Debug().Int("iteration", iter).Float64("maxUpdate", update).Msg("EM iteration")

		if update < p.TerminationThreshold {
			res.Converged = true
			break
		}
		if iter >= p.MaxIterations {
			e.log.Warn().
				Int("maxIterations", p.MaxIterations).
				Float64("maxUpdate", update).
				Msg("EM stopped at iteration cap before converging")
			break
		}
	}

	// One more E-step so the posteriors match the final matrices.
	s.expectation(false)

	res.Labels, res.Probabilities = s.finalize(pref, p.GenerateProbabilities)
	res.Confusion = s.confusion
	if s.priors != nil {
		res.Priors = append([]float64(nil), s.priors...)
	}
	return res, nil
}

func (e *Estimator) check(observers []*models.LabelGrid) error {
	p := e.params
	if len(observers) == 0 {
		return fmt.Errorf("EM estimation requires at least one observer")
	}
	k := p.NumClasses
	if k < 2 {
		return fmt.Errorf("EM estimation requires at least 2 classes, got %d", k)
	}
	for o, g := range observers {
		if m := int(g.Max()); m >= k {
			return fmt.Errorf("observer %d has label %d outside [0, %d)", o, m, k)
		}
	}
	if p.Trust != nil && len(p.Trust) != len(observers) {
		return fmt.Errorf("got %d trust values for %d observers", len(p.Trust), len(observers))
	}
	if p.Priors != nil && len(p.Priors) != k {
		return fmt.Errorf("got %d prior probabilities for %d classes", len(p.Priors), k)
	}
	if p.PriorGrids != nil {
		if len(p.PriorGrids) != k {
			return fmt.Errorf("got %d prior probability grids for %d classes", len(p.PriorGrids), k)
		}
		for c, g := range p.PriorGrids {
			if !g.Shape.Equal(observers[0].Shape) {
				return fmt.Errorf("prior grid %d has shape %v, expected %v", c, g.Shape, observers[0].Shape)
			}
		}
	}
	if p.InitialConfusion != nil {
		if len(p.InitialConfusion) != len(observers) {
			return fmt.Errorf("got %d initial confusion matrices for %d observers", len(p.InitialConfusion), len(observers))
		}
		for o, cm := range p.InitialConfusion {
			if cm.NumClasses() != k {
				return fmt.Errorf("initial confusion matrix %d covers %d classes, expected %d", o, cm.NumClasses(), k)
			}
		}
	}
	return nil
}

// initialConfusion builds the starting matrices from the trust seed, or from
// the supplied matrices with the trust seed filling empty rows.
func (e *Estimator) initialConfusion(n int) []*models.ConfusionMatrix {
	p := e.params
	out := make([]*models.ConfusionMatrix, n)
	for o := range out {
		trust := DefaultTrust
		if p.Trust != nil {
			trust = p.Trust[o]
		}
		seed := models.NewTrustConfusionMatrix(p.NumClasses, trust)
		if p.InitialConfusion == nil {
			out[o] = seed
			continue
		}
		cm := p.InitialConfusion[o].Clone()
		cm.NormalizeRows(seed)
		out[o] = cm
	}
	return out
}

// emState holds the buffers of one EM run. The posterior buffer covers only
// the active domain; position pos in it belongs to pixel domain.Indices()[pos].
type emState struct {
	observers []*models.LabelGrid
	k         int
	domain    *models.Domain
	chunks    []models.Chunk

	confusion []*models.ConfusionMatrix

	// logTable[(o*k+reported)*k+truth] = log P(reported | truth) for observer o.
	logTable []float64

	// priors is nil when spatial priors are in use.
	priors        []float64
	priorGrids    []*models.ProbabilityGrid
	estimatePrior bool

	posterior []float64

	// Per-worker accumulators, reallocated for every iteration.
	confAcc  [][]float64
	priorAcc [][]float64
}

func (s *emState) initPriors(fixed []float64, grids []*models.ProbabilityGrid) {
	switch {
	case grids != nil:
		s.priorGrids = grids
	case fixed != nil:
		s.priors = append([]float64(nil), fixed...)
		if sum := floats.Sum(s.priors); sum > 0 {
			floats.Scale(1/sum, s.priors)
		}
	default:
		s.estimatePrior = true
		s.priors = empiricalPriors(s.observers, s.domain, s.k)
	}
}

// empiricalPriors returns the frequency of each label over the active domain
// and all observers, or a uniform distribution for an empty domain.
func empiricalPriors(observers []*models.LabelGrid, domain *models.Domain, k int) []float64 {
	priors := make([]float64, k)
	for _, g := range observers {
		for _, i := range domain.Indices() {
			priors[g.Data[i]]++
		}
	}
	if sum := floats.Sum(priors); sum > 0 {
		floats.Scale(1/sum, priors)
		return priors
	}
	for c := range priors {
		priors[c] = 1 / float64(k)
	}
	return priors
}

// iterate performs one E-step with accumulation and the following M-step.
// It returns the largest confusion matrix element update.
func (s *emState) iterate() float64 {
	s.expectation(true)
	return s.maximization()
}

func (s *emState) fillLogTable() {
	k := s.k
	for o, cm := range s.confusion {
		for truth := 0; truth < k; truth++ {
			row := cm.Row(truth)
			for reported, v := range row {
				s.logTable[(o*k+reported)*k+truth] = math.Log(v)
			}
		}
	}
}

// expectation computes the posterior at every active pixel. With accumulate
// set, each worker also sums posterior mass into its own accumulators.
func (s *emState) expectation(accumulate bool) {
	s.fillLogTable()
	k := s.k
	n := len(s.observers)

	var logPriors []float64
	if s.priors != nil {
		logPriors = make([]float64, k)
		for c, v := range s.priors {
			logPriors[c] = math.Log(v)
		}
	}

	if accumulate {
		s.confAcc = make([][]float64, len(s.chunks))
		s.priorAcc = make([][]float64, len(s.chunks))
		for w := range s.chunks {
			s.confAcc[w] = make([]float64, n*k*k)
			s.priorAcc[w] = make([]float64, k)
		}
	}

	parallel.ForEachChunk(s.chunks, func(w int, chunk models.Chunk) {
		var confAcc, priorAcc []float64
		if accumulate {
			confAcc = s.confAcc[w]
			priorAcc = s.priorAcc[w]
		}
		for j, i := range chunk.Indices {
			pos := chunk.Offset + j
			post := s.posterior[pos*k : (pos+1)*k]

			if logPriors != nil {
				copy(post, logPriors)
			} else {
				for c := range post {
					post[c] = math.Log(s.priorGrids[c].Data[i])
				}
			}
			for o, g := range s.observers {
				row := s.logTable[(o*k+int(g.Data[i]))*k : (o*k+int(g.Data[i])+1)*k]
				floats.Add(post, row)
			}
			normalizeLog(post)

			if !accumulate {
				continue
			}
			for o, g := range s.observers {
				reported := int(g.Data[i])
				for truth, wgt := range post {
					confAcc[(o*k+truth)*k+reported] += wgt
				}
			}
			floats.Add(priorAcc, post)
		}
	})
}

// maximization merges the worker accumulators in worker order, re-estimates
// the confusion matrices and, when not fixed, the priors.
func (s *emState) maximization() float64 {
	k := s.k
	n := len(s.observers)

	confTotal := make([]float64, n*k*k)
	priorTotal := make([]float64, k)
	for w := range s.confAcc {
		floats.Add(confTotal, s.confAcc[w])
		floats.Add(priorTotal, s.priorAcc[w])
	}
	s.confAcc, s.priorAcc = nil, nil

	maxUpdate := 0.0
	for o, old := range s.confusion {
		cm := models.NewConfusionMatrix(k)
		copy(cm.Data(), confTotal[o*k*k:(o+1)*k*k])
		cm.NormalizeRows(old)
		maxUpdate = math.Max(maxUpdate, cm.MaxAbsDiff(old))
		s.confusion[o] = cm
	}

	if s.estimatePrior && s.domain.Len() > 0 {
		floats.Scale(1/float64(s.domain.Len()), priorTotal)
		s.priors = priorTotal
	}
	return maxUpdate
}

// finalize picks the most probable class at every active pixel and copies
// observer 0 elsewhere.
func (s *emState) finalize(pref models.Preference, withProbabilities bool) (*models.LabelGrid, []*models.ProbabilityGrid) {
	k := s.k
	shape := s.observers[0].Shape
	labels := models.NewLabelGrid(shape)

	var probs []*models.ProbabilityGrid
	if withProbabilities {
		probs = make([]*models.ProbabilityGrid, k)
		for c := range probs {
			probs[c] = models.NewProbabilityGrid(shape)
		}
	}

	first := s.observers[0].Data
	for i := 0; i < s.domain.Size(); i++ {
		if s.domain.Contains(i) {
			continue
		}
		labels.Data[i] = first[i]
		if withProbabilities {
			probs[first[i]].Data[i] = 1
		}
	}

	for pos, i := range s.domain.Indices() {
		post := s.posterior[pos*k : (pos+1)*k]
		labels.Data[i] = uint8(pref.ArgMax(post))
		if withProbabilities {
			for c, v := range post {
				probs[c].Data[i] = v
			}
		}
	}
	return labels, probs
}

// normalizeLog turns log-likelihoods into probabilities in place. When every
// class is impossible the result is uniform instead of NaN.
func normalizeLog(w []float64) {
	lse := floats.LogSumExp(w)
	if math.IsInf(lse, -1) || math.IsNaN(lse) {
		for c := range w {
			w[c] = 1 / float64(len(w))
		}
		return
	}
	for c, v := range w {
		w[c] = math.Exp(v - lse)
	}
}

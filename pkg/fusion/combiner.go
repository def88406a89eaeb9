// Package fusion combines several segmentations of the same grid into one
// consensus labelling.
//
// A Combiner validates its inputs, optionally restricts the work to the
// pixels where observers disagree, dispatches to one of the fusion
// strategies and assembles the result:
//
//   - STAPLE: binary EM with a sensitivity and specificity per observer
//   - MULTISTAPLE: multi-class EM seeded by majority voting
//   - MULTISTAPLE2: multi-class EM seeded by observer trust
//   - VOTE: trust-weighted voting
//   - VOTE_MULTISTAPLE2: voting used to seed MULTISTAPLE2
package fusion

import (
	"fmt"

	"github.com/rs/zerolog"

	"labelfusion/internal/models"
	"labelfusion/pkg/mask"
	"labelfusion/pkg/staple"
)

// State is the stage a Combiner has reached.
type State int

const (
	StateIdle State = iota
	StateValidated
	StateMaskBuilt
	StateEstimating
	StateVoting
	StateFinalized
	StateConfusionReported
	StateDone
	// StateFailed is entered when a run returns an error.
	StateFailed
)

var stateNames = [...]string{
	"Idle", "Validated", "MaskBuilt", "Estimating", "Voting",
	"Finalized", "ConfusionReported", "Done", "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Combiner runs one fusion configuration. It is not safe for concurrent use;
// each Process call is an independent run.
type Combiner struct {
	params *Params
	log    zerolog.Logger
	state  State
}

// NewCombiner creates a combiner. A nil params means DefaultParams.
func NewCombiner(params *Params) *Combiner {
	if params == nil {
		params = DefaultParams()
	}
	c := &Combiner{params: params, log: zerolog.Nop()}
	if params.Logger != nil {
		c.log = *params.Logger
	}
	return c
}

// State returns the stage the last Process call reached.
func (c *Combiner) State() State {
	return c.state
}

// Process fuses the observers. Invalid input yields a *ValidationError
// before any work is done.
func (c *Combiner) Process(observers []*models.LabelGrid) (*Result, error) {
	c.state = StateIdle

	in, warnings, err := c.validate(observers)
	if err != nil {
		c.state = StateFailed
		return nil, err
	}
	c.state = StateValidated

	strategy := c.params.Strategy
	for _, w := range warnings {
		c.log.Warn().Str("strategy", strategy.String()).Msg(w)
	}

	if c.params.UseMask && strategy.SupportsMask() && len(observers) > 1 {
		in.Mask = mask.BuildDilated(observers, c.params.MaskDilationRadius)
		c.state = StateMaskBuilt
		c.log.Info().
			Int("activePixels", in.Mask.Count()).
			Int("totalPixels", len(in.Mask.Data)).
			Int("dilationRadius", c.params.MaskDilationRadius).
			Msg("built disagreement mask")
	}

	method, err := NewMethod(strategy)
	if err != nil {
		c.state = StateFailed
		return nil, err
	}

	if strategy.Iterative() {
		c.state = StateEstimating
	} else {
		c.state = StateVoting
	}
	c.log.Info().
		Str("strategy", strategy.String()).
		Int("observers", len(observers)).
		Int("classes", in.NumClasses).
		Msg("fusing segmentations")

	res, err := method.Fuse(in)
	if err != nil {
		c.state = StateFailed
		return nil, fmt.Errorf("%s failed: %w", strategy, err)
	}
	c.state = StateFinalized

	res.Strategy = strategy
	res.NumClasses = in.NumClasses
	res.Mask = in.Mask
	res.Warnings = warnings
	if !in.GenerateProbabilities {
		res.Probabilities = nil
	}
	if in.GenerateConfusion {
		c.state = StateConfusionReported
	} else {
		res.Confusion = nil
	}

	res.Agreement = ComputeAgreement(observers, res.Labels, in.NumClasses)

	if strategy.Iterative() {
		c.log.Info().
			Int("iterations", res.Iterations).
			Bool("converged", res.Converged).
			Float64("meanAgreement", res.Agreement.MeanFraction).
			Msg("fusion finished")
	} else {
		c.log.Info().Float64("meanAgreement", res.Agreement.MeanFraction).Msg("fusion finished")
	}

	c.state = StateDone
	return res, nil
}

// validate checks the observers against the parameters and builds the
// method inputs together with a warning for every ignored argument.
func (c *Combiner) validate(observers []*models.LabelGrid) (*Inputs, []string, error) {
	p := c.params
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	if len(observers) == 0 {
		return nil, nil, invalid("observers", "at least one observer is required")
	}

	for o, g := range observers {
		if g == nil {
			return nil, nil, invalid("observers", "observer %d is nil", o)
		}
	}
	shape := observers[0].Shape
	for o, g := range observers {
		if len(g.Data) != g.Shape.Len() {
			return nil, nil, invalid("observers", "observer %d holds %d values for shape %v", o, len(g.Data), g.Shape)
		}
		if !g.Shape.Equal(shape) {
			return nil, nil, invalid("observers", "observer %d has shape %v, observer 0 has %v", o, g.Shape, shape)
		}
	}

	k := p.NumClasses
	if k == 0 {
		k = DetermineNumClasses(observers)
	}
	for o, g := range observers {
		if m := int(g.Max()); m >= k {
			return nil, nil, invalid("observers", "observer %d has label %d, expected labels in [0, %d)", o, m, k)
		}
	}
	if p.Strategy == StrategyStaple && k != 2 {
		return nil, nil, invalid("numClasses", "STAPLE handles exactly 2 classes, got %d", k)
	}
	if p.Priors != nil && len(p.Priors) != k {
		return nil, nil, invalid("priors", "got %d values for %d classes", len(p.Priors), k)
	}
	if p.PriorGrids != nil {
		if len(p.PriorGrids) != k {
			return nil, nil, invalid("priorGrids", "got %d grids for %d classes", len(p.PriorGrids), k)
		}
		for cl, g := range p.PriorGrids {
			if !g.Shape.Equal(shape) || len(g.Data) != shape.Len() {
				return nil, nil, invalid("priorGrids", "grid %d has shape %v, observers have %v", cl, g.Shape, shape)
			}
		}
	}
	if p.Trust != nil && len(p.Trust) != len(observers) {
		return nil, nil, invalid("trust", "got %d values for %d observers", len(p.Trust), len(observers))
	}
	if p.PreferenceOrder != nil && !p.PreferenceOrder.IsPermutation(k) {
		return nil, nil, invalid("preferenceOrder", "%v is not a permutation of [0, %d)", []int(p.PreferenceOrder), k)
	}

	in := &Inputs{
		Observers:             observers,
		NumClasses:            k,
		Preference:            p.PreferenceOrder,
		TerminationThreshold:  p.TerminationThreshold,
		MaxIterations:         p.MaxIterations,
		NumWorkers:            p.NumWorkers,
		GenerateProbabilities: p.GenerateProbabilities,
		GenerateConfusion:     p.GenerateConfusion,
		Logger:                p.Logger,
	}
	var warnings []string
	s := p.Strategy

	if p.Trust != nil {
		if s.UsesTrust() {
			in.Trust = p.Trust
		} else {
			warnings = append(warnings, fmt.Sprintf("trust values are ignored by %s, it estimates observer performance itself", s))
		}
	}
	if p.UseMask && !s.SupportsMask() {
		warnings = append(warnings, fmt.Sprintf("mask is ignored by %s", s))
	}
	if p.PriorGrids != nil {
		if s.SupportsSpatialPriors() {
			in.PriorGrids = p.PriorGrids
		} else {
			warnings = append(warnings, fmt.Sprintf("spatial prior grids are ignored by %s", s))
		}
	}
	if p.Priors != nil {
		switch {
		case !s.UsesPriors():
			warnings = append(warnings, fmt.Sprintf("prior probabilities are ignored by %s", s))
		case in.PriorGrids != nil:
			warnings = append(warnings, "scalar prior probabilities are ignored when prior grids are given")
		default:
			in.Priors = p.Priors
		}
	}
	if !s.Iterative() && p.TerminationThreshold != 0 && p.TerminationThreshold != staple.DefaultTerminationThreshold {
		warnings = append(warnings, fmt.Sprintf("termination threshold is ignored by %s", s))
	}
	return in, warnings, nil
}

package fusion

import (
	"fmt"

	"github.com/rs/zerolog"

	"labelfusion/internal/models"
	"labelfusion/pkg/staple"
	"labelfusion/pkg/voting"
)

// Inputs is the validated input handed to a Method. Fields a strategy
// does not use have already been reported as warnings.
type Inputs struct {
	Observers  []*models.LabelGrid
	NumClasses int

	Priors     []float64
	PriorGrids []*models.ProbabilityGrid
	Trust      []float64

	// Mask is nil when every pixel takes part.
	Mask       *models.Mask
	Preference models.Preference

	TerminationThreshold float64
	MaxIterations        int
	NumWorkers           int

	GenerateProbabilities bool
	GenerateConfusion     bool

	Logger *zerolog.Logger
}

// Method is one fusion strategy.
type Method interface {
	Strategy() Strategy
	Fuse(in *Inputs) (*Result, error)
}

// NewMethod returns the implementation of a strategy.
func NewMethod(s Strategy) (Method, error) {
	switch s {
	case StrategyStaple:
		return Staple{}, nil
	case StrategyMultiStaple:
		return MultiStaple{}, nil
	case StrategyMultiStaple2:
		return MultiStaple2{}, nil
	case StrategyVote:
		return Vote{}, nil
	case StrategyVoteMultiStaple2:
		return VoteThenMultiStaple2{}, nil
	}
	return nil, invalid("strategy", "unknown method %q", string(s))
}

// Staple runs binary STAPLE.
type Staple struct{}

func (Staple) Strategy() Strategy { return StrategyStaple }

func (Staple) Fuse(in *Inputs) (*Result, error) {
	weight := 1.0
	if in.Priors != nil {
		weight = in.Priors[1]
	}
	br, err := staple.RunBinary(in.Observers, staple.BinaryParams{
		ConfidenceWeight:      weight,
		Preference:            in.Preference,
		TerminationThreshold:  in.TerminationThreshold,
		MaxIterations:         in.MaxIterations,
		NumWorkers:            in.NumWorkers,
		GenerateProbabilities: in.GenerateProbabilities,
		Logger:                in.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("binary STAPLE failed: %w", err)
	}
	return fromEstimate(&br.Result), nil
}

// MultiStaple runs multi-class EM seeded by unweighted majority voting over
// the whole grid.
type MultiStaple struct{}

func (MultiStaple) Strategy() Strategy { return StrategyMultiStaple }

func (MultiStaple) Fuse(in *Inputs) (*Result, error) {
	seed, err := voting.NewFuser(voting.Params{
		NumClasses:        in.NumClasses,
		Preference:        in.Preference,
		GenerateConfusion: true,
		NumWorkers:        in.NumWorkers,
	}).Fuse(in.Observers)
	if err != nil {
		return nil, fmt.Errorf("failed to seed EM by voting: %w", err)
	}
	return runEM(in, staple.Params{
		Priors:           in.Priors,
		InitialConfusion: seed.Confusion,
	})
}

// MultiStaple2 runs multi-class EM seeded by observer trust.
type MultiStaple2 struct{}

func (MultiStaple2) Strategy() Strategy { return StrategyMultiStaple2 }

func (MultiStaple2) Fuse(in *Inputs) (*Result, error) {
	return runEM(in, staple.Params{
		Trust:      in.Trust,
		Priors:     in.Priors,
		PriorGrids: in.PriorGrids,
		Mask:       in.Mask,
	})
}

// Vote runs trust-weighted voting.
type Vote struct{}

func (Vote) Strategy() Strategy { return StrategyVote }

func (Vote) Fuse(in *Inputs) (*Result, error) {
	vr, err := voting.NewFuser(voting.Params{
		NumClasses:            in.NumClasses,
		Trust:                 in.Trust,
		Mask:                  in.Mask,
		Preference:            in.Preference,
		GenerateProbabilities: in.GenerateProbabilities,
		GenerateConfusion:     in.GenerateConfusion,
		NumWorkers:            in.NumWorkers,
	}).Fuse(in.Observers)
	if err != nil {
		return nil, fmt.Errorf("voting failed: %w", err)
	}
	return &Result{
		Labels:        vr.Labels,
		Probabilities: vr.Probabilities,
		Confusion:     vr.Confusion,
		Converged:     true,
	}, nil
}

// VoteThenMultiStaple2 seeds MULTISTAPLE2 with the confusion matrices of a
// trust-weighted vote. Rows the vote leaves empty fall back to the trust seed.
type VoteThenMultiStaple2 struct{}

func (VoteThenMultiStaple2) Strategy() Strategy { return StrategyVoteMultiStaple2 }

func (VoteThenMultiStaple2) Fuse(in *Inputs) (*Result, error) {
	fallback := make([]*models.ConfusionMatrix, len(in.Observers))
	for o := range fallback {
		trust := staple.DefaultTrust
		if in.Trust != nil {
			trust = in.Trust[o]
		}
		fallback[o] = models.NewTrustConfusionMatrix(in.NumClasses, trust)
	}
	seed, err := voting.NewFuser(voting.Params{
		NumClasses:        in.NumClasses,
		Trust:             in.Trust,
		Mask:              in.Mask,
		Preference:        in.Preference,
		GenerateConfusion: true,
		ConfusionFallback: fallback,
		NumWorkers:        in.NumWorkers,
	}).Fuse(in.Observers)
	if err != nil {
		return nil, fmt.Errorf("failed to seed EM by voting: %w", err)
	}
	return runEM(in, staple.Params{
		Trust:            in.Trust,
		Priors:           in.Priors,
		PriorGrids:       in.PriorGrids,
		Mask:             in.Mask,
		InitialConfusion: seed.Confusion,
	})
}

// runEM completes p with the settings shared by every EM strategy and runs it.
func runEM(in *Inputs, p staple.Params) (*Result, error) {
	p.NumClasses = in.NumClasses
	p.Preference = in.Preference
	p.TerminationThreshold = in.TerminationThreshold
	p.MaxIterations = in.MaxIterations
	p.NumWorkers = in.NumWorkers
	p.GenerateProbabilities = in.GenerateProbabilities
	p.Logger = in.Logger

	er, err := staple.NewEstimator(p).Run(in.Observers)
	if err != nil {
		return nil, fmt.Errorf("EM estimation failed: %w", err)
	}
	return fromEstimate(er), nil
}

func fromEstimate(er *staple.Result) *Result {
	return &Result{
		Labels:        er.Labels,
		Probabilities: er.Probabilities,
		Confusion:     er.Confusion,
		Priors:        er.Priors,
		Iterations:    er.Iterations,
		Converged:     er.Converged,
	}
}

package fusion

import "strings"

// Strategy names a label fusion method.
type Strategy string

const (
	// StrategyStaple is binary STAPLE with sensitivity and specificity per observer.
	StrategyStaple Strategy = "STAPLE"
	// StrategyMultiStaple is multi-class EM seeded by unweighted majority voting.
	StrategyMultiStaple Strategy = "MULTISTAPLE"
	// StrategyMultiStaple2 is multi-class EM seeded by observer trust, with
	// optional mask and spatial priors.
	StrategyMultiStaple2 Strategy = "MULTISTAPLE2"
	// StrategyVote is trust-weighted voting.
	StrategyVote Strategy = "VOTE"
	// StrategyVoteMultiStaple2 runs voting to seed MULTISTAPLE2.
	StrategyVoteMultiStaple2 Strategy = "VOTE_MULTISTAPLE2"
)

// DefaultStrategy is used when no strategy is configured.
const DefaultStrategy = StrategyMultiStaple2

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return []Strategy{
		StrategyStaple,
		StrategyMultiStaple,
		StrategyMultiStaple2,
		StrategyVote,
		StrategyVoteMultiStaple2,
	}
}

// ParseStrategy converts a strategy name, ignoring case and surrounding
// space. An empty name gives DefaultStrategy.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return DefaultStrategy, nil
	}
	s := Strategy(name)
	if !s.Valid() {
		return "", invalid("strategy", "unknown method %q", name)
	}
	return s, nil
}

// Valid reports whether s is one of the supported strategies.
func (s Strategy) Valid() bool {
	for _, known := range Strategies() {
		if s == known {
			return true
		}
	}
	return false
}

func (s Strategy) String() string {
	return string(s)
}

// SupportsMask reports whether the strategy restricts work to a disagreement mask.
func (s Strategy) SupportsMask() bool {
	return s == StrategyMultiStaple2 || s == StrategyVote || s == StrategyVoteMultiStaple2
}

// UsesTrust reports whether observer trust values influence the strategy.
// STAPLE and MULTISTAPLE estimate observer performance on their own.
func (s Strategy) UsesTrust() bool {
	return s.SupportsMask()
}

// SupportsSpatialPriors reports whether per-pixel prior grids are honoured.
func (s Strategy) SupportsSpatialPriors() bool {
	return s == StrategyMultiStaple2 || s == StrategyVoteMultiStaple2
}

// UsesPriors reports whether scalar priors are honoured.
func (s Strategy) UsesPriors() bool {
	return s != StrategyVote
}

// Iterative reports whether the strategy runs expectation maximisation.
func (s Strategy) Iterative() bool {
	return s != StrategyVote
}

package fusion

import (
	"errors"
	"testing"
)

// TestParseStrategy covers names, case folding and the default
func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"STAPLE", StrategyStaple, false},
		{"vote", StrategyVote, false},
		{" multistaple2 ", StrategyMultiStaple2, false},
		{"Vote_MultiStaple2", StrategyVoteMultiStaple2, false},
		{"", DefaultStrategy, false},
		{"MAJORITY", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("%q: expected a validation error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

// TestStrategyCapabilities pins down which arguments each strategy honours
func TestStrategyCapabilities(t *testing.T) {
	tests := []struct {
		s                                       Strategy
		mask, trust, spatial, priors, iterative bool
	}{
		{StrategyStaple, false, false, false, true, true},
		{StrategyMultiStaple, false, false, false, true, true},
		{StrategyMultiStaple2, true, true, true, true, true},
		{StrategyVote, true, true, false, false, false},
		{StrategyVoteMultiStaple2, true, true, true, true, true},
	}
	for _, tt := range tests {
		if got := tt.s.SupportsMask(); got != tt.mask {
			t.Errorf("%s: SupportsMask = %v", tt.s, got)
		}
		if got := tt.s.UsesTrust(); got != tt.trust {
			t.Errorf("%s: UsesTrust = %v", tt.s, got)
		}
		if got := tt.s.SupportsSpatialPriors(); got != tt.spatial {
			t.Errorf("%s: SupportsSpatialPriors = %v", tt.s, got)
		}
		if got := tt.s.UsesPriors(); got != tt.priors {
			t.Errorf("%s: UsesPriors = %v", tt.s, got)
		}
		if got := tt.s.Iterative(); got != tt.iterative {
			t.Errorf("%s: Iterative = %v", tt.s, got)
		}
	}
}

// TestNewMethod verifies that every strategy dispatches to its own method
func TestNewMethod(t *testing.T) {
	for _, s := range Strategies() {
		m, err := NewMethod(s)
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		if m.Strategy() != s {
			t.Errorf("Expected method for %s, got %s", s, m.Strategy())
		}
	}
	if _, err := NewMethod("NONE"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected a validation error for an unknown strategy, got %v", err)
	}
}

package models

// Preference ranks classes for breaking exact ties: Preference[c] is the rank
// of class c and a lower rank is preferred.
type Preference []int

// DefaultPreference prefers lower class numbers.
func DefaultPreference(numClasses int) Preference {
	p := make(Preference, numClasses)
	for i := range p {
		p[i] = i
	}
	return p
}

// RanksFromOrder converts a list of classes, most preferred first, into a
// Preference. The result is only meaningful when order is a permutation.
func RanksFromOrder(order []int) Preference {
	p := make(Preference, len(order))
	for rank, class := range order {
		if class >= 0 && class < len(p) {
			p[class] = rank
		}
	}
	return p
}

// IsPermutation reports whether p assigns each rank in [0, numClasses) to
// exactly one class.
func (p Preference) IsPermutation(numClasses int) bool {
	if len(p) != numClasses {
		return false
	}
	seen := make([]bool, numClasses)
	for _, r := range p {
		if r < 0 || r >= numClasses || seen[r] {
			return false
		}
		seen[r] = true
	}
	return true
}

// ArgMax returns the class with the largest value, resolving exact ties in
// favour of the class with the lowest rank.
func (p Preference) ArgMax(values []float64) int {
	best := 0
	for c := 1; c < len(values); c++ {
		if values[c] > values[best] || (values[c] == values[best] && p[c] < p[best]) {
			best = c
		}
	}
	return best
}

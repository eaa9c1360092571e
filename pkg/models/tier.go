package models

// Tier represents the capability class a task is routed to.
type Tier string

const (
	// TierScout handles trivial, low-risk tasks.
	TierScout Tier = "scout"
	// TierBuilder handles standard implementation tasks.
	TierBuilder Tier = "builder"
	// TierArchitect handles complex or policy-sensitive tasks.
	TierArchitect Tier = "architect"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierScout, TierBuilder, TierArchitect:
		return true
	default:
		return false
	}
}

// AtLeast returns the higher of t and min in capability order.
func (t Tier) AtLeast(min Tier) Tier {
	if t.rank() < min.rank() {
		return min
	}
	return t
}

func (t Tier) rank() int {
	switch t {
	case TierScout:
		return 0
	case TierBuilder:
		return 1
	case TierArchitect:
		return 2
	default:
		return -1
	}
}

package placement

import (
	"fmt"
	"math"
)

// Tier is a named throw range.
type Tier struct {
	Name  string  `json:"name"`
	MinKm float64 `json:"min_km"`
	MaxKm float64 `json:"max_km"`
}

// Distance maps a throw power in [0,1] onto the tier range. Power outside
// that interval is clamped.
func (t Tier) Distance(power float64) float64 {
	if math.IsNaN(power) {
		power = 0
	}
	power = math.Max(0, math.Min(1, power))
	return t.MinKm + (t.MaxKm-t.MinKm)*power
}

// Tiers is an ordered set of throw ranges.
type Tiers []Tier

// DefaultTiers returns the short, medium and long ranges.
func DefaultTiers() Tiers {
	return Tiers{
		{Name: "short", MinKm: 0.05, MaxKm: 1},
		{Name: "medium", MinKm: 1, MaxKm: 10},
		{Name: "long", MinKm: 10, MaxKm: 100},
	}
}

// Lookup finds a tier by name.
func (ts Tiers) Lookup(name string) (Tier, error) {
	for _, t := range ts {
		if t.Name == name {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: unknown range tier %q", ErrInvalidThrow, name)
}

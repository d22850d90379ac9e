package session

import (
	"fmt"
	"math"
	"time"
)

// Tier maps a tolerance window to points.
type Tier struct {
	Name   string  `json:"name" yaml:"name"`
	Within float64 `json:"within" yaml:"within"` // inclusive bound on |distance|
	Points int     `json:"points" yaml:"points"`
}

// Tiers is an ordered tolerance table: windows strictly widen while points
// never increase, so a closer input can never score less than a farther one.
type Tiers []Tier

// NewTiers validates and returns the table.
func NewTiers(tiers ...Tier) (Tiers, error) {
	t := Tiers(tiers)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the ordering rules.
func (t Tiers) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty table", ErrInvalidTiers)
	}
	for i, tier := range t {
		if tier.Name == "" {
			return fmt.Errorf("%w: tier %d has no name", ErrInvalidTiers, i)
		}
		if tier.Within <= 0 || math.IsNaN(tier.Within) || math.IsInf(tier.Within, 0) {
			return fmt.Errorf("%w: tier %q window %v", ErrInvalidTiers, tier.Name, tier.Within)
		}
		if tier.Points < 0 {
			return fmt.Errorf("%w: tier %q has negative points", ErrInvalidTiers, tier.Name)
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		if tier.Within <= prev.Within {
			return fmt.Errorf("%w: tier %q does not widen %q", ErrInvalidTiers, tier.Name, prev.Name)
		}
		if tier.Points > prev.Points {
			return fmt.Errorf("%w: tier %q outscores %q", ErrInvalidTiers, tier.Name, prev.Name)
		}
	}
	return nil
}

// Classify returns the first tier whose window contains |distance|. Inputs
// outside every window report false and count as a miss.
func (t Tiers) Classify(distance float64) (Tier, bool) {
	if math.IsNaN(distance) {
		return Tier{}, false
	}
	d := math.Abs(distance)
	for _, tier := range t {
		if d <= tier.Within {
			return tier, true
		}
	}
	return Tier{}, false
}

// ClassifyOffset classifies a timing error with windows expressed in
// milliseconds.
func (t Tiers) ClassifyOffset(offset time.Duration) (Tier, bool) {
	return t.Classify(float64(offset) / float64(time.Millisecond))
}

// Widest returns the outermost window.
func (t Tiers) Widest() float64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].Within
}

package ranking

import "fmt"

// Weights are the coefficients of the composite ranking score. Every
// component has an explicit field so a missing weight is impossible to
// express; values are validated once at initialization.
type Weights struct {
	NetSavings          float64 `json:"net_savings"`
	CashbackRealization float64 `json:"cashback_realization"`
	RewardPoints        float64 `json:"reward_points"`
	ThresholdProximity  float64 `json:"threshold_proximity"`
	PersonalPreference  float64 `json:"personal_preference"`
	Urgency             float64 `json:"urgency"`
	Popularity          float64 `json:"popularity"`
	StackingPotential   float64 `json:"stacking_potential"`
}

// DefaultWeights returns the standard ranking coefficients.
func DefaultWeights() Weights {
	return Weights{
		NetSavings:          0.40,
		CashbackRealization: 0.20,
		RewardPoints:        0.10,
		ThresholdProximity:  0.10,
		PersonalPreference:  0.10,
		Urgency:             0.05,
		Popularity:          0.05,
		StackingPotential:   0.00,
	}
}

// Validate checks that the weights are usable.
func (w Weights) Validate() error {
	fields := map[string]float64{
		"net_savings":          w.NetSavings,
		"cashback_realization": w.CashbackRealization,
		"reward_points":        w.RewardPoints,
		"threshold_proximity":  w.ThresholdProximity,
		"personal_preference":  w.PersonalPreference,
		"urgency":              w.Urgency,
		"popularity":           w.Popularity,
		"stacking_potential":   w.StackingPotential,
	}

	total := 0.0
	for name, v := range fields {
		if v < 0 {
			return fmt.Errorf("ranking weight %s must be non-negative, got %v", name, v)
		}
		total += v
	}
	if total == 0 {
		return fmt.Errorf("ranking weights must not all be zero")
	}

	return nil
}

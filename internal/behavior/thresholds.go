package behavior

import "fmt"

// TrustTiering controls how volume bonuses combine.
type TrustTiering string

const (
	// TrustHighest applies only the largest tier the count qualifies for.
	TrustHighest TrustTiering = "highest"

	// TrustCumulative adds every tier the count qualifies for.
	TrustCumulative TrustTiering = "cumulative"
)

// ParseTrustTiering validates a tiering name. Empty means highest.
func ParseTrustTiering(s string) (TrustTiering, error) {
	switch TrustTiering(s) {
	case "", TrustHighest:
		return TrustHighest, nil
	case TrustCumulative:
		return TrustCumulative, nil
	default:
		return "", fmt.Errorf("unknown trust tiering %q", s)
	}
}

// TrustTier grants Bonus once a profile has more than Above transactions.
type TrustTier struct {
	Above int
	Bonus int
}

// Risk factor labels recorded on profiles.
const (
	FactorHighValue = "High value transactions"
	FactorLateNight = "Late night activity"
)

// Thresholds holds every weight and cut-off used by the detector.
type Thresholds struct {
	// A fresh profile has a zero average and max, so every first amount
	// trips both checks. AmountChecksNeedHistory skips them until the
	// profile has at least one transaction.
	AmountChecksNeedHistory bool

	AverageMultiple float64
	AverageWeight   int
	MaxMultiple     float64
	MaxWeight       int

	NewMerchantWeight int

	// A late hour is [0, LateHourUntil); rare means seen fewer than
	// RareHourCount times.
	LateHourUntil  int
	RareHourCount  int
	LateHourWeight int

	NewMethodWeight int

	// VelocityThreshold of 0 disables the detector's velocity check.
	VelocityThreshold int
	VelocityWeight    int

	// A transaction is anomalous when its score exceeds AnomalyScore.
	AnomalyScore int

	TrustBase         int
	TrustTiers        []TrustTier // ordered from the largest Above down
	TrustTiering      TrustTiering
	RiskFactorPenalty int

	HighValueAmount float64
}

// DefaultThresholds returns the stock detector configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AverageMultiple: 3,
		AverageWeight:   25,
		MaxMultiple:     1.5,
		MaxWeight:       20,

		NewMerchantWeight: 15,

		LateHourUntil:  6,
		RareHourCount:  2,
		LateHourWeight: 20,

		NewMethodWeight: 10,

		// Set VelocityThreshold to 0 to leave velocity to the risk scorer.
		VelocityThreshold: 3,
		VelocityWeight:    10,

		AnomalyScore: 30,

		TrustBase: 50,
		TrustTiers: []TrustTier{
			{Above: 50, Bonus: 20},
			{Above: 20, Bonus: 10},
			{Above: 10, Bonus: 5},
		},
		TrustTiering:      TrustHighest,
		RiskFactorPenalty: 5,

		HighValueAmount: 50000,
	}
}

// TrustScore computes the trust score for a transaction count and number
// of recorded risk factors.
func (th Thresholds) TrustScore(count, riskFactors int) int {
	score := th.TrustBase
	for _, tier := range th.TrustTiers {
		if count > tier.Above {
			score += tier.Bonus
			if th.TrustTiering != TrustCumulative {
				break
			}
		}
	}
	score -= riskFactors * th.RiskFactorPenalty
	return max(0, min(score, 100))
}

package risk

import "fmt"

// TimeBandMode controls how the late-night and unusual-hour bands combine
// when an hour falls in both.
type TimeBandMode string

const (
	// TimeBandsExclusive applies only the late-night rule for hours in both
	// bands.
	TimeBandsExclusive TimeBandMode = "exclusive"

	// TimeBandsCumulative applies both rules.
	TimeBandsCumulative TimeBandMode = "cumulative"
)

// ParseTimeBandMode validates a mode name. Empty means exclusive.
func ParseTimeBandMode(s string) (TimeBandMode, error) {
	switch TimeBandMode(s) {
	case "", TimeBandsExclusive:
		return TimeBandsExclusive, nil
	case TimeBandsCumulative:
		return TimeBandsCumulative, nil
	default:
		return "", fmt.Errorf("unknown time band mode %q", s)
	}
}

// Thresholds holds every weight and cut-off used by the scorer.
type Thresholds struct {
	// Amount rules. ModerateAmount applies only when HighAmount did not.
	HighAmount           float64
	HighAmountWeight     int
	ModerateAmount       float64
	ModerateAmountWeight int

	// Late night is [LateNightFrom, LateNightUntil).
	LateNightFrom   int
	LateNightUntil  int
	LateNightWeight int

	// Unusual hour is hour >= UnusualFrom or hour < UnusualUntil.
	UnusualFrom   int
	UnusualUntil  int
	UnusualWeight int
	TimeBands     TimeBandMode

	KnownMerchants    []string
	NewMerchantWeight int

	HighUPIAmount float64
	HighUPIWeight int

	// Velocity fires when the recent count reaches VelocityThreshold.
	VelocityThreshold int
	VelocityWeight    int
}

// DefaultThresholds returns the stock rule set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighAmount:           20000,
		HighAmountWeight:     30,
		ModerateAmount:       10000,
		ModerateAmountWeight: 15,

		LateNightFrom:   0,
		LateNightUntil:  5,
		LateNightWeight: 25,

		UnusualFrom:   22,
		UnusualUntil:  6,
		UnusualWeight: 12,
		TimeBands:     TimeBandsExclusive,

		KnownMerchants:    []string{"Amazon", "Swiggy", "Zomato", "Netflix"},
		NewMerchantWeight: 20,

		HighUPIAmount: 25000,
		HighUPIWeight: 15,

		VelocityThreshold: 3,
		VelocityWeight:    10,
	}
}

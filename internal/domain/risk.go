package domain

import (
	"time"
)

// RiskLevel is the coarse category derived from a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Risk level thresholds on the 0-100 score.
const (
	MediumRiskFrom = 40
	HighRiskFrom   = 70
)

// LevelForScore maps a risk score to its level.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= HighRiskFrom:
		return RiskHigh
	case score >= MediumRiskFrom:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Recommendation returns the action suggested for a risk level.
func (l RiskLevel) Recommendation() string {
	switch l {
	case RiskHigh:
		return "Block transaction and verify with user immediately"
	case RiskMedium:
		return "Request additional verification before processing"
	case RiskLow:
		return "Process transaction normally"
	default:
		return "Review transaction"
	}
}

// RiskFactor is the structured form of a triggered rule.
type RiskFactor struct {
	Factor string    `json:"factor"`
	Value  string    `json:"value"`
	Risk   RiskLevel `json:"risk"`
	Weight int       `json:"weight"`
}

// RiskAnalysis is the output of the transaction risk scorer.
type RiskAnalysis struct {
	RiskScore      int          `json:"riskScore"`
	RiskLevel      RiskLevel    `json:"riskLevel"`
	Reasons        []string     `json:"reasons"`
	Factors        []RiskFactor `json:"factors"`
	Recommendation string       `json:"recommendation"`
	Timestamp      time.Time    `json:"timestamp"`
}

// RuleHit is a triggered operator-defined rule, folded into the risk score
// after the built-in rules.
type RuleHit struct {
	RuleID string     `json:"ruleId"`
	Reason string     `json:"reason"`
	Factor RiskFactor `json:"factor"`
}

// VelocityCheck describes recent activity for a user. It is either
// NoRecentData or a count of transactions observed within a window.
type VelocityCheck struct {
	known  bool
	count  int
	window time.Duration
}

// NoRecentData is the velocity check used when history is unavailable.
func NoRecentData() VelocityCheck {
	return VelocityCheck{}
}

// RecentCount reports n prior transactions within the window.
func RecentCount(n int, window time.Duration) VelocityCheck {
	if n < 0 {
		n = 0
	}
	return VelocityCheck{known: true, count: n, window: window}
}

// Count returns the observed count and whether any data was available.
func (v VelocityCheck) Count() (int, bool) {
	return v.count, v.known
}

// Window returns the observation window.
func (v VelocityCheck) Window() time.Duration {
	return v.window
}

// Exceeds reports whether the check carries data and the count reached
// the threshold.
func (v VelocityCheck) Exceeds(threshold int) bool {
	return v.known && threshold > 0 && v.count >= threshold
}

// ModelInfo describes the scorer that produced a report.
type ModelInfo struct {
	Version    string `json:"version"`
	Algorithm  string `json:"algorithm"`
	Confidence int    `json:"confidence"`
}

// Report is the presentation wrapper around a RiskAnalysis.
type Report struct {
	TransactionID string       `json:"transactionId"`
	UserID        string       `json:"userId,omitempty"`
	Merchant      string       `json:"merchant"`
	Amount        float64      `json:"amount"`
	Time          string       `json:"time"`
	Source        string       `json:"source"`
	Analysis      RiskAnalysis `json:"analysis"`
	MLModel       ModelInfo    `json:"mlModel"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Package risk implements the stateless rule-based transaction scorer.
package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/kavach/internal/domain"
)

const (
	modelVersion   = "1.0.0"
	modelAlgorithm = "Rule-based + Heuristics"
)

// Inputs carries the context a transaction is scored in.
type Inputs struct {
	Velocity domain.VelocityCheck

	// Extra holds operator rule hits, applied after the built-in rules.
	Extra []domain.RuleHit
}

// Scorer computes additive risk scores. It holds no per-user state and is
// safe for concurrent use.
type Scorer struct {
	th    Thresholds
	known map[string]struct{}
	now   func() time.Time
}

// NewScorer creates a scorer with the given thresholds.
func NewScorer(th Thresholds) *Scorer {
	known := make(map[string]struct{}, len(th.KnownMerchants))
	for _, m := range th.KnownMerchants {
		known[m] = struct{}{}
	}
	if th.TimeBands == "" {
		th.TimeBands = TimeBandsExclusive
	}
	return &Scorer{th: th, known: known, now: time.Now}
}

// Thresholds returns the scorer's configuration.
func (s *Scorer) Thresholds() Thresholds {
	return s.th
}

type tally struct {
	score   int
	reasons []string
	factors []domain.RiskFactor
}

func (t *tally) add(reason string, f domain.RiskFactor) {
	t.score += f.Weight
	t.reasons = append(t.reasons, reason)
	t.factors = append(t.factors, f)
}

// Analyze scores a transaction. It never fails; a malformed time label is
// scored as noon.
func (s *Scorer) Analyze(tx *domain.Transaction, in Inputs) domain.RiskAnalysis {
	th := s.th
	t := &tally{reasons: []string{}, factors: []domain.RiskFactor{}}

	switch {
	case tx.Amount > th.HighAmount:
		t.add("High amount transaction", domain.RiskFactor{
			Factor: "Amount", Value: domain.FormatRupees(tx.Amount), Risk: domain.RiskHigh, Weight: th.HighAmountWeight,
		})
	case tx.Amount > th.ModerateAmount:
		t.add("Moderate amount transaction", domain.RiskFactor{
			Factor: "Amount", Value: domain.FormatRupees(tx.Amount), Risk: domain.RiskMedium, Weight: th.ModerateAmountWeight,
		})
	}

	hour := tx.Hour()
	lateNight := hour >= th.LateNightFrom && hour < th.LateNightUntil
	unusual := hour >= th.UnusualFrom || hour < th.UnusualUntil
	if lateNight {
		t.add(fmt.Sprintf("Late night transaction (%s)", tx.Time), domain.RiskFactor{
			Factor: "Time", Value: tx.Time, Risk: domain.RiskHigh, Weight: th.LateNightWeight,
		})
	}
	if unusual && (!lateNight || th.TimeBands == TimeBandsCumulative) {
		t.add(fmt.Sprintf("Unusual time (%s)", tx.Time), domain.RiskFactor{
			Factor: "Time", Value: tx.Time, Risk: domain.RiskMedium, Weight: th.UnusualWeight,
		})
	}

	if _, ok := s.known[tx.Merchant]; !ok {
		t.add("New merchant", domain.RiskFactor{
			Factor: "Merchant", Value: tx.Merchant, Risk: domain.RiskMedium, Weight: th.NewMerchantWeight,
		})
	}

	if tx.Source == "UPI" && tx.Amount > th.HighUPIAmount {
		t.add("High UPI transaction", domain.RiskFactor{
			Factor: "Payment Method", Value: tx.Source, Risk: domain.RiskMedium, Weight: th.HighUPIWeight,
		})
	}

	if in.Velocity.Exceeds(th.VelocityThreshold) {
		t.add("Multiple transactions in short time", domain.RiskFactor{
			Factor: "Velocity", Value: "High frequency", Risk: domain.RiskMedium, Weight: th.VelocityWeight,
		})
	}

	extra := append([]domain.RuleHit(nil), in.Extra...)
	sort.SliceStable(extra, func(i, j int) bool { return extra[i].RuleID < extra[j].RuleID })
	for _, hit := range extra {
		t.add(hit.Reason, hit.Factor)
	}

	score := Clamp(t.score)
	level := domain.LevelForScore(score)

	return domain.RiskAnalysis{
		RiskScore:      score,
		RiskLevel:      level,
		Reasons:        t.reasons,
		Factors:        t.factors,
		Recommendation: level.Recommendation(),
		Timestamp:      s.now().UTC(),
	}
}

// GenerateReport wraps an analysis with the echoed transaction fields and
// model metadata.
func (s *Scorer) GenerateReport(tx *domain.Transaction, analysis domain.RiskAnalysis) *domain.Report {
	now := s.now().UTC()

	id := tx.ID
	if id == "" {
		id = fmt.Sprintf("txn_%d", now.UnixMilli())
	}

	return &domain.Report{
		TransactionID: id,
		UserID:        tx.UserID,
		Merchant:      tx.Merchant,
		Amount:        tx.Amount,
		Time:          tx.Time,
		Source:        tx.Source,
		Analysis:      analysis,
		MLModel: domain.ModelInfo{
			Version:    modelVersion,
			Algorithm:  modelAlgorithm,
			Confidence: Confidence(len(analysis.Factors)),
		},
		Timestamp: now,
	}
}

// Confidence grows with the number of factors, capped at 95.
func Confidence(factorCount int) int {
	return min(60+10*factorCount, 95)
}

// Clamp bounds a raw score to [0, 100].
func Clamp(score int) int {
	return max(0, min(score, 100))
}

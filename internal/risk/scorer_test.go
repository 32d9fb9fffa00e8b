package risk

import (
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kavach/internal/domain"
)

func newTestScorer(th Thresholds) *Scorer {
	s := NewScorer(th)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestAnalyze_KnownMerchantDaytime(t *testing.T) {
	s := newTestScorer(DefaultThresholds())

	a := s.Analyze(&domain.Transaction{Merchant: "Amazon", Amount: 2499, Time: "10:42 AM", Source: "UPI"}, Inputs{})

	assert.Equal(t, 0, a.RiskScore)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
	assert.NotContains(t, a.Reasons, "New merchant")
	assert.Equal(t, "Process transaction normally", a.Recommendation)
	assert.Empty(t, a.Factors)
}

func TestAnalyze_LateNightHighUPI(t *testing.T) {
	s := newTestScorer(DefaultThresholds())
	tx := &domain.Transaction{Merchant: "Flipkart", Amount: 32000, Time: "2:14 AM", Source: "UPI"}

	a := s.Analyze(tx, Inputs{Velocity: domain.NoRecentData()})

	assert.Equal(t, 90, a.RiskScore)
	assert.Equal(t, domain.RiskHigh, a.RiskLevel)
	assert.Equal(t, []string{
		"High amount transaction",
		"Late night transaction (2:14 AM)",
		"New merchant",
		"High UPI transaction",
	}, a.Reasons)
	require.Len(t, a.Factors, 4)
	assert.Equal(t, domain.RiskFactor{Factor: "Amount", Value: "₹32,000", Risk: domain.RiskHigh, Weight: 30}, a.Factors[0])
	assert.Equal(t, "Block transaction and verify with user immediately", a.Recommendation)

	t.Run("WithVelocity", func(t *testing.T) {
		a := s.Analyze(tx, Inputs{Velocity: domain.RecentCount(3, 10*time.Minute)})
		assert.Equal(t, 100, a.RiskScore)
		assert.Contains(t, a.Reasons, "Multiple transactions in short time")
	})

	t.Run("CumulativeBandsClamp", func(t *testing.T) {
		th := DefaultThresholds()
		th.TimeBands = TimeBandsCumulative
		a := newTestScorer(th).Analyze(tx, Inputs{})

		assert.Equal(t, 100, a.RiskScore, "30+25+12+20+15 must clamp to 100")
		assert.Contains(t, a.Reasons, "Unusual time (2:14 AM)")
		assert.Len(t, a.Factors, 5)
	})
}

func TestAnalyze_TimeBands(t *testing.T) {
	s := newTestScorer(DefaultThresholds())

	tests := []struct {
		time  string
		score int
	}{
		{"12:30 AM", 25},
		{"0:30 AM", 25},
		{"4:59 AM", 25},
		{"5:00 AM", 12},
		{"6:00 AM", 0},
		{"9:59 PM", 0},
		{"10:00 PM", 12},
		{"11:45 pm", 12},
		{"garbage", 0},
		{"13:00 PM", 0},
	}

	for _, tt := range tests {
		t.Run(tt.time, func(t *testing.T) {
			a := s.Analyze(&domain.Transaction{Merchant: "Swiggy", Amount: 100, Time: tt.time}, Inputs{})
			assert.Equal(t, tt.score, a.RiskScore)
		})
	}
}

func TestAnalyze_AmountMonotonic(t *testing.T) {
	s := newTestScorer(DefaultThresholds())
	amounts := []float64{9999, 10000, 10000.01, 20000, 20000.01, 25000, 25000.01, 100000}

	for _, source := range []string{"UPI", "Card"} {
		prev := -1
		for _, amount := range amounts {
			a := s.Analyze(&domain.Transaction{Merchant: "Zomato", Amount: amount, Time: "1:00 PM", Source: source}, Inputs{})
			assert.GreaterOrEqual(t, a.RiskScore, prev, "score decreased at %v via %s", amount, source)
			prev = a.RiskScore
		}
	}
}

func TestAnalyze_VelocityCheck(t *testing.T) {
	s := newTestScorer(DefaultThresholds())
	tx := &domain.Transaction{Merchant: "Netflix", Amount: 499, Time: "8:00 PM"}

	assert.Equal(t, 0, s.Analyze(tx, Inputs{Velocity: domain.NoRecentData()}).RiskScore)
	assert.Equal(t, 0, s.Analyze(tx, Inputs{Velocity: domain.RecentCount(2, time.Minute)}).RiskScore)
	assert.Equal(t, 10, s.Analyze(tx, Inputs{Velocity: domain.RecentCount(3, time.Minute)}).RiskScore)
}

func TestAnalyze_ExtraHitsOrderedByRuleID(t *testing.T) {
	s := newTestScorer(DefaultThresholds())

	a := s.Analyze(&domain.Transaction{Merchant: "Amazon", Amount: 100, Time: "1:00 PM"}, Inputs{
		Extra: []domain.RuleHit{
			{RuleID: "r-b", Reason: "second", Factor: domain.RiskFactor{Factor: "Rule", Weight: 5}},
			{RuleID: "r-a", Reason: "first", Factor: domain.RiskFactor{Factor: "Rule", Weight: 7}},
		},
	})

	assert.Equal(t, 12, a.RiskScore)
	assert.Equal(t, []string{"first", "second"}, a.Reasons)
}

func TestAnalyze_ClampInvariant(t *testing.T) {
	s := newTestScorer(DefaultThresholds())
	merchants := []string{"Amazon", "Swiggy", "Flipkart", "Myntra", "Zomato"}
	sources := []string{"UPI", "Card", "NetBanking", "Wallet", ""}

	for i := 0; i < 500; i++ {
		tx := &domain.Transaction{
			Merchant: gofakeit.RandomString(merchants),
			Amount:   gofakeit.Float64Range(0.01, 200000),
			Time:     fmt.Sprintf("%d:%02d %s", gofakeit.IntRange(1, 12), gofakeit.IntRange(0, 59), gofakeit.RandomString([]string{"AM", "PM"})),
			Source:   gofakeit.RandomString(sources),
		}
		extra := []domain.RuleHit{{RuleID: "big", Reason: "x", Factor: domain.RiskFactor{Weight: gofakeit.IntRange(0, 100)}}}

		a := s.Analyze(tx, Inputs{Velocity: domain.RecentCount(gofakeit.IntRange(0, 6), time.Minute), Extra: extra})
		require.GreaterOrEqual(t, a.RiskScore, 0)
		require.LessOrEqual(t, a.RiskScore, 100)
		require.Equal(t, domain.LevelForScore(a.RiskScore), a.RiskLevel)
		require.Len(t, a.Factors, len(a.Reasons))
	}
}

func TestGenerateReport(t *testing.T) {
	s := newTestScorer(DefaultThresholds())
	tx := &domain.Transaction{UserID: "u-1", Merchant: "Flipkart", Amount: 32000, Time: "2:14 AM", Source: "UPI"}
	a := s.Analyze(tx, Inputs{})

	r := s.GenerateReport(tx, a)

	assert.Equal(t, fmt.Sprintf("txn_%d", s.now().UnixMilli()), r.TransactionID)
	assert.Equal(t, "1.0.0", r.MLModel.Version)
	assert.Equal(t, "Rule-based + Heuristics", r.MLModel.Algorithm)
	assert.Equal(t, 95, r.MLModel.Confidence)
	assert.Equal(t, a, r.Analysis)

	tx.ID = "tx-9"
	assert.Equal(t, "tx-9", s.GenerateReport(tx, a).TransactionID)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 60, Confidence(0))
	assert.Equal(t, 80, Confidence(2))
	assert.Equal(t, 95, Confidence(4))
	assert.Equal(t, 95, Confidence(9))
}

func TestParseTimeBandMode(t *testing.T) {
	m, err := ParseTimeBandMode("")
	require.NoError(t, err)
	assert.Equal(t, TimeBandsExclusive, m)

	m, err = ParseTimeBandMode("cumulative")
	require.NoError(t, err)
	assert.Equal(t, TimeBandsCumulative, m)

	_, err = ParseTimeBandMode("both")
	assert.Error(t, err)
}

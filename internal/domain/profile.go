package domain

import (
	"time"
)

// DefaultTrustScore is the trust score of a fresh profile.
const DefaultTrustScore = 50

// SpendingPattern is the running behavioral aggregate for a user.
type SpendingPattern struct {
	AverageTransaction float64        `json:"averageTransaction"`
	MaxTransaction     float64        `json:"maxTransaction"`
	MinTransaction     float64        `json:"minTransaction"`
	TotalSpent         float64        `json:"totalSpent"`
	TransactionCount   int            `json:"transactionCount"`
	FrequentMerchants  map[string]int `json:"frequentMerchants"`
	FrequentCategories map[string]int `json:"frequentCategories"`
	TimePatterns       map[int]int    `json:"timePatterns"`
	DayPatterns        map[string]int `json:"dayPatterns"`
	PaymentMethods     map[string]int `json:"paymentMethods"`
}

// Profile is the behavioral profile of a single user.
type Profile struct {
	UserID      string          `json:"userId"`
	Patterns    SpendingPattern `json:"patterns"`
	LastUpdated time.Time       `json:"lastUpdated"`
	RiskFactors []string        `json:"riskFactors"`
	TrustScore  int             `json:"trustScore"`
}

// NewProfile returns an empty profile with the neutral trust score.
func NewProfile(userID string, now time.Time) *Profile {
	p := &Profile{
		UserID:      userID,
		LastUpdated: now,
		RiskFactors: []string{},
		TrustScore:  DefaultTrustScore,
	}
	p.Patterns.ensureMaps()
	return p
}

// Normalize fills nil maps, e.g. after decoding a stored blob.
func (p *Profile) Normalize() {
	p.Patterns.ensureMaps()
	if p.RiskFactors == nil {
		p.RiskFactors = []string{}
	}
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Patterns.FrequentMerchants = copyCounts(p.Patterns.FrequentMerchants)
	c.Patterns.FrequentCategories = copyCounts(p.Patterns.FrequentCategories)
	c.Patterns.DayPatterns = copyCounts(p.Patterns.DayPatterns)
	c.Patterns.PaymentMethods = copyCounts(p.Patterns.PaymentMethods)
	c.Patterns.TimePatterns = make(map[int]int, len(p.Patterns.TimePatterns))
	for h, n := range p.Patterns.TimePatterns {
		c.Patterns.TimePatterns[h] = n
	}
	c.RiskFactors = append([]string{}, p.RiskFactors...)
	return &c
}

// HasRiskFactor reports whether the factor was recorded.
func (p *Profile) HasRiskFactor(factor string) bool {
	for _, f := range p.RiskFactors {
		if f == factor {
			return true
		}
	}
	return false
}

func (s *SpendingPattern) ensureMaps() {
	if s.FrequentMerchants == nil {
		s.FrequentMerchants = map[string]int{}
	}
	if s.FrequentCategories == nil {
		s.FrequentCategories = map[string]int{}
	}
	if s.TimePatterns == nil {
		s.TimePatterns = map[int]int{}
	}
	if s.DayPatterns == nil {
		s.DayPatterns = map[string]int{}
	}
	if s.PaymentMethods == nil {
		s.PaymentMethods = map[string]int{}
	}
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AnomalyResult is the output of comparing a transaction to a profile.
type AnomalyResult struct {
	IsAnomalous bool     `json:"isAnomalous"`
	Reasons     []string `json:"reasons"`
	RiskScore   int      `json:"riskScore"`
}

// NamedCount is a histogram bucket used in insights.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Insights is a read-only projection of a profile.
type Insights struct {
	TopMerchants           []NamedCount `json:"topMerchants"`
	TopCategories          []NamedCount `json:"topCategories"`
	PreferredPaymentMethod string       `json:"preferredPaymentMethod"`
	MostActiveTime         string       `json:"mostActiveTime"`
	MostActiveDay          string       `json:"mostActiveDay"`
	SpendingTrend          string       `json:"spendingTrend"`
}

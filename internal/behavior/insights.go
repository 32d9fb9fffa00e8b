package behavior

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/opensource-finance/kavach/internal/domain"
)

const (
	unknown    = "Unknown"
	topEntries = 5
)

// Spending trend labels by average transaction amount.
const (
	highSpenderAbove     = 5000
	moderateSpenderAbove = 1000
)

// Insights summarizes the user's profile. Unknown users get placeholder
// values rather than an error.
func (d *Detector) Insights(ctx context.Context, userID string) (domain.Insights, error) {
	p, err := d.Profile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return EmptyInsights(), nil
	}
	if err != nil {
		var se *StoreError
		if errors.As(err, &se) && d.policy == PolicyFallback {
			return EmptyInsights(), nil
		}
		return domain.Insights{}, err
	}
	return InsightsFor(p), nil
}

// EmptyInsights is returned for users without a profile.
func EmptyInsights() domain.Insights {
	return domain.Insights{
		TopMerchants:           []domain.NamedCount{},
		TopCategories:          []domain.NamedCount{},
		PreferredPaymentMethod: unknown,
		MostActiveTime:         unknown,
		MostActiveDay:          unknown,
		SpendingTrend:          "No data",
	}
}

// InsightsFor projects a profile into insights.
func InsightsFor(p *domain.Profile) domain.Insights {
	pt := p.Patterns

	in := domain.Insights{
		TopMerchants:           top(pt.FrequentMerchants, topEntries),
		TopCategories:          top(pt.FrequentCategories, topEntries),
		PreferredPaymentMethod: unknown,
		MostActiveTime:         unknown,
		MostActiveDay:          unknown,
		SpendingTrend:          spendingTrend(pt.AverageTransaction),
	}

	if m := top(pt.PaymentMethods, 1); len(m) == 1 {
		in.PreferredPaymentMethod = m[0].Name
	}
	if m := top(pt.DayPatterns, 1); len(m) == 1 {
		in.MostActiveDay = m[0].Name
	}
	if hour, ok := busiestHour(pt.TimePatterns); ok {
		in.MostActiveTime = fmt.Sprintf("%d:00 - %d:00", hour, hour+1)
	}
	return in
}

// top returns the n largest buckets, count descending then name ascending.
func top(counts map[string]int, n int) []domain.NamedCount {
	out := make([]domain.NamedCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, domain.NamedCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// busiestHour picks the most frequent hour, preferring the earliest on ties.
func busiestHour(hours map[int]int) (int, bool) {
	best, bestCount := 0, 0
	for h, c := range hours {
		if c > bestCount || (c == bestCount && c > 0 && h < best) {
			best, bestCount = h, c
		}
	}
	return best, bestCount > 0
}

func spendingTrend(avg float64) string {
	switch {
	case avg > highSpenderAbove:
		return "High spender"
	case avg > moderateSpenderAbove:
		return "Moderate spender"
	default:
		return "Conservative spender"
	}
}

// Package parser extracts transactions from bank SMS and notification text.
package parser

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kavach/internal/domain"
)

// Confidence assigned to pattern-based extraction.
const PatternConfidence = 60

// Transaction directions.
const (
	TypeDebit  = "debit"
	TypeCredit = "credit"
)

var (
	ErrMissingAmount   = errors.New("amount not found")
	ErrMissingMerchant = errors.New("merchant not found")
)

// ParsedTransaction is what could be recovered from a message.
type ParsedTransaction struct {
	Merchant   string   `json:"merchant,omitempty"`
	Amount     float64  `json:"amount,omitempty"`
	Time       string   `json:"time,omitempty"`
	Date       string   `json:"date,omitempty"`
	Source     string   `json:"source,omitempty"`
	Type       string   `json:"type,omitempty"`
	Reference  string   `json:"reference,omitempty"`
	Balance    *float64 `json:"balance,omitempty"`
	Confidence int      `json:"confidence"`
}

var (
	amountPattern  = regexp.MustCompile(`(?i)Rs\.?\s*([0-9,]+(?:\.[0-9]{2})?)`)
	balancePattern = regexp.MustCompile(`(?i)(?:Avl Bal|Balance):\s*Rs\.?\s*([0-9,]+(?:\.[0-9]{2})?)`)
	datePattern    = regexp.MustCompile(`(\d{1,2})-([A-Za-z]{3})-(\d{2})`)
	timePattern    = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*(AM|PM)`)

	// Tried in order; the first match wins.
	merchantPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:to|from)\s+([A-Za-z0-9\s]+?)(?:\s+via|\s+using|\s+on|\.)`),
		regexp.MustCompile(`(?i)paid\s+to\s+([A-Za-z0-9\s]+)`),
		regexp.MustCompile(`(?i)received\s+from\s+([A-Za-z0-9\s]+)`),
	}
	referencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Ref|TxnID|UPI Ref):\s*([A-Z0-9]+)`),
		regexp.MustCompile(`([A-Z0-9]{10,})`),
	}

	// Checked in order against the lower-cased text.
	sourceKeywords = []struct{ keyword, source string }{
		{"upi", "UPI"},
		{"card", "Card"},
		{"netbanking", "NetBanking"},
		{"wallet", "Wallet"},
	}
)

// Parser extracts transactions with regular expressions.
type Parser struct {
	// Now supplies the time used when a message carries none.
	Now func() time.Time
}

// New returns a parser using the wall clock.
func New() *Parser {
	return &Parser{Now: time.Now}
}

// Parse extracts what it can from text using the wall clock.
func Parse(text string) ParsedTransaction {
	return New().Parse(text)
}

// Parse extracts what it can from text. It never fails; missing fields
// are left empty.
func (p *Parser) Parse(text string) ParsedTransaction {
	out := ParsedTransaction{Confidence: PatternConfidence}
	lower := strings.ToLower(text)

	if m := amountPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseRupees(m[1]); ok {
			out.Amount = v
		}
	}

	for _, re := range merchantPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			out.Merchant = strings.TrimSpace(m[1])
			break
		}
	}

	for _, k := range sourceKeywords {
		if strings.Contains(lower, k.keyword) {
			out.Source = k.source
			break
		}
	}

	switch {
	case strings.Contains(lower, "debited"), strings.Contains(lower, "paid"):
		out.Type = TypeDebit
	case strings.Contains(lower, "credited"), strings.Contains(lower, "received"):
		out.Type = TypeCredit
	}

	out.Date = datePattern.FindString(text)

	if m := timePattern.FindString(text); m != "" {
		out.Time = m
	} else {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		out.Time = domain.FormatClock(now())
	}

	for _, re := range referencePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			out.Reference = m[1]
			break
		}
	}

	if m := balancePattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseRupees(m[1]); ok {
			out.Balance = &v
		}
	}

	return out
}

// parseRupees reads "1,23,456.78" style amounts.
func parseRupees(s string) (float64, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// Validate reports whether the result is usable as a transaction.
func (pt ParsedTransaction) Validate() error {
	if pt.Amount <= 0 {
		return ErrMissingAmount
	}
	if pt.Merchant == "" {
		return ErrMissingMerchant
	}
	return nil
}

// Format renders a one-line summary, e.g. "Paid ₹500 to Swiggy via UPI at 8:15 PM".
func (pt ParsedTransaction) Format() string {
	var parts []string

	if pt.Type != "" {
		if pt.Type == TypeDebit {
			parts = append(parts, "Paid")
		} else {
			parts = append(parts, "Received")
		}
	}
	if pt.Amount > 0 {
		parts = append(parts, domain.FormatRupees(pt.Amount))
	}
	if pt.Merchant != "" {
		if pt.Type == TypeDebit {
			parts = append(parts, "to "+pt.Merchant)
		} else {
			parts = append(parts, "from "+pt.Merchant)
		}
	}
	if pt.Source != "" {
		parts = append(parts, "via "+pt.Source)
	}
	if pt.Time != "" {
		parts = append(parts, "at "+pt.Time)
	}

	return strings.Join(parts, " ")
}

// ToTransaction converts a parsed message into a transaction for userID.
func (pt ParsedTransaction) ToTransaction(userID string) *domain.Transaction {
	return &domain.Transaction{
		UserID:   userID,
		Merchant: pt.Merchant,
		Amount:   pt.Amount,
		Time:     pt.Time,
		Source:   pt.Source,
	}
}

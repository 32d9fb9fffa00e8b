package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultHour is used when a transaction time cannot be parsed.
const DefaultHour = 12

// Transaction represents an incoming payment to be scored.
type Transaction struct {
	ID       string  `json:"id,omitempty"`
	UserID   string  `json:"userId,omitempty"`
	Merchant string  `json:"merchant" validate:"required"`
	Amount   float64 `json:"amount" validate:"gt=0"`

	// Time is the wall-clock label as shown to the user, e.g. "2:14 AM".
	// A missing or unparseable label is scored as DefaultHour.
	Time string `json:"time"`

	// Source is the payment rail (UPI, Card, NetBanking, Wallet).
	Source   string `json:"source,omitempty"`
	Category string `json:"category,omitempty"`

	// Timestamp is when the transaction happened. Zero means unknown.
	Timestamp time.Time `json:"timestamp,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

var clockPattern = regexp.MustCompile(`(?i)(\d+):(\d+)\s*(AM|PM)`)

// ParseHour extracts the hour of day (0-23) from an "H:MM AM/PM" label.
// The second return value is false when the label could not be parsed,
// in which case DefaultHour is returned.
func ParseHour(label string) (int, bool) {
	m := clockPattern.FindStringSubmatch(label)
	if m == nil {
		return DefaultHour, false
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 12 {
		return DefaultHour, false
	}
	ampm := strings.ToUpper(m[3])
	// "0:30 AM" is a real label some banks print for just after midnight.
	if hour == 0 && ampm != "AM" {
		return DefaultHour, false
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil || minute > 59 {
		return DefaultHour, false
	}

	switch ampm {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, true
}

// Hour returns the parsed hour of day for the transaction.
func (t *Transaction) Hour() int {
	h, _ := ParseHour(t.Time)
	return h
}

// Weekday returns the English weekday name the transaction belongs to.
// Falls back to now when the transaction carries no timestamp.
func (t *Transaction) Weekday(now time.Time) string {
	if t.Timestamp.IsZero() {
		return now.Weekday().String()
	}
	return t.Timestamp.Weekday().String()
}

// FormatClock renders a time as an "H:MM AM/PM" label.
func FormatClock(ts time.Time) string {
	return ts.Format("3:04 PM")
}

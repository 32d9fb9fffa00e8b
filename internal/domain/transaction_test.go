package domain

import (
	"testing"
	"time"
)

func TestParseHour(t *testing.T) {
	tests := []struct {
		label string
		hour  int
		ok    bool
	}{
		{"2:14 AM", 2, true},
		{"12:05 AM", 0, true},
		{"0:30 AM", 0, true},
		{"12:00 PM", 12, true},
		{"1:00 pm", 13, true},
		{"11:59 PM", 23, true},
		{"paid at 9:30 AM via UPI", 9, true},
		{"0:30 PM", DefaultHour, false},
		{"13:00 PM", DefaultHour, false},
		{"10:75 AM", DefaultHour, false},
		{"14:00", DefaultHour, false},
		{"", DefaultHour, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			hour, ok := ParseHour(tt.label)
			if hour != tt.hour || ok != tt.ok {
				t.Errorf("ParseHour(%q) = %d, %v; want %d, %v", tt.label, hour, ok, tt.hour, tt.ok)
			}
		})
	}
}

func TestTransactionWeekday(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday

	tx := &Transaction{}
	if got := tx.Weekday(now); got != "Wednesday" {
		t.Errorf("expected fallback to now, got %s", got)
	}

	tx.Timestamp = now.AddDate(0, 0, 2)
	if got := tx.Weekday(now); got != "Friday" {
		t.Errorf("expected timestamp weekday, got %s", got)
	}
}

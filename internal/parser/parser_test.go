package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedParser() *Parser {
	return &Parser{Now: func() time.Time { return time.Date(2026, 3, 4, 21, 5, 0, 0, time.UTC) }}
}

func TestParse_DebitSMS(t *testing.T) {
	text := "Rs.32,000.00 debited from A/c XX1234 to FLIPKART via UPI on 05-Jan-25 at 2:14 AM. UPI Ref: 412345678901. Avl Bal: Rs.1,23,456.78"

	got := fixedParser().Parse(text)

	assert.Equal(t, 32000.0, got.Amount)
	assert.Equal(t, "FLIPKART", got.Merchant)
	assert.Equal(t, "UPI", got.Source)
	assert.Equal(t, TypeDebit, got.Type)
	assert.Equal(t, "05-Jan-25", got.Date)
	assert.Equal(t, "2:14 AM", got.Time)
	assert.Equal(t, "412345678901", got.Reference)
	require.NotNil(t, got.Balance)
	assert.Equal(t, 123456.78, *got.Balance)
	assert.Equal(t, PatternConfidence, got.Confidence)
	assert.NoError(t, got.Validate())
}

func TestParse_CreditWithoutTime(t *testing.T) {
	got := fixedParser().Parse("You have received Rs 1500 from Rahul Sharma on 10-Feb-25")

	assert.Equal(t, 1500.0, got.Amount)
	assert.Equal(t, "Rahul Sharma", got.Merchant)
	assert.Equal(t, TypeCredit, got.Type)
	assert.Equal(t, "9:05 PM", got.Time, "falls back to the parser clock")
	assert.Empty(t, got.Source)
	assert.Empty(t, got.Reference)
	assert.Nil(t, got.Balance)
}

func TestParse_MerchantFallbacks(t *testing.T) {
	p := fixedParser()

	assert.Equal(t, "Swiggy Instamart", p.Parse("Paid to Swiggy Instamart").Merchant)
	assert.Equal(t, "Card", p.Parse("Rs.899 spent on your credit card at Myntra").Source)
	assert.Equal(t, "TXN9988776655", p.Parse("Payment TXN9988776655 done").Reference)
}

func TestParse_Nothing(t *testing.T) {
	got := fixedParser().Parse("hello there")

	assert.Zero(t, got.Amount)
	assert.Empty(t, got.Merchant)
	assert.ErrorIs(t, got.Validate(), ErrMissingAmount)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, ParsedTransaction{Amount: 10}.Validate(), ErrMissingMerchant)
	assert.NoError(t, ParsedTransaction{Amount: 10, Merchant: "Uber"}.Validate())
}

func TestFormat(t *testing.T) {
	debit := ParsedTransaction{Type: TypeDebit, Amount: 500, Merchant: "Swiggy", Source: "UPI", Time: "8:15 PM"}
	assert.Equal(t, "Paid ₹500 to Swiggy via UPI at 8:15 PM", debit.Format())

	credit := ParsedTransaction{Type: TypeCredit, Amount: 150000, Merchant: "Employer"}
	assert.Equal(t, "Received ₹1,50,000 from Employer", credit.Format())
}

func TestToTransaction(t *testing.T) {
	pt := fixedParser().Parse("Rs.250 paid to Zomato via UPI at 1:30 PM")
	tx := pt.ToTransaction("user-7")

	assert.Equal(t, "user-7", tx.UserID)
	assert.Equal(t, "Zomato", tx.Merchant)
	assert.Equal(t, 250.0, tx.Amount)
	assert.Equal(t, "1:30 PM", tx.Time)
	assert.Equal(t, "UPI", tx.Source)
	assert.Equal(t, 13, tx.Hour())
}

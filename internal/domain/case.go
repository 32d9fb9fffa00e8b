package domain

import "time"

// CaseStatus is the outcome of a user's fraud feedback.
type CaseStatus string

const (
	CaseReported CaseStatus = "Reported"
	CaseVerified CaseStatus = "Verified"
)

// Case records a user reporting a transaction as fraud or confirming it
// as legitimate.
type Case struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	UserID        string     `json:"userId"`
	Status        CaseStatus `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	Action        string     `json:"action"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// FraudStats summarizes stored transactions, reports and cases.
type FraudStats struct {
	TotalTransactions      int       `json:"totalTransactions"`
	SuspiciousTransactions int       `json:"suspiciousTransactions"`
	BlockedTransactions    int       `json:"blockedTransactions"`
	VerifiedTransactions   int       `json:"verifiedTransactions"`
	FraudRate              float64   `json:"fraudRate"`
	AverageRiskScore       int       `json:"averageRiskScore"`
	LastUpdated            time.Time `json:"lastUpdated"`
}

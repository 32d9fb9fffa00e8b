package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kavach/internal/domain"
)

// SaveCase stores a fraud report or verification.
func (r *SQLRepository) SaveCase(ctx context.Context, c *domain.Case) error {
	if c == nil || c.ID == "" || c.TransactionID == "" {
		return fmt.Errorf("%w: case id and transactionId are required", ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO fraud_cases (id, transaction_id, user_id, status, reason, action, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.TransactionID, c.UserID, string(c.Status), c.Reason, c.Action, c.CreatedAt,
	)
	return err
}

// GetStats summarizes stored transactions, reports and cases.
func (r *SQLRepository) GetStats(ctx context.Context) (*domain.FraudStats, error) {
	stats := &domain.FraudStats{LastUpdated: time.Now().UTC()}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions`,
	).Scan(&stats.TotalTransactions); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT COUNT(CASE WHEN risk_level <> ? THEN 1 END), AVG(risk_score) FROM risk_reports`,
	), string(domain.RiskLow)).Scan(&stats.SuspiciousTransactions, &avg); err != nil {
		return nil, fmt.Errorf("failed to summarize reports: %w", err)
	}
	if avg.Valid {
		stats.AverageRiskScore = int(math.Round(avg.Float64))
	}

	caseQuery := r.rebind(`SELECT COUNT(DISTINCT transaction_id) FROM fraud_cases WHERE status = ?`)
	if err := r.db.QueryRowContext(ctx, caseQuery, string(domain.CaseReported)).Scan(&stats.BlockedTransactions); err != nil {
		return nil, fmt.Errorf("failed to count reported cases: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, caseQuery, string(domain.CaseVerified)).Scan(&stats.VerifiedTransactions); err != nil {
		return nil, fmt.Errorf("failed to count verified cases: %w", err)
	}

	stats.FraudRate = FraudRate(stats.BlockedTransactions, stats.TotalTransactions)
	return stats, nil
}

// FraudRate is blocked/total as a percentage rounded to one decimal.
func FraudRate(blocked, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(blocked)/float64(total)*1000) / 10
}

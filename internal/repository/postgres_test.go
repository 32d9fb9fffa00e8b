package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kavach/internal/domain"
)

func newMockRepo(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newWithDB(db, "postgres"), mock
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "kavach", PostgresPassword: "secret"})
	assert.Equal(t, "host=localhost port=5432 dbname=kavach sslmode=disable user=kavach password=secret", dsn)

	dsn = postgresDSN(domain.RepositoryConfig{PostgresHost: "db", PostgresPort: 6543, PostgresDB: "risk", PostgresSSLMode: "require"})
	assert.Equal(t, "host=db port=6543 dbname=risk sslmode=require", dsn)
}

func TestPostgresCountTransactionsBetween(t *testing.T) {
	repo, mock := newMockRepo(t)
	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	until := since.Add(10 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND occurred_at_ms >= $2 AND occurred_at_ms <= $3")).
		WithArgs("user-1", since.UnixMilli(), until.UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountTransactionsBetween(context.Background(), "user-1", since, until)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	ts := time.Date(2026, 3, 1, 2, 14, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)")).
		WithArgs("tx-1", "user-1", "Flipkart", 32000.0, "2:14 AM", "UPI", "", ts.UnixMilli(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveTransaction(context.Background(), &domain.Transaction{
		ID: "tx-1", UserID: "user-1", Merchant: "Flipkart", Amount: 32000,
		Time: "2:14 AM", Source: "UPI", Timestamp: ts,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetProfileNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT profile FROM behavioral_profiles WHERE user_id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"profile"}))

	_, err := repo.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetStats(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM transactions")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta("risk_level <> $1")).
		WithArgs("Low").
		WillReturnRows(sqlmock.NewRows([]string{"suspicious", "avg"}).AddRow(3, 52.4))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fraud_cases WHERE status = $1")).
		WithArgs("Reported").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fraud_cases WHERE status = $1")).
		WithArgs("Verified").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	stats, err := repo.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalTransactions)
	assert.Equal(t, 3, stats.SuspiciousTransactions)
	assert.Equal(t, 2, stats.BlockedTransactions)
	assert.Equal(t, 1, stats.VerifiedTransactions)
	assert.Equal(t, 20.0, stats.FraudRate)
	assert.Equal(t, 52, stats.AverageRiskScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStatsQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM transactions")).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetStats(context.Background())
	assert.ErrorContains(t, err, "failed to count transactions")
}

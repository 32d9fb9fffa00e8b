// Package domain defines the core interfaces and types for Kavach.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*Transaction, error)
	CountTransactionsBetween(ctx context.Context, userID string, from, to time.Time) (int64, error)

	// Risk reports
	SaveReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, txID string) (*Report, error)

	// Behavioral profiles, stored as one JSON blob per user
	SaveProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	DeleteProfile(ctx context.Context, userID string) error

	// Operator rule configuration
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Fraud feedback
	SaveCase(ctx context.Context, c *Case) error
	GetStats(ctx context.Context) (*FraudStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ProfileStore persists behavioral profiles. GetProfile must return an
// error satisfying errors.Is(err, ErrProfileNotFound) for unknown users.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	SaveProfile(ctx context.Context, profile *Profile) error
	DeleteProfile(ctx context.Context, userID string) error
}

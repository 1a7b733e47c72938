// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Account profile operations. GetAccountProfile returns
	// ErrNotFound for unknown accounts; callers treat that as the
	// valid "no profile" state, not a failure.
	SaveAccountProfile(ctx context.Context, tenantID string, profile *AccountProfile) error
	GetAccountProfile(ctx context.Context, tenantID string, accountNumber string) (*AccountProfile, error)

	// Transaction history operations. GetRecentTransactions returns
	// at most limit items, most recent first; limit is clamped to
	// MaxHistoryItems.
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetRecentTransactions(ctx context.Context, tenantID string, accountID string, limit int) ([]*Transaction, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, tenantID string, eval *Evaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*Evaluation, error)

	// Screening rule operations
	SaveScreeningRule(ctx context.Context, tenantID string, rule *ScreeningRule) error
	ListScreeningRules(ctx context.Context, tenantID string) ([]*ScreeningRule, error)

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

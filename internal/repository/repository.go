// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAccountProfile upserts an account profile with tenant isolation.
func (r *SQLRepository) SaveAccountProfile(ctx context.Context, tenantID string, profile *domain.AccountProfile) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if profile.AccountNumber == "" {
		return fmt.Errorf("%w: accountNumber is required", domain.ErrInvalidInput)
	}

	usualHours, _ := json.Marshal(profile.UsualHours)

	now := time.Now().UTC()
	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO account_profiles (
			tenant_id, account_number, account_id,
			avg_amount, max_amount, min_amount, stddev_amount,
			total_txn_count, bounced_cheques, bounce_rate,
			usual_hours, unique_payee_count, balance,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, account_number) DO UPDATE SET
			account_id = excluded.account_id,
			avg_amount = excluded.avg_amount,
			max_amount = excluded.max_amount,
			min_amount = excluded.min_amount,
			stddev_amount = excluded.stddev_amount,
			total_txn_count = excluded.total_txn_count,
			bounced_cheques = excluded.bounced_cheques,
			bounce_rate = excluded.bounce_rate,
			usual_hours = excluded.usual_hours,
			unique_payee_count = excluded.unique_payee_count,
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, profile.AccountNumber, profile.AccountID,
		profile.AvgTransactionAmt, profile.MaxTransactionAmt,
		profile.MinTransactionAmt, profile.StdDevTransactionAmt,
		profile.TotalTransactionCount, profile.BouncedChequesCount, profile.BounceRate,
		string(usualHours), profile.UniquePayeeCount, profile.Balance,
		createdAt, now,
	)
	return err
}

// GetAccountProfile retrieves an account profile with tenant isolation.
// Returns domain.ErrNotFound for unknown accounts.
func (r *SQLRepository) GetAccountProfile(ctx context.Context, tenantID string, accountNumber string) (*domain.AccountProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT account_number, account_id,
			   avg_amount, max_amount, min_amount, stddev_amount,
			   total_txn_count, bounced_cheques, bounce_rate,
			   usual_hours, unique_payee_count, balance, created_at
		FROM account_profiles
		WHERE tenant_id = ? AND account_number = ?
	`

	var p domain.AccountProfile
	var usualHours sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountNumber).Scan(
		&p.AccountNumber, &p.AccountID,
		&p.AvgTransactionAmt, &p.MaxTransactionAmt,
		&p.MinTransactionAmt, &p.StdDevTransactionAmt,
		&p.TotalTransactionCount, &p.BouncedChequesCount, &p.BounceRate,
		&usualHours, &p.UniquePayeeCount, &p.Balance, &p.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if usualHours.Valid && usualHours.String != "" {
		json.Unmarshal([]byte(usualHours.String), &p.UsualHours)
	}

	return &p, nil
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, account_id, txn_type, amount, receiver_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.AccountID, tx.TxnType,
		tx.Amount, tx.ReceiverName, tx.CreatedAt,
	)
	return err
}

// GetRecentTransactions retrieves the most recent transactions for an
// account, newest first. The limit is clamped to MaxHistoryItems.
func (r *SQLRepository) GetRecentTransactions(ctx context.Context, tenantID string, accountID string, limit int) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	if limit <= 0 || limit > domain.MaxHistoryItems {
		limit = domain.MaxHistoryItems
	}

	query := `
		SELECT id, tenant_id, account_id, txn_type, amount, receiver_name, created_at
		FROM transactions
		WHERE tenant_id = ? AND account_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var receiver sql.NullString

		if err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.AccountID, &tx.TxnType,
			&tx.Amount, &receiver, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.ReceiverName = receiver.String
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SaveEvaluation stores an evaluation result with tenant isolation.
// Scalar columns carry the queryable fields; the full document is kept
// as JSON in the result column.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	result, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			id, tenant_id, cheque_number, account_number, amount,
			fraud_score, risk_level, decision, timestamp, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.ChequeNumber, eval.AccountNumber, eval.Amount,
		eval.FraudScore, eval.RiskLevel, eval.Decision, eval.Timestamp,
		string(result),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT result
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	var result string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID).Scan(&result)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var eval domain.Evaluation
	if err := json.Unmarshal([]byte(result), &eval); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation %s: %w", evalID, err)
	}

	return &eval, nil
}

// SaveScreeningRule upserts a screening rule with tenant isolation.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, tenant_id, name, description, expression,
			points, severity, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			points = excluded.points,
			severity = excluded.severity,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Expression,
		rule.Points, rule.Severity, rule.Reason, enabled,
		now, now,
	)
	return err
}

// ListScreeningRules retrieves all enabled screening rules for a tenant.
func (r *SQLRepository) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, points, severity, reason, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.ScreeningRule
	for rows.Next() {
		var cfg domain.ScreeningRule
		var description, reason sql.NullString
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &description,
			&cfg.Expression, &cfg.Points, &cfg.Severity, &reason, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Description = description.String
		cfg.Reason = reason.String
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// Package engine orchestrates the scoring pipeline: profile fetch,
// feature extraction, rule and screening evaluation, anomaly blending,
// classification and explanation, then persistence of the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/explain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// EngineVersion is stamped into every evaluation's metadata.
const EngineVersion = "kestrel-1.0"

var tracer = otel.Tracer("kestrel-engine")

const (
	profileCacheTTL  = 5 * time.Minute
	submissionWindow = time.Hour
)

// Engine evaluates cheques. Repository and cache failures degrade to
// profile-less scoring; only an unparseable request is an error.
type Engine struct {
	repo      domain.Repository
	cache     domain.Cache
	screening *rules.ScreeningEngine
	anomaly   *anomaly.Adapter

	// nowFn is the clock; replaceable in tests.
	nowFn func() time.Time
}

// New creates a scoring engine. Repository, cache and anomaly adapter
// may each be nil; the pipeline degrades around them.
func New(repo domain.Repository, cache domain.Cache, screening *rules.ScreeningEngine, adapter *anomaly.Adapter) *Engine {
	return &Engine{
		repo:      repo,
		cache:     cache,
		screening: screening,
		anomaly:   adapter,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateInput carries one scoring request through the pipeline.
type EvaluateInput struct {
	TenantID  string
	TraceID   string
	Request   *domain.ScoreRequest
	StartTime time.Time
}

// Evaluate runs the full pipeline for one cheque and returns the
// persisted evaluation.
func (e *Engine) Evaluate(ctx context.Context, input *EvaluateInput) (*domain.Evaluation, error) {
	if input == nil || input.Request == nil {
		return nil, fmt.Errorf("evaluate: %w", domain.ErrInvalidInput)
	}
	if input.Request.Amount < 0 {
		return nil, fmt.Errorf("evaluate: negative amount: %w", domain.ErrInvalidInput)
	}
	if s := input.Request.SignatureScore; s != nil && (*s < 0 || *s > 100) {
		return nil, fmt.Errorf("evaluate: signature score must be between 0 and 100: %w", domain.ErrInvalidInput)
	}

	start := input.StartTime
	if start.IsZero() {
		start = e.nowFn()
	}

	event := input.Request.ToCheque()
	now := e.nowFn()

	ctx, span := tracer.Start(ctx, "engine.evaluate",
		trace.WithAttributes(
			attribute.String("tenant.id", input.TenantID),
			attribute.String("cheque.account", event.AccountNumber),
			attribute.Float64("cheque.amount", event.Amount),
		),
	)
	defer span.End()

	// 1. Fetch profile and history, cache-first.
	fetchStart := time.Now()
	snap := e.fetchProfile(ctx, input.TenantID, event.AccountNumber)
	fetchMs := time.Since(fetchStart).Milliseconds()

	// 2-7. Score.
	scoreStart := time.Now()

	f := features.Build(event, snap.Profile, snap.History, now)

	var extra []domain.RuleTrigger
	if e.screening != nil && e.screening.RulesCount() > 0 {
		extra = e.screening.Evaluate(f, event.Amount, event.PayeeName)
	}

	ruleScore, triggers := rules.Score(f, event.PayeeName, extra)

	var mlScore *float64
	modelAvailable := false
	if e.anomaly != nil && e.anomaly.Available() {
		if score, ok := e.anomaly.FraudScore(ctx, f); ok {
			mlScore = &score
			modelAvailable = true
		}
	}

	finalScore := scoring.Blend(f, snap.Found, ruleScore, mlScore)
	riskLevel, decision := scoring.Classify(finalScore)
	confidence := scoring.Confidence(f, len(triggers) > 0)
	explanations, riskFactors, safeFactors := explain.Build(event, f, snap.Profile, triggers)

	scoreMs := time.Since(scoreStart).Milliseconds()

	span.SetAttributes(
		attribute.Float64("cheque.fraud_score", finalScore),
		attribute.String("cheque.risk_level", riskLevel),
		attribute.String("cheque.decision", decision),
	)

	eval := &domain.Evaluation{
		ID:               uuid.New().String(),
		TenantID:         input.TenantID,
		ChequeNumber:     event.ChequeNumber,
		AccountNumber:    event.AccountNumber,
		Amount:           event.Amount,
		PayeeName:        event.PayeeName,
		FraudScore:       finalScore,
		RuleScore:        ruleScore,
		MLScore:          mlScore,
		RiskLevel:        riskLevel,
		Decision:         decision,
		Confidence:       confidence,
		Recommendation:   domain.Recommendation(riskLevel),
		ModelAvailable:   modelAvailable,
		ProfileFound:     snap.Found,
		Explanations:     explanations,
		RiskFactors:      riskFactors,
		SafeFactors:      safeFactors,
		TriggeredRules:   triggers,
		ComputedFeatures: f,
		Profile:          snap.Profile.Summary(),
		Timestamp:        now,
	}

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:           input.TraceID,
		FetchMs:           fetchMs,
		ScoreMs:           scoreMs,
		TotalMs:           time.Since(start).Milliseconds(),
		RecentSubmissions: e.countSubmission(ctx, input.TenantID, event.AccountNumber),
		EngineVersion:     EngineVersion,
	}

	// 8. Persist and record. Neither failure invalidates the score.
	if e.repo != nil {
		if err := e.repo.SaveEvaluation(ctx, input.TenantID, eval); err != nil {
			slog.Error("failed to save evaluation",
				"evaluation_id", eval.ID,
				"error", err,
			)
		}
		e.recordTransaction(ctx, input.TenantID, event, snap, now)
	}

	slog.Info("cheque scored",
		"evaluation_id", eval.ID,
		"tenant_id", input.TenantID,
		"account", event.AccountNumber,
		"fraud_score", eval.FraudScore,
		"risk_level", eval.RiskLevel,
		"decision", eval.Decision,
		"profile_found", eval.ProfileFound,
		"model_available", eval.ModelAvailable,
		"duration_ms", eval.Metadata.TotalMs,
	)

	return eval, nil
}

// fetchProfile resolves the account's profile and history window,
// cache first, repository on miss. Any failure degrades to the
// "no profile" state so scoring proceeds on defaults.
func (e *Engine) fetchProfile(ctx context.Context, tenantID, accountNumber string) *domain.ProfileSnapshot {
	if accountNumber == "" {
		return &domain.ProfileSnapshot{}
	}

	if e.cache != nil {
		snap, err := e.cache.GetProfile(ctx, tenantID, accountNumber)
		if err == nil && snap != nil {
			return snap
		}
		if err != nil {
			slog.Warn("profile cache lookup failed",
				"account", accountNumber,
				"error", err,
			)
		}
	}

	snap := &domain.ProfileSnapshot{}
	if e.repo == nil {
		return snap
	}

	profile, err := e.repo.GetAccountProfile(ctx, tenantID, accountNumber)
	switch {
	case err == nil:
		snap.Profile = profile
		snap.Found = true
	case errors.Is(err, domain.ErrNotFound):
		// Unknown account: score on defaults.
	default:
		slog.Warn("profile fetch failed, scoring without profile",
			"account", accountNumber,
			"error", err,
		)
		return snap
	}

	if snap.Found {
		history, err := e.repo.GetRecentTransactions(ctx, tenantID, snap.Profile.AccountID, domain.MaxHistoryItems)
		if err != nil {
			slog.Warn("history fetch failed",
				"account", accountNumber,
				"error", err,
			)
		} else {
			snap.History = history
		}
	}

	if e.cache != nil {
		if err := e.cache.SetProfile(ctx, tenantID, accountNumber, snap, profileCacheTTL); err != nil {
			slog.Warn("profile cache store failed",
				"account", accountNumber,
				"error", err,
			)
		}
	}

	return snap
}

// recordTransaction appends the scored cheque to the account's history
// so subsequent submissions see it, then drops the cached snapshot.
func (e *Engine) recordTransaction(ctx context.Context, tenantID string, event *domain.ChequeEvent, snap *domain.ProfileSnapshot, now time.Time) {
	if !snap.Found {
		return
	}

	tx := &domain.Transaction{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		AccountID:    snap.Profile.AccountID,
		TxnType:      "cheque",
		Amount:       event.Amount,
		ReceiverName: event.PayeeName,
		CreatedAt:    now,
	}
	if err := e.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
		slog.Error("failed to record transaction",
			"account", event.AccountNumber,
			"error", err,
		)
		return
	}

	if e.cache != nil {
		if err := e.cache.Delete(ctx, tenantID, domain.ProfileCacheKey(event.AccountNumber)); err != nil {
			slog.Debug("profile cache invalidation failed",
				"account", event.AccountNumber,
				"error", err,
			)
		}
	}
}

// countSubmission bumps the per-account submission counter. Metadata
// only; the count never feeds the score.
func (e *Engine) countSubmission(ctx context.Context, tenantID, accountNumber string) int64 {
	if e.cache == nil || accountNumber == "" {
		return 0
	}
	count, err := e.cache.IncrementCounter(ctx, tenantID, "submissions:"+accountNumber, submissionWindow)
	if err != nil {
		slog.Debug("submission counter failed",
			"account", accountNumber,
			"error", err,
		)
		return 0
	}
	return count
}

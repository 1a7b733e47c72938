package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// A Wednesday afternoon, outside night and weekend windows.
var testNow = time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)

// fakeRepo is an in-memory Repository with injectable failures.
type fakeRepo struct {
	profiles    map[string]*domain.AccountProfile
	history     []*domain.Transaction
	evaluations map[string]*domain.Evaluation
	savedTxs    []*domain.Transaction

	profileErr  error
	profileGets int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles:    make(map[string]*domain.AccountProfile),
		evaluations: make(map[string]*domain.Evaluation),
	}
}

func (r *fakeRepo) SaveAccountProfile(ctx context.Context, tenantID string, p *domain.AccountProfile) error {
	r.profiles[p.AccountNumber] = p
	return nil
}

func (r *fakeRepo) GetAccountProfile(ctx context.Context, tenantID, accountNumber string) (*domain.AccountProfile, error) {
	r.profileGets++
	if r.profileErr != nil {
		return nil, r.profileErr
	}
	p, ok := r.profiles[accountNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	r.savedTxs = append(r.savedTxs, tx)
	return nil
}

func (r *fakeRepo) GetRecentTransactions(ctx context.Context, tenantID, accountID string, limit int) ([]*domain.Transaction, error) {
	return r.history, nil
}

func (r *fakeRepo) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	r.evaluations[eval.ID] = eval
	return nil
}

func (r *fakeRepo) GetEvaluation(ctx context.Context, tenantID, evalID string) (*domain.Evaluation, error) {
	eval, ok := r.evaluations[evalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return eval, nil
}

func (r *fakeRepo) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	return nil
}

func (r *fakeRepo) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	return nil, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// fakeCache records snapshot reads/writes and key deletions.
type fakeCache struct {
	snapshots map[string]*domain.ProfileSnapshot
	deleted   []string
	counter   int64
	failAll   bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: make(map[string]*domain.ProfileSnapshot)}
}

func (c *fakeCache) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	return nil, nil
}

func (c *fakeCache) Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, tenantID, key string) error {
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *fakeCache) GetProfile(ctx context.Context, tenantID, accountNumber string) (*domain.ProfileSnapshot, error) {
	if c.failAll {
		return nil, errors.New("cache down")
	}
	return c.snapshots[accountNumber], nil
}

func (c *fakeCache) SetProfile(ctx context.Context, tenantID, accountNumber string, snap *domain.ProfileSnapshot, ttl time.Duration) error {
	if c.failAll {
		return errors.New("cache down")
	}
	c.snapshots[accountNumber] = snap
	return nil
}

func (c *fakeCache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	if c.failAll {
		return 0, errors.New("cache down")
	}
	c.counter++
	return c.counter, nil
}

func (c *fakeCache) Ping(ctx context.Context) error { return nil }
func (c *fakeCache) Close() error                   { return nil }

func testEngine(repo domain.Repository, cache domain.Cache) *Engine {
	eng := New(repo, cache, nil, nil)
	eng.nowFn = func() time.Time { return testNow }
	return eng
}

func testProfile() *domain.AccountProfile {
	return &domain.AccountProfile{
		AccountID:             "cust-001",
		AccountNumber:         "ACC-001",
		AvgTransactionAmt:     1000,
		MaxTransactionAmt:     2000,
		StdDevTransactionAmt:  200,
		TotalTransactionCount: 50,
		Balance:               50000,
		CreatedAt:             testNow.Add(-400 * 24 * time.Hour),
	}
}

func TestEvaluateInvalidInput(t *testing.T) {
	eng := testEngine(nil, nil)
	ctx := context.Background()

	t.Run("NilInput", func(t *testing.T) {
		_, err := eng.Evaluate(ctx, nil)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NilRequest", func(t *testing.T) {
		_, err := eng.Evaluate(ctx, &EvaluateInput{TenantID: "bank-alpha"})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		_, err := eng.Evaluate(ctx, &EvaluateInput{
			TenantID: "bank-alpha",
			Request:  &domain.ScoreRequest{Amount: -50},
		})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("SignatureScoreOutOfRange", func(t *testing.T) {
		for _, score := range []float64{-1, 100.5, 150} {
			sig := score
			_, err := eng.Evaluate(ctx, &EvaluateInput{
				TenantID: "bank-alpha",
				Request:  &domain.ScoreRequest{Amount: 100, SignatureScore: &sig},
			})
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("signature %v: expected ErrInvalidInput, got %v", score, err)
			}
		}
	})
}

func TestEvaluateWithoutDependencies(t *testing.T) {
	eng := testEngine(nil, nil)

	sig := 85.0
	eval, err := eng.Evaluate(context.Background(), &EvaluateInput{
		TenantID: "bank-alpha",
		TraceID:  "trace-001",
		Request: &domain.ScoreRequest{
			AccountNumber:  "ACC-001",
			Amount:         5000,
			PayeeName:      "Acme Supplies",
			SignatureScore: &sig,
		},
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if eval.ID == "" {
		t.Error("expected evaluation ID")
	}
	if eval.ProfileFound {
		t.Error("no repository: profile must not be found")
	}
	if eval.ModelAvailable {
		t.Error("no model: must report unavailable")
	}
	if eval.MLScore != nil {
		t.Error("no model: ML score must be nil")
	}
	if eval.RiskLevel != domain.RiskLow || eval.Decision != domain.DecisionApprove {
		t.Errorf("clean cheque should approve, got %s/%s", eval.RiskLevel, eval.Decision)
	}
	if eval.Metadata.TraceID != "trace-001" {
		t.Errorf("expected trace-001, got %s", eval.Metadata.TraceID)
	}
	if eval.Metadata.EngineVersion != EngineVersion {
		t.Errorf("expected engine version %s, got %s", EngineVersion, eval.Metadata.EngineVersion)
	}
	if len(eval.Explanations) == 0 {
		t.Error("expected at least one explanation")
	}
	if eval.ComputedFeatures == nil {
		t.Error("expected computed features on the evaluation")
	}
}

func TestEvaluateUnknownAccountScoresOnDefaults(t *testing.T) {
	repo := newFakeRepo()
	eng := testEngine(repo, nil)

	sig := 30.0
	eval, err := eng.Evaluate(context.Background(), &EvaluateInput{
		TenantID: "bank-alpha",
		Request: &domain.ScoreRequest{
			AccountNumber:  "ACC-UNKNOWN",
			Amount:         5000,
			PayeeName:      "Initech",
			SignatureScore: &sig,
		},
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if eval.ProfileFound {
		t.Error("unknown account must not report a profile")
	}
	if eval.Profile != nil {
		t.Error("unknown account must not carry a profile summary")
	}

	// new_payee (3) + signature_mismatch (20), 10% trust discount.
	if eval.FraudScore != 20.7 {
		t.Errorf("expected score 20.7, got %v", eval.FraudScore)
	}

	// Transactions are only recorded for known accounts.
	if len(repo.savedTxs) != 0 {
		t.Errorf("expected no recorded transactions, got %d", len(repo.savedTxs))
	}

	// The evaluation itself is still persisted.
	if len(repo.evaluations) != 1 {
		t.Errorf("expected 1 persisted evaluation, got %d", len(repo.evaluations))
	}
}

func TestEvaluateWithProfile(t *testing.T) {
	repo := newFakeRepo()
	repo.profiles["ACC-001"] = testProfile()
	repo.history = []*domain.Transaction{
		{ID: "tx-1", AccountID: "cust-001", ReceiverName: "Acme Supplies", CreatedAt: testNow.Add(-24 * time.Hour)},
	}
	cache := newFakeCache()
	eng := testEngine(repo, cache)

	sig := 90.0
	eval, err := eng.Evaluate(context.Background(), &EvaluateInput{
		TenantID: "bank-alpha",
		Request: &domain.ScoreRequest{
			AccountNumber:  "ACC-001",
			Amount:         1200,
			PayeeName:      "Acme Supplies",
			SignatureScore: &sig,
		},
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if !eval.ProfileFound {
		t.Error("expected profile found")
	}
	if eval.Profile == nil {
		t.Fatal("expected profile summary")
	}
	if eval.Profile.AvgTransactionAmt != 1000 {
		t.Errorf("expected profile echo, got %+v", eval.Profile)
	}
	if eval.Decision != domain.DecisionApprove {
		t.Errorf("routine cheque should approve, got %s", eval.Decision)
	}

	// The scored cheque is appended to the account's history.
	if len(repo.savedTxs) != 1 {
		t.Fatalf("expected 1 recorded transaction, got %d", len(repo.savedTxs))
	}
	tx := repo.savedTxs[0]
	if tx.AccountID != "cust-001" || tx.Amount != 1200 || tx.TxnType != "cheque" {
		t.Errorf("unexpected recorded transaction: %+v", tx)
	}

	// The cached snapshot is dropped after the write.
	found := false
	for _, key := range cache.deleted {
		if key == domain.ProfileCacheKey("ACC-001") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected profile cache invalidation, deleted keys: %v", cache.deleted)
	}

	if eval.Metadata.RecentSubmissions != 1 {
		t.Errorf("expected 1 recent submission, got %d", eval.Metadata.RecentSubmissions)
	}
}

func TestEvaluateUsesCachedSnapshot(t *testing.T) {
	repo := newFakeRepo()
	cache := newFakeCache()
	cache.snapshots["ACC-001"] = &domain.ProfileSnapshot{
		Profile: testProfile(),
		Found:   true,
	}
	eng := testEngine(repo, cache)

	eval, err := eng.Evaluate(context.Background(), &EvaluateInput{
		TenantID: "bank-alpha",
		Request:  &domain.ScoreRequest{AccountNumber: "ACC-001", Amount: 900},
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if !eval.ProfileFound {
		t.Error("expected profile from cache")
	}
	if repo.profileGets != 0 {
		t.Errorf("cache hit must skip the repository, got %d reads", repo.profileGets)
	}
}

func TestEvaluateDegradesOnRepositoryFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.profileErr = errors.New("connection refused")
	eng := testEngine(repo, nil)

	eval, err := eng.Evaluate(context.Background(), &EvaluateInput{
		TenantID: "bank-alpha",
		Request:  &domain.ScoreRequest{AccountNumber: "ACC-001", Amount: 500},
	})
	if err != nil {
		t.Fatalf("repository failure must not fail scoring: %v", err)
	}
	if eval.ProfileFound {
		t.Error("failed fetch must degrade to no profile")
	}
}

func TestEvaluateDegradesOnCacheFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.profiles["ACC-001"] = testProfile()
	cache := newFakeCache()
	cache.failAll = true
	eng := testEngine(repo, cache)

	eval, err := eng.Evaluate(context.Background(), &EvaluateInput{
		TenantID: "bank-alpha",
		Request:  &domain.ScoreRequest{AccountNumber: "ACC-001", Amount: 900},
	})
	if err != nil {
		t.Fatalf("cache failure must not fail scoring: %v", err)
	}
	if !eval.ProfileFound {
		t.Error("cache failure must fall through to the repository")
	}
	if eval.Metadata.RecentSubmissions != 0 {
		t.Errorf("counter failure must report 0 submissions, got %d", eval.Metadata.RecentSubmissions)
	}
}

func TestEvaluateWithAnomalyModel(t *testing.T) {
	model := anomaly.ModelFunc(func(ctx context.Context, features []float64) (float64, error) {
		return 0.25, nil // mildly anomalous: fraud scale 25
	})
	eng := New(nil, nil, nil, anomaly.NewAdapter(model))
	eng.nowFn = func() time.Time { return testNow }

	sig := 30.0
	eval, err := eng.Evaluate(context.Background(), &EvaluateInput{
		TenantID: "bank-alpha",
		Request: &domain.ScoreRequest{
			AccountNumber:  "ACC-001",
			Amount:         5000,
			SignatureScore: &sig,
		},
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if !eval.ModelAvailable {
		t.Error("expected model available")
	}
	if eval.MLScore == nil {
		t.Fatal("expected ML score")
	}
	if *eval.MLScore != 25 {
		t.Errorf("expected ML score 25, got %v", *eval.MLScore)
	}
	// Dampened model signal (17.5) undercuts the rule score.
	if eval.FraudScore != 17.5 {
		t.Errorf("expected blended score 17.5, got %v", eval.FraudScore)
	}
}

func TestEvaluateWithScreeningRules(t *testing.T) {
	screening, err := rules.NewScreeningEngine()
	if err != nil {
		t.Fatalf("failed to create screening engine: %v", err)
	}
	defer screening.Close()

	screening.LoadRule(&domain.ScreeningRule{
		ID:         "big-cheque",
		Name:       "Big Cheque",
		Expression: "amount > 40000.0",
		Points:     30,
		Severity:   domain.SeverityHigh,
		Reason:     "Amount above operations threshold",
		Enabled:    true,
	})

	eng := New(nil, nil, screening, nil)
	eng.nowFn = func() time.Time { return testNow }

	sig := 85.0
	eval, err := eng.Evaluate(context.Background(), &EvaluateInput{
		TenantID: "bank-alpha",
		Request: &domain.ScoreRequest{
			AccountNumber:  "ACC-001",
			Amount:         50000,
			PayeeName:      "Initech",
			SignatureScore: &sig,
		},
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	var screened bool
	for _, trigger := range eval.TriggeredRules {
		if trigger.RuleID == "big-cheque" {
			screened = true
		}
	}
	if !screened {
		t.Errorf("expected screening trigger, got %+v", eval.TriggeredRules)
	}

	var explained bool
	for _, e := range eval.Explanations {
		if e == "Amount above operations threshold" {
			explained = true
		}
	}
	if !explained {
		t.Errorf("expected screening reason in explanations, got %v", eval.Explanations)
	}
}

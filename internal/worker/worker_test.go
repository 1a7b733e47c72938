package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
)

// fakeRepo serves a single profile so scoring can exercise both the
// approve and alert paths.
type fakeRepo struct {
	profile *domain.AccountProfile
}

func (r *fakeRepo) SaveAccountProfile(ctx context.Context, tenantID string, p *domain.AccountProfile) error {
	return nil
}

func (r *fakeRepo) GetAccountProfile(ctx context.Context, tenantID, accountNumber string) (*domain.AccountProfile, error) {
	if r.profile == nil || r.profile.AccountNumber != accountNumber {
		return nil, domain.ErrNotFound
	}
	return r.profile, nil
}

func (r *fakeRepo) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	return nil
}

func (r *fakeRepo) GetRecentTransactions(ctx context.Context, tenantID, accountID string, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

func (r *fakeRepo) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	return nil
}

func (r *fakeRepo) GetEvaluation(ctx context.Context, tenantID, evalID string) (*domain.Evaluation, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	return nil
}

func (r *fakeRepo) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	return nil, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// collect subscribes to a topic and returns a channel of evaluations.
func collect(t *testing.T, b domain.EventBus, tenantID, topic string) <-chan *domain.Evaluation {
	t.Helper()

	out := make(chan *domain.Evaluation, 10)
	_, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		var eval domain.Evaluation
		if err := json.Unmarshal(msg.Payload, &eval); err != nil {
			t.Errorf("failed to parse evaluation: %v", err)
			return err
		}
		out <- &eval
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return out
}

func waitForEval(t *testing.T, ch <-chan *domain.Evaluation) *domain.Evaluation {
	t.Helper()
	select {
	case eval := <-ch:
		return eval
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for evaluation")
		return nil
	}
}

func TestWorkerScoresCheques(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	tenantID := "bank-alpha"
	eng := engine.New(&fakeRepo{}, nil, nil, nil)
	w := NewWorker(b, eng)

	completed := collect(t, b, tenantID, domain.TopicScoreCompleted)
	alerts := collect(t, b, tenantID, domain.TopicAlert)

	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(10 * time.Millisecond)

	sig := 90.0
	payload, _ := json.Marshal(bus.ChequeEnvelope{
		TraceID: "trace-async-001",
		Cheque: domain.ScoreRequest{
			AccountNumber:  "ACC-001",
			Amount:         500,
			PayeeName:      "Acme Supplies",
			SignatureScore: &sig,
		},
	})
	if err := b.Publish(context.Background(), tenantID, domain.TopicChequeReceived, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	eval := waitForEval(t, completed)
	if eval.Decision != domain.DecisionApprove {
		t.Errorf("routine cheque should approve, got %s", eval.Decision)
	}
	if eval.Metadata.TraceID != "trace-async-001" {
		t.Errorf("expected trace propagation, got %s", eval.Metadata.TraceID)
	}

	// Approved cheques never alert.
	select {
	case eval := <-alerts:
		t.Errorf("unexpected alert for approved cheque: %+v", eval)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerAlertsOnRiskyCheque(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	tenantID := "bank-alpha"
	repo := &fakeRepo{
		profile: &domain.AccountProfile{
			AccountID:            "cust-001",
			AccountNumber:        "ACC-001",
			AvgTransactionAmt:    1000,
			MaxTransactionAmt:    2000,
			StdDevTransactionAmt: 100,
			Balance:              5000,
			BounceRate:           20,
			CreatedAt:            time.Now().UTC().Add(-400 * 24 * time.Hour),
		},
	}
	eng := engine.New(repo, nil, nil, nil)
	w := NewWorker(b, eng)

	alerts := collect(t, b, tenantID, domain.TopicAlert)

	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(10 * time.Millisecond)

	// Way above the account's history, bad signature, bounce history.
	sig := 20.0
	payload, _ := json.Marshal(bus.ChequeEnvelope{
		Cheque: domain.ScoreRequest{
			AccountNumber:  "ACC-001",
			Amount:         50000,
			PayeeName:      "Initech",
			SignatureScore: &sig,
		},
	})
	if err := b.Publish(context.Background(), tenantID, domain.TopicChequeReceived, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	eval := waitForEval(t, alerts)
	if eval.Decision == domain.DecisionApprove {
		t.Errorf("risky cheque must not approve, got %s", eval.Decision)
	}
	if eval.FraudScore < 30 {
		t.Errorf("expected elevated fraud score, got %v", eval.FraudScore)
	}
}

func TestWorkerStopAndStats(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	eng := engine.New(nil, nil, nil, nil)
	w := NewWorker(b, eng)

	if err := w.Start(Config{TenantIDs: []string{"bank-alpha", "bank-beta"}}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	stats = w.GetStats()
	if stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerRejectsBadPayload(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	eng := engine.New(nil, nil, nil, nil)
	w := NewWorker(b, eng)

	err := w.processCheque(context.Background(), "bank-alpha", &domain.Message{
		ID:      "msg-001",
		Payload: []byte("not json"),
	})
	if err == nil {
		t.Error("expected error for unparseable payload")
	}
}

func TestWorkerRejectsOutOfRangeSignature(t *testing.T) {
	b := bus.NewChannelBus(100)
	defer b.Close()

	eng := engine.New(nil, nil, nil, nil)
	w := NewWorker(b, eng)

	sig := 150.0
	payload, _ := json.Marshal(bus.ChequeEnvelope{
		Cheque: domain.ScoreRequest{
			AccountNumber:  "ACC-001",
			Amount:         500,
			SignatureScore: &sig,
		},
	})

	err := w.processCheque(context.Background(), "bank-alpha", &domain.Message{
		ID:      "msg-002",
		Payload: payload,
	})
	if err == nil {
		t.Error("expected error for out-of-range signature score")
	}
}

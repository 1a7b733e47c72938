// Package worker provides async cheque processing for the Pro tier.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
)

// Worker scores cheques asynchronously from the EventBus. Cheques
// arrive on the cheque.received topic as bus.ChequeEnvelope payloads;
// results go out through the emitter, which routes review/reject
// outcomes to the alert topic.
type Worker struct {
	bus     domain.EventBus
	emitter *bus.Emitter
	engine  *engine.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, eng *engine.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     b,
		emitter: bus.NewEmitter(b),
		engine:  eng,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing cheques for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicChequeReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicChequeReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processCheque(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicChequeReceived,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processCheque(ctx, msg.TenantID, msg)
}

// processCheque scores one cheque from the bus.
func (w *Worker) processCheque(ctx context.Context, tenantID string, msg *domain.Message) error {
	env, err := bus.DecodeCheque(msg)
	if err != nil {
		slog.Error("failed to parse cheque message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use envelope tenant if provided
	if env.TenantID != "" {
		tenantID = env.TenantID
	}

	traceID := env.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing cheque",
		"tenant_id", tenantID,
		"trace_id", traceID,
		"account", env.Cheque.AccountNumber,
	)

	eval, err := w.engine.Evaluate(ctx, &engine.EvaluateInput{
		TenantID: tenantID,
		TraceID:  traceID,
		Request:  &env.Cheque,
	})
	if err != nil {
		slog.Error("cheque evaluation failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	if err := w.emitter.EmitResult(ctx, tenantID, eval); err != nil {
		slog.Error("failed to publish score result",
			"evaluation_id", eval.ID,
			"error", err,
		)
	}

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

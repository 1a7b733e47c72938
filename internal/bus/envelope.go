package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ChequeEnvelope is the payload carried on the cheque.received topic.
// TenantID overrides the subscription tenant when set, so a gateway can
// fan cheques into a shared stream. TraceID propagates end to end into
// the evaluation metadata.
type ChequeEnvelope struct {
	TenantID string              `json:"tenantId,omitempty"`
	TraceID  string              `json:"traceId,omitempty"`
	Cheque   domain.ScoreRequest `json:"cheque"`
}

// DecodeCheque parses a cheque.received payload.
func DecodeCheque(msg *domain.Message) (*ChequeEnvelope, error) {
	var env ChequeEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return nil, fmt.Errorf("decode cheque envelope: %w", err)
	}
	return &env, nil
}

// DecodeEvaluation parses a score.completed or score.alert payload.
func DecodeEvaluation(msg *domain.Message) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	if err := json.Unmarshal(msg.Payload, &eval); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &eval, nil
}

// Emitter publishes the scoring pipeline's typed events. Both entry
// points (the HTTP handler and the async worker) emit results through
// it so the topic routing lives in one place.
type Emitter struct {
	bus domain.EventBus
}

// NewEmitter wraps an event bus with the pipeline's topic routing.
func NewEmitter(b domain.EventBus) *Emitter {
	return &Emitter{bus: b}
}

// EmitCheque queues a cheque for async scoring.
func (e *Emitter) EmitCheque(ctx context.Context, tenantID string, env *ChequeEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode cheque envelope: %w", err)
	}
	return e.bus.Publish(ctx, tenantID, domain.TopicChequeReceived, payload)
}

// EmitResult publishes a scored evaluation on score.completed. Review
// and reject outcomes additionally go to the alert topic.
func (e *Emitter) EmitResult(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	payload, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}

	completedErr := e.bus.Publish(ctx, tenantID, domain.TopicScoreCompleted, payload)

	var alertErr error
	if eval.Decision != domain.DecisionApprove {
		alertErr = e.bus.Publish(ctx, tenantID, domain.TopicAlert, payload)
	}

	return errors.Join(completedErr, alertErr)
}

// Package anomaly wraps the external unsupervised anomaly model and
// converts its raw output to the 0-100 fraud scale used by scoring.
package anomaly

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Model is the external anomaly scorer: given the 20-element feature
// vector (fixed order), it returns one raw real-valued estimate where
// lower means more anomalous, or an error when unavailable.
type Model interface {
	Score(ctx context.Context, features []float64) (float64, error)
}

// ModelFunc adapts a plain function to the Model interface.
type ModelFunc func(ctx context.Context, features []float64) (float64, error)

// Score implements Model.
func (fn ModelFunc) Score(ctx context.Context, features []float64) (float64, error) {
	return fn(ctx, features)
}

// Adapter holds the one-time model handle. It is constructed once per
// process, injected into the engine, and safe for concurrent use. A
// nil model means the adapter reports unavailable; scoring then falls
// back to the rule engine alone.
type Adapter struct {
	model Model
}

// NewAdapter creates an adapter around a model handle. model may be
// nil when no anomaly model is configured.
func NewAdapter(model Model) *Adapter {
	return &Adapter{model: model}
}

// Available reports whether an anomaly model is configured.
func (a *Adapter) Available() bool {
	return a != nil && a.model != nil
}

// FraudScore invokes the model and converts its raw estimate to the
// 0-100 fraud scale. A model failure degrades to unavailable; it is
// never surfaced as an error.
func (a *Adapter) FraudScore(ctx context.Context, f *domain.FeatureVector) (float64, bool) {
	if !a.Available() {
		return 0, false
	}

	raw, err := a.model.Score(ctx, f.Vector())
	if err != nil {
		slog.Warn("anomaly model unavailable, falling back to rule scoring", "error", err)
		return 0, false
	}

	return ToFraudScale(raw), true
}

// ToFraudScale maps a raw anomaly estimate onto the 0-100 fraud scale.
// The source model is path-length based: lower raw values are more
// anomalous, with a typical output range of about -0.5 to 0.0. The
// mapping is a fixed, empirically calibrated contract with that model;
// do not re-derive it.
func ToFraudScale(raw float64) float64 {
	anomaly := 0.5 - raw
	if anomaly < 0 {
		anomaly = 0
	}
	if anomaly > 1 {
		anomaly = 1
	}
	return anomaly * 100
}

package anomaly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// HTTPModel calls the anomaly model sidecar over HTTP. The sidecar
// exposes POST /score taking the ordered feature vector and returning
// the raw estimate. The client timeout bounds every call; a timeout is
// reported as an error and the adapter degrades to rule-only scoring.
type HTTPModel struct {
	endpoint string
	client   *http.Client
}

// NewHTTPModel creates an HTTP model client from configuration.
func NewHTTPModel(cfg domain.ModelConfig) *HTTPModel {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &HTTPModel{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	Features []float64 `json:"features"`
}

type scoreResponse struct {
	RawScore float64 `json:"rawScore"`
}

// Score implements Model.
func (m *HTTPModel) Score(ctx context.Context, features []float64) (float64, error) {
	if len(features) != domain.FeatureCount {
		return 0, fmt.Errorf("expected %d features, got %d", domain.FeatureCount, len(features))
	}

	body, err := json.Marshal(scoreRequest{Features: features})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("model returned status %d", resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode model response: %w", err)
	}

	return out.RawScore, nil
}

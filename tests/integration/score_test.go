//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel cheque
// fraud scoring engine.
//
// These tests verify the COMPLETE scoring pipeline:
//
//	Cheque → Features → Rules + Anomaly Model → Blend → Decision
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. CHEQUE: An extracted cheque event (account, amount, payee, date,
//    signature verification score). Every field is optional; missing
//    values fall back to conservative defaults.
//
// 2. FEATURES: A 20-dimensional vector built from the cheque and the
//    account's behavioural profile (amount z-score, payee familiarity,
//    timing, velocity, account health).
//
// 3. RULES: A tiered ladder of built-in heuristics (amount, balance,
//    payee, timing, dormancy, signature, bounce history) plus optional
//    CEL screening rules loaded from the database.
//
// 4. DECISION: fraud score 0-100 mapped to risk levels:
//   - Score >= 70 → critical → reject
//   - Score >= 50 → high     → review
//   - Score >= 30 → medium   → review
//   - Otherwise   → low      → approve
//
// The engine degrades gracefully: unknown accounts are scored on
// defaults, and model or storage failures never fail a request.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// ScoreRequest is the cheque sent to POST /score
type ScoreRequest struct {
	AccountNumber  string   `json:"accountNumber,omitempty"`
	Amount         float64  `json:"amount,omitempty"`
	PayeeName      string   `json:"payeeName,omitempty"`
	Date           string   `json:"date,omitempty"`
	ChequeNumber   string   `json:"chequeNumber,omitempty"`
	SignatureScore *float64 `json:"signatureScore,omitempty"`
}

// ScoreResponse is what POST /score returns
type ScoreResponse struct {
	ID             string           `json:"id"`
	TenantID       string           `json:"tenantId"`
	FraudScore     float64          `json:"fraudScore"`
	RiskLevel      string           `json:"riskLevel"`
	Decision       string           `json:"decision"`
	Confidence     float64          `json:"confidence"`
	Explanations   []string         `json:"explanations"`
	Recommendation string           `json:"recommendation"`
	Metadata       ResponseMetadata `json:"metadata"`
}

type ResponseMetadata struct {
	TraceID       string `json:"traceId"`
	EngineVersion string `json:"engineVersion"`
	TotalMs       int64  `json:"totalMs"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func score(t *testing.T, config TestConfig, req ScoreRequest) ScoreResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/score", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result ScoreResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}

	return result
}

func floatPtr(v float64) *float64 { return &v }

// ============================================================================
// SCENARIO 1: Routine Cheque (Approve)
// ============================================================================

func TestRoutineCheque_Approves(t *testing.T) {
	/*
	   SCENARIO: A small cheque to a trusted payee with a strong signature

	   EXPECTED BEHAVIOR:
	   - "self" is a trusted payee alias, so new_payee does not fire
	   - Signature 95 is above every signature tier
	   - No profile exists, so defaults keep the score low

	   FINAL DECISION: low risk → approve
	*/
	config := getTestConfig()

	result := score(t, config, ScoreRequest{
		AccountNumber:  "acc-routine-001",
		Amount:         250,
		PayeeName:      "self",
		SignatureScore: floatPtr(95),
	})

	if result.Decision != "approve" {
		t.Errorf("Expected decision approve, got %s", result.Decision)
	}
	if result.RiskLevel != "low" {
		t.Errorf("Expected low risk, got %s", result.RiskLevel)
	}
	if result.FraudScore >= 30 {
		t.Errorf("Expected score below 30, got %.2f", result.FraudScore)
	}

	t.Logf("✓ Routine cheque approved: risk=%s, score=%.2f", result.RiskLevel, result.FraudScore)
}

// ============================================================================
// SCENARIO 2: Weak Signature (Score Climbs)
// ============================================================================

func TestWeakSignature_RaisesScore(t *testing.T) {
	/*
	   SCENARIO: Same cheque scored twice, once with a strong signature
	   and once with a failed verification (score 20)

	   EXPECTED BEHAVIOR:
	   - signature_mismatch fires at 20 points (score below 50)
	   - The weak-signature evaluation must score strictly higher

	   WHY THIS TEST:
	   Signature verification is the strongest single fraud signal on a
	   physical cheque; the ladder must separate the two cases clearly.
	*/
	config := getTestConfig()

	strong := score(t, config, ScoreRequest{
		AccountNumber:  "acc-signature-001",
		Amount:         1500,
		PayeeName:      "Northwind Traders",
		SignatureScore: floatPtr(95),
	})

	weak := score(t, config, ScoreRequest{
		AccountNumber:  "acc-signature-001",
		Amount:         1500,
		PayeeName:      "Northwind Traders",
		SignatureScore: floatPtr(20),
	})

	if weak.FraudScore <= strong.FraudScore {
		t.Errorf("Expected weak signature to score higher: strong=%.2f weak=%.2f",
			strong.FraudScore, weak.FraudScore)
	}

	t.Logf("✓ Weak signature separated: strong=%.2f, weak=%.2f", strong.FraudScore, weak.FraudScore)
}

// ============================================================================
// SCENARIO 3: Missing Fields Fall Back to Defaults
// ============================================================================

func TestEmptyRequest_ScoresOnDefaults(t *testing.T) {
	/*
	   SCENARIO: Completely empty request body

	   EXPECTED BEHAVIOR:
	   - Amount defaults to 10000, signature to 85
	   - Unknown payee and unknown account still produce a full
	     evaluation, never an error

	   WHY THIS TEST:
	   Upstream OCR regularly fails to extract fields; the engine must
	   always return a decision.
	*/
	config := getTestConfig()

	result := score(t, config, ScoreRequest{})

	if result.ID == "" {
		t.Error("Missing evaluation id")
	}
	if result.Decision == "" {
		t.Error("Missing decision")
	}
	if len(result.Explanations) == 0 {
		t.Error("Expected at least one explanation")
	}

	t.Logf("✓ Empty request scored: risk=%s, score=%.2f", result.RiskLevel, result.FraudScore)
}

// ============================================================================
// SCENARIO 4: Evaluation Retrieval
// ============================================================================

func TestEvaluationRetrieval(t *testing.T) {
	/*
	   SCENARIO: Score a cheque, then fetch the persisted evaluation by ID

	   EXPECTED: GET /evaluations/{id} returns the same scores.
	*/
	config := getTestConfig()

	scored := score(t, config, ScoreRequest{
		AccountNumber: "acc-retrieval-001",
		Amount:        3200,
		PayeeName:     "Contoso Ltd",
	})

	httpReq, _ := http.NewRequest("GET", config.BaseURL+"/evaluations/"+scored.ID, nil)
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var fetched ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("Failed to decode evaluation: %v", err)
	}

	if fetched.ID != scored.ID {
		t.Errorf("Expected id %s, got %s", scored.ID, fetched.ID)
	}
	if fetched.FraudScore != scored.FraudScore {
		t.Errorf("Expected score %.2f, got %.2f", scored.FraudScore, fetched.FraudScore)
	}

	t.Logf("✓ Evaluation retrieved: id=%s", fetched.ID)
}

// ============================================================================
// SCENARIO 5: Input Validation
// ============================================================================

func TestNegativeAmount_Error(t *testing.T) {
	/*
	   SCENARIO: Request with a negative amount

	   EXPECTED: HTTP 400 Bad Request
	*/
	config := getTestConfig()

	body, _ := json.Marshal(map[string]any{"amount": -500})
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/score", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative amount, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: negative amount → HTTP %d", resp.StatusCode)
}

func TestMissingTenantHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Request without X-Tenant-ID header

	   EXPECTED: HTTP 400 Bad Request (tenant is a required field,
	   not an auth credential)
	*/
	config := getTestConfig()

	body, _ := json.Marshal(map[string]any{"amount": 100})
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/score", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	// NO X-Tenant-ID header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing tenant → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 6: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	result := score(t, config, ScoreRequest{
		AccountNumber: "acc-metadata-001",
		Amount:        100,
		PayeeName:     "Fabrikam",
	})

	if result.ID == "" {
		t.Error("Missing id")
	}
	if result.TenantID != config.TenantID {
		t.Errorf("Expected tenant %s, got %s", config.TenantID, result.TenantID)
	}
	if result.FraudScore < 0 || result.FraudScore > 100 {
		t.Errorf("Fraud score out of range: %.2f (expected 0-100)", result.FraudScore)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		t.Errorf("Confidence out of range: %.4f (expected 0-1)", result.Confidence)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if result.Metadata.EngineVersion == "" {
		t.Error("Missing metadata.engineVersion")
	}
	// TotalMs can be 0 for sub-millisecond evaluations
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: id=%s, traceId=%s, version=%s, totalMs=%d",
		result.ID, result.Metadata.TraceID, result.Metadata.EngineVersion, result.Metadata.TotalMs)
}

package domain

import (
	"time"
)

// Risk tiers, derived solely from the final blended score.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Operational decisions.
const (
	DecisionApprove = "approve"
	DecisionReview  = "review"
	DecisionReject  = "reject"
)

// RiskFactor is one item of structured evidence: a stable factor id, a
// severity, a reviewer-facing description and the value that produced
// it. The same shape carries both risk factors and safe factors.
type RiskFactor struct {
	Factor      string `json:"factor"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Value       any    `json:"value"`
}

// Evaluation is the complete, immutable result of scoring one cheque.
type Evaluation struct {
	ID            string  `json:"id"`
	TenantID      string  `json:"tenantId"`
	ChequeNumber  string  `json:"chequeNumber,omitempty"`
	AccountNumber string  `json:"accountNumber,omitempty"`
	Amount        float64 `json:"amount"`
	PayeeName     string  `json:"payeeName,omitempty"`

	// FraudScore is the final blended 0-100 score, one decimal.
	FraudScore float64 `json:"fraudScore"`

	// RuleScore and MLScore are the pre-blend signals, kept for audit.
	// MLScore is nil when the anomaly model was unavailable.
	RuleScore float64  `json:"ruleScore"`
	MLScore   *float64 `json:"mlScore,omitempty"`

	RiskLevel      string  `json:"riskLevel"`
	Decision       string  `json:"decision"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`

	ModelAvailable bool `json:"modelAvailable"`
	ProfileFound   bool `json:"profileFound"`

	Explanations []string     `json:"explanations"`
	RiskFactors  []RiskFactor `json:"riskFactors"`
	SafeFactors  []RiskFactor `json:"safeFactors"`

	TriggeredRules   []RuleTrigger  `json:"triggeredRules"`
	ComputedFeatures *FeatureVector `json:"computedFeatures"`

	Profile *ProfileSummary `json:"customerProfile,omitempty"`

	Timestamp time.Time          `json:"timestamp"`
	Metadata  EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata carries processing information.
type EvaluationMetadata struct {
	TraceID           string `json:"traceId"`
	FetchMs           int64  `json:"fetchMs"`
	ScoreMs           int64  `json:"scoreMs"`
	TotalMs           int64  `json:"totalMs"`
	RecentSubmissions int64  `json:"recentSubmissions,omitempty"`
	EngineVersion     string `json:"engineVersion"`
}

// Recommendation returns the reviewer-facing recommendation text for a
// risk level.
func Recommendation(riskLevel string) string {
	switch riskLevel {
	case RiskCritical:
		return "REJECT - Critical fraud risk detected. Do not process this cheque."
	case RiskHigh:
		return "REVIEW - High risk detected. Manual verification required."
	case RiskMedium:
		return "CAUTION - Medium risk. Additional verification recommended."
	default:
		return "APPROVE - Transaction appears normal. Safe to process."
	}
}

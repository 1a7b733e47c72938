package domain

// Severity levels attached to rule triggers and risk factors.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// RuleTrigger records one rule firing: identifier, point contribution,
// human-readable rationale, severity. A rule fires at most once per
// evaluation; tiers within a category are mutually exclusive.
type RuleTrigger struct {
	RuleID   string  `json:"ruleId"`
	Points   float64 `json:"points"`
	Reason   string  `json:"reason"`
	Severity string  `json:"severity"`
}

// ScreeningRule is an operator-defined supplemental rule: a CEL
// expression over the 20 named feature variables (plus amount and
// payee_name). When the expression evaluates true the rule contributes
// its points as an extra trigger, before trust discounts.
type ScreeningRule struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenantId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Expression  string  `json:"expression"`
	Points      float64 `json:"points"`
	Severity    string  `json:"severity"`
	Reason      string  `json:"reason"`
	Enabled     bool    `json:"enabled"`
}

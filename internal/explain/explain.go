// Package explain derives the ordered human-readable explanations and
// the structured risk/safe factor lists for a scored cheque. The
// evaluation order is fixed; each condition produces at most one
// explanation with the computed values embedded.
package explain

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Secondary severity thresholds for risk factors. These are
// independent of the rule engine's point weights: a reviewer-facing
// severity, not a score contribution.
const (
	zscoreHighSeverity    = 3
	signatureHighSeverity = 50
	velocityThreshold     = 3
	balanceRatioThreshold = 0.8
	bounceRateThreshold   = 0.1
)

// builtinRuleIDs are the triggers produced by the built-in ladders.
// Triggers outside this set come from screening rules; their reasons
// are appended to the explanations verbatim.
var builtinRuleIDs = map[string]struct{}{
	"extreme_amount": {}, "very_high_amount": {}, "unusual_amount": {}, "elevated_amount": {},
	"exceeds_balance": {}, "high_balance_usage": {},
	"exceeds_max": {}, "above_max": {},
	"new_payee":   {},
	"new_account": {}, "recent_account": {},
	"night_transaction": {},
	"long_dormant":      {}, "dormant": {},
	"signature_mismatch": {}, "low_signature": {}, "weak_signature": {},
	"high_bounce_rate": {}, "elevated_bounce_rate": {},
}

// Build produces the explanations and the risk/safe factor lists.
// Deterministic: same inputs, same output, same order. If nothing
// fires, exactly one default explanation is emitted.
func Build(event *domain.ChequeEvent, f *domain.FeatureVector, profile *domain.AccountProfile, triggers []domain.RuleTrigger) (explanations []string, riskFactors, safeFactors []domain.RiskFactor) {
	explanations = buildExplanations(event, f, profile, triggers)
	riskFactors = buildRiskFactors(event, f)
	safeFactors = buildSafeFactors(f, profile)
	return explanations, riskFactors, safeFactors
}

func buildExplanations(event *domain.ChequeEvent, f *domain.FeatureVector, profile *domain.AccountProfile, triggers []domain.RuleTrigger) []string {
	var out []string

	if f.AmountZScore > 2 {
		out = append(out, fmt.Sprintf("Amount is unusual (%.1f standard deviations from customer's average)", f.AmountZScore))
	}

	if f.IsNewPayee == 1 {
		payee := event.PayeeName
		if payee == "" {
			payee = "Unknown"
		}
		out = append(out, fmt.Sprintf("First transaction to this payee (new payee: %s)", payee))
	}

	if profile != nil && profile.AvgTransactionAmt > 0 && event.Amount > 0 {
		if ratio := event.Amount / profile.AvgTransactionAmt; ratio > 2 {
			out = append(out, fmt.Sprintf("Amount (%.2f) is %.1fx customer's average (%.2f)",
				event.Amount, ratio, profile.AvgTransactionAmt))
		}
	}

	if f.IsNightTransaction == 1 {
		out = append(out, fmt.Sprintf("Transaction processed at unusual hour (%.0f:00)", f.HourOfDay))
	}

	if f.TxnCount24h > velocityThreshold {
		out = append(out, fmt.Sprintf("High velocity: %.0f transactions in last 24 hours", f.TxnCount24h))
	}

	if f.IsDormant == 1 {
		out = append(out, fmt.Sprintf("Account was dormant for %.0f days before this transaction", f.DaysSinceLastTxn))
	}

	if f.SignatureScore < 70 {
		out = append(out, fmt.Sprintf("Low signature verification confidence (%.0f%%)", f.SignatureScore))
	}

	if f.AmountToBalanceRatio > balanceRatioThreshold {
		out = append(out, fmt.Sprintf("Transaction is %.0f%% of account balance (%.2f)",
			f.AmountToBalanceRatio*100, f.AvgBalance))
	}

	if f.IsAboveMax == 1 {
		maxAmt := 0.0
		if profile != nil {
			maxAmt = profile.MaxTransactionAmt
		}
		out = append(out, fmt.Sprintf("Amount exceeds historical maximum (%.2f)", maxAmt))
	}

	if f.BounceRate > bounceRateThreshold {
		out = append(out, fmt.Sprintf("Account has %.1f%% cheque bounce rate", f.BounceRate*100))
	}

	if f.IsWeekend == 1 {
		out = append(out, "Transaction on weekend")
	}

	// Screening-rule reasons are operator-authored; pass them through.
	for _, t := range triggers {
		if _, builtin := builtinRuleIDs[t.RuleID]; !builtin && t.Reason != "" {
			out = append(out, t.Reason)
		}
	}

	if len(out) == 0 {
		out = append(out, "Transaction appears normal - no anomalies detected")
	}

	return out
}

func buildRiskFactors(event *domain.ChequeEvent, f *domain.FeatureVector) []domain.RiskFactor {
	var factors []domain.RiskFactor

	if f.AmountZScore > 2 {
		severity := domain.SeverityMedium
		if f.AmountZScore > zscoreHighSeverity {
			severity = domain.SeverityHigh
		}
		factors = append(factors, domain.RiskFactor{
			Factor:      "unusual_amount",
			Severity:    severity,
			Description: fmt.Sprintf("Transaction amount is %.1f standard deviations above average", f.AmountZScore),
			Value:       math.Round(f.AmountZScore*100) / 100,
		})
	}

	if f.IsNewPayee == 1 {
		severity := domain.SeverityLow
		if f.AmountToMaxRatio > 1.5 {
			severity = domain.SeverityHigh
		}
		payee := event.PayeeName
		if payee == "" {
			payee = "Unknown"
		}
		factors = append(factors, domain.RiskFactor{
			Factor:      "new_payee",
			Severity:    severity,
			Description: "Payment to a new/unknown payee",
			Value:       payee,
		})
	}

	if f.IsNightTransaction == 1 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "unusual_time",
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("Transaction processed at unusual hour (%.0f:00)", f.HourOfDay),
			Value:       int(f.HourOfDay),
		})
	}

	if f.TxnCount24h > velocityThreshold {
		factors = append(factors, domain.RiskFactor{
			Factor:      "high_velocity",
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("High transaction frequency: %.0f transactions in 24 hours", f.TxnCount24h),
			Value:       int(f.TxnCount24h),
		})
	}

	if f.IsDormant == 1 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "dormant_account",
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("Account was dormant for %.0f days", f.DaysSinceLastTxn),
			Value:       int(f.DaysSinceLastTxn),
		})
	}

	if f.SignatureScore < 70 {
		severity := domain.SeverityMedium
		if f.SignatureScore < signatureHighSeverity {
			severity = domain.SeverityHigh
		}
		factors = append(factors, domain.RiskFactor{
			Factor:      "signature_mismatch",
			Severity:    severity,
			Description: fmt.Sprintf("Low signature verification confidence (%.0f%%)", f.SignatureScore),
			Value:       f.SignatureScore,
		})
	}

	if f.AmountToBalanceRatio > balanceRatioThreshold {
		factors = append(factors, domain.RiskFactor{
			Factor:      "high_balance_ratio",
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("Transaction is %.0f%% of account balance", f.AmountToBalanceRatio*100),
			Value:       math.Round(f.AmountToBalanceRatio*1000) / 10,
		})
	}

	if f.IsAboveMax == 1 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "exceeds_max",
			Severity:    domain.SeverityMedium,
			Description: "Amount exceeds historical maximum transaction",
			Value:       true,
		})
	}

	if f.BounceRate > bounceRateThreshold {
		factors = append(factors, domain.RiskFactor{
			Factor:      "high_bounce_rate",
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("Account has %.1f%% cheque bounce rate", f.BounceRate*100),
			Value:       math.Round(f.BounceRate*1000) / 10,
		})
	}

	return factors
}

// buildSafeFactors collects the complementary positive evidence. Safe
// factors are only ever additive; they never suppress risk factors.
func buildSafeFactors(f *domain.FeatureVector, profile *domain.AccountProfile) []domain.RiskFactor {
	var factors []domain.RiskFactor

	if profile != nil && f.BounceRate == 0 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "no_bounce_history",
			Severity:    domain.SeverityMedium,
			Description: "No cheque bounce history on this account",
			Value:       0,
		})
	}

	if f.SignatureScore >= 80 {
		severity := domain.SeverityMedium
		if f.SignatureScore >= 90 {
			severity = domain.SeverityHigh
		}
		factors = append(factors, domain.RiskFactor{
			Factor:      "strong_signature",
			Severity:    severity,
			Description: fmt.Sprintf("Strong signature match (%.0f%%)", f.SignatureScore),
			Value:       f.SignatureScore,
		})
	}

	if profile != nil && profile.StdDevTransactionAmt > 0 && math.Abs(f.AmountZScore) <= 2 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "normal_amount",
			Severity:    domain.SeverityLow,
			Description: "Amount is within the account's normal range",
			Value:       math.Round(f.AmountZScore*100) / 100,
		})
	}

	if f.IsNewPayee == 0 {
		severity := domain.SeverityLow
		if f.PayeeFrequency >= 3 {
			severity = domain.SeverityMedium
		}
		factors = append(factors, domain.RiskFactor{
			Factor:      "known_payee",
			Severity:    severity,
			Description: fmt.Sprintf("Payee has been paid %.0f times before", f.PayeeFrequency),
			Value:       int(f.PayeeFrequency),
		})
	}

	if f.AccountAgeDays > 180 {
		severity := domain.SeverityMedium
		if f.AccountAgeDays > 365 {
			severity = domain.SeverityHigh
		}
		factors = append(factors, domain.RiskFactor{
			Factor:      "established_account",
			Severity:    severity,
			Description: fmt.Sprintf("Account established for %.0f days", f.AccountAgeDays),
			Value:       int(f.AccountAgeDays),
		})
	}

	return factors
}

package explain

import (
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func hasFactor(factors []domain.RiskFactor, name string) *domain.RiskFactor {
	for i := range factors {
		if factors[i].Factor == name {
			return &factors[i]
		}
	}
	return nil
}

func TestDefaultExplanation(t *testing.T) {
	event := &domain.ChequeEvent{Amount: 500, PayeeName: "Acme Supplies"}
	f := &domain.FeatureVector{SignatureScore: 85}

	explanations, _, _ := Build(event, f, nil, nil)

	if len(explanations) != 1 {
		t.Fatalf("expected exactly 1 explanation, got %d: %v", len(explanations), explanations)
	}
	if explanations[0] != "Transaction appears normal - no anomalies detected" {
		t.Errorf("unexpected default explanation: %s", explanations[0])
	}
}

func TestExplanationOrder(t *testing.T) {
	event := &domain.ChequeEvent{Amount: 50000, PayeeName: "Initech"}
	f := &domain.FeatureVector{
		AmountZScore:   4,
		IsNewPayee:     1,
		SignatureScore: 60,
	}

	explanations, _, _ := Build(event, f, nil, nil)

	if len(explanations) != 3 {
		t.Fatalf("expected 3 explanations, got %d: %v", len(explanations), explanations)
	}
	// Fixed evaluation order: amount anomaly, then payee, then signature.
	if !strings.Contains(explanations[0], "standard deviations") {
		t.Errorf("expected amount explanation first, got %s", explanations[0])
	}
	if !strings.Contains(explanations[1], "new payee: Initech") {
		t.Errorf("expected payee explanation second, got %s", explanations[1])
	}
	if !strings.Contains(explanations[2], "signature") {
		t.Errorf("expected signature explanation third, got %s", explanations[2])
	}
}

func TestAverageMultipleExplanation(t *testing.T) {
	event := &domain.ChequeEvent{Amount: 5000, PayeeName: "Acme Supplies"}
	profile := &domain.AccountProfile{AvgTransactionAmt: 1000, MaxTransactionAmt: 2000}
	f := &domain.FeatureVector{SignatureScore: 85, IsAboveMax: 1}

	explanations, _, _ := Build(event, f, profile, nil)

	var foundRatio, foundMax bool
	for _, e := range explanations {
		if strings.Contains(e, "5.0x customer's average") {
			foundRatio = true
		}
		if strings.Contains(e, "exceeds historical maximum (2000.00)") {
			foundMax = true
		}
	}
	if !foundRatio {
		t.Errorf("expected average-multiple explanation, got %v", explanations)
	}
	if !foundMax {
		t.Errorf("expected historical-maximum explanation, got %v", explanations)
	}
}

func TestScreeningReasonPassthrough(t *testing.T) {
	event := &domain.ChequeEvent{Amount: 500}
	f := &domain.FeatureVector{SignatureScore: 85}

	triggers := []domain.RuleTrigger{
		// Built-in trigger: already covered by the ordered conditions.
		{RuleID: "new_payee", Reason: "First transaction to this payee"},
		// Operator-authored screening trigger: passed through verbatim.
		{RuleID: "ops-watchlist", Reason: "Payee on operations watchlist"},
	}

	explanations, _, _ := Build(event, f, nil, triggers)

	var found bool
	for _, e := range explanations {
		if e == "Payee on operations watchlist" {
			found = true
		}
		if e == "First transaction to this payee" {
			t.Error("built-in trigger reason must not be duplicated")
		}
	}
	if !found {
		t.Errorf("expected screening reason in explanations, got %v", explanations)
	}
}

func TestRiskFactors(t *testing.T) {
	event := &domain.ChequeEvent{Amount: 80000, PayeeName: "Initech"}
	f := &domain.FeatureVector{
		AmountZScore:         4,
		AmountToMaxRatio:     2,
		IsNewPayee:           1,
		IsNightTransaction:   1,
		HourOfDay:            23,
		TxnCount24h:          5,
		IsDormant:            1,
		DaysSinceLastTxn:     120,
		SignatureScore:       40,
		AmountToBalanceRatio: 0.9,
		IsAboveMax:           1,
		BounceRate:           0.2,
	}

	_, riskFactors, _ := Build(event, f, nil, nil)

	expectHigh := []string{"unusual_amount", "new_payee", "dormant_account", "signature_mismatch", "high_balance_ratio"}
	for _, name := range expectHigh {
		factor := hasFactor(riskFactors, name)
		if factor == nil {
			t.Errorf("expected risk factor %s", name)
			continue
		}
		if factor.Severity != domain.SeverityHigh {
			t.Errorf("%s: expected high severity, got %s", name, factor.Severity)
		}
	}

	expectMedium := []string{"unusual_time", "high_velocity", "exceeds_max", "high_bounce_rate"}
	for _, name := range expectMedium {
		factor := hasFactor(riskFactors, name)
		if factor == nil {
			t.Errorf("expected risk factor %s", name)
			continue
		}
		if factor.Severity != domain.SeverityMedium {
			t.Errorf("%s: expected medium severity, got %s", name, factor.Severity)
		}
	}
}

func TestRiskFactorSeverityDowngrades(t *testing.T) {
	event := &domain.ChequeEvent{Amount: 5000, PayeeName: "Initech"}
	f := &domain.FeatureVector{
		AmountZScore:     2.5, // above threshold but not extreme
		IsNewPayee:       1,
		AmountToMaxRatio: 1.0, // ordinary size for a new payee
		SignatureScore:   60,  // weak but not a mismatch
	}

	_, riskFactors, _ := Build(event, f, nil, nil)

	if factor := hasFactor(riskFactors, "unusual_amount"); factor == nil || factor.Severity != domain.SeverityMedium {
		t.Errorf("expected medium unusual_amount, got %+v", factor)
	}
	if factor := hasFactor(riskFactors, "new_payee"); factor == nil || factor.Severity != domain.SeverityLow {
		t.Errorf("expected low new_payee, got %+v", factor)
	}
	if factor := hasFactor(riskFactors, "signature_mismatch"); factor == nil || factor.Severity != domain.SeverityMedium {
		t.Errorf("expected medium signature_mismatch, got %+v", factor)
	}
}

func TestSafeFactors(t *testing.T) {
	event := &domain.ChequeEvent{Amount: 1000, PayeeName: "Acme Supplies"}
	profile := &domain.AccountProfile{
		AvgTransactionAmt:    1100,
		StdDevTransactionAmt: 300,
	}
	f := &domain.FeatureVector{
		AmountZScore:   -0.3,
		SignatureScore: 92,
		PayeeFrequency: 4,
		AccountAgeDays: 400,
		BounceRate:     0,
	}

	_, _, safeFactors := Build(event, f, profile, nil)

	if hasFactor(safeFactors, "no_bounce_history") == nil {
		t.Error("expected no_bounce_history")
	}
	if factor := hasFactor(safeFactors, "strong_signature"); factor == nil || factor.Severity != domain.SeverityHigh {
		t.Errorf("expected high strong_signature at 92%%, got %+v", factor)
	}
	if hasFactor(safeFactors, "normal_amount") == nil {
		t.Error("expected normal_amount")
	}
	if factor := hasFactor(safeFactors, "known_payee"); factor == nil || factor.Severity != domain.SeverityMedium {
		t.Errorf("expected medium known_payee with frequency 4, got %+v", factor)
	}
	if factor := hasFactor(safeFactors, "established_account"); factor == nil || factor.Severity != domain.SeverityHigh {
		t.Errorf("expected high established_account at 400 days, got %+v", factor)
	}
}

func TestSafeFactorsRequireProfileForBounce(t *testing.T) {
	event := &domain.ChequeEvent{Amount: 1000}
	f := &domain.FeatureVector{SignatureScore: 85}

	_, _, safeFactors := Build(event, f, nil, nil)

	// Without a profile a zero bounce rate means "no data", not "clean".
	if hasFactor(safeFactors, "no_bounce_history") != nil {
		t.Error("no_bounce_history must require a profile")
	}
}

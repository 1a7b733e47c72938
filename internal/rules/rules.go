// Package rules implements the deterministic heuristic scoring policy:
// ten tiered rule ladders over the feature vector, followed by capped
// trust discounts. Score is side-effect-free and always terminates
// with a value in [0,100], even on all-default input.
package rules

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// maxTrustDiscount caps the combined trust discount regardless of how
// many discounts qualify.
const maxTrustDiscount = 0.15

// trustedPayeeAliases are payee names that never count as a new payee:
// drawer-to-self instruments are routine.
var trustedPayeeAliases = map[string]struct{}{
	"self":            {},
	"cash":            {},
	"self-withdrawal": {},
}

// Score evaluates the built-in rule ladders plus any supplemental
// triggers (from screening rules), applies trust discounts and returns
// the 0-100 rule score with the full trigger list. Higher-severity
// tiers are checked first and are mutually exclusive within a
// category: the first matching tier wins, no double-counting.
func Score(f *domain.FeatureVector, payeeName string, extra []domain.RuleTrigger) (float64, []domain.RuleTrigger) {
	var triggers []domain.RuleTrigger
	total := 0.0

	add := func(id string, points float64, severity, reason string) {
		triggers = append(triggers, domain.RuleTrigger{
			RuleID:   id,
			Points:   points,
			Reason:   reason,
			Severity: severity,
		})
		total += points
	}

	// Amount anomaly
	switch z := f.AmountZScore; {
	case z > 10:
		add("extreme_amount", 25, domain.SeverityHigh,
			fmt.Sprintf("Amount is %.1f standard deviations above the account average", z))
	case z > 5:
		add("very_high_amount", 18, domain.SeverityHigh,
			fmt.Sprintf("Amount is %.1f standard deviations above the account average", z))
	case z > 3:
		add("unusual_amount", 10, domain.SeverityMedium,
			fmt.Sprintf("Amount is %.1f standard deviations above the account average", z))
	case z > 2:
		add("elevated_amount", 5, domain.SeverityLow,
			fmt.Sprintf("Amount is %.1f standard deviations above the account average", z))
	}

	// Balance usage
	switch r := f.AmountToBalanceRatio; {
	case r > 1.0:
		add("exceeds_balance", 15, domain.SeverityHigh,
			fmt.Sprintf("Amount is %.0f%% of the account balance", r*100))
	case r > 0.9:
		add("high_balance_usage", 8, domain.SeverityMedium,
			fmt.Sprintf("Amount is %.0f%% of the account balance", r*100))
	}

	// Exceeds historical max
	if f.IsAboveMax == 1 {
		switch r := f.AmountToMaxRatio; {
		case r > 2.0:
			add("exceeds_max", 10, domain.SeverityMedium,
				fmt.Sprintf("Amount is %.1fx the historical maximum transaction", r))
		case r > 1.5:
			add("above_max", 5, domain.SeverityLow,
				fmt.Sprintf("Amount is %.1fx the historical maximum transaction", r))
		}
	}

	// New payee. Drawer-to-self aliases are exempt.
	if f.IsNewPayee == 1 && !isTrustedPayee(payeeName) {
		add("new_payee", 3, domain.SeverityLow,
			"First transaction to this payee")
	}

	// Account age
	switch age := f.AccountAgeDays; {
	case age < 14:
		add("new_account", 5, domain.SeverityMedium,
			fmt.Sprintf("Account is only %.0f days old", age))
	case age < 30:
		add("recent_account", 2, domain.SeverityLow,
			fmt.Sprintf("Account is only %.0f days old", age))
	}

	// Unusual hour. Only night-time processing scores; daytime hours
	// outside the habitual set carry no points.
	if f.IsNightTransaction == 1 {
		add("night_transaction", 4, domain.SeverityLow,
			fmt.Sprintf("Processed at night (%02.0f:00)", f.HourOfDay))
	}

	// Dormancy
	switch days := f.DaysSinceLastTxn; {
	case days > 180:
		add("long_dormant", 8, domain.SeverityHigh,
			fmt.Sprintf("Account was dormant for %.0f days", days))
	case days > 90:
		add("dormant", 4, domain.SeverityMedium,
			fmt.Sprintf("Account was dormant for %.0f days", days))
	}

	// Signature confidence
	switch s := f.SignatureScore; {
	case s < 40:
		add("signature_mismatch", 20, domain.SeverityHigh,
			fmt.Sprintf("Signature verification confidence is %.0f%%", s))
	case s < 60:
		add("low_signature", 12, domain.SeverityMedium,
			fmt.Sprintf("Signature verification confidence is %.0f%%", s))
	case s < 70:
		add("weak_signature", 5, domain.SeverityLow,
			fmt.Sprintf("Signature verification confidence is %.0f%%", s))
	}

	// Bounce history
	switch b := f.BounceRate; {
	case b > 0.15:
		add("high_bounce_rate", 10, domain.SeverityMedium,
			fmt.Sprintf("Account has a %.1f%% cheque bounce rate", b*100))
	case b > 0.08:
		add("elevated_bounce_rate", 5, domain.SeverityLow,
			fmt.Sprintf("Account has a %.1f%% cheque bounce rate", b*100))
	}

	// Weekend activity is normal banking behavior; never scored.

	// Supplemental screening-rule triggers contribute pre-discount.
	for _, t := range extra {
		triggers = append(triggers, t)
		total += t.Points
	}

	score := total * (1 - trustDiscount(f))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score, triggers
}

// trustDiscount computes the additive trust discount for strong
// positive signals, capped at maxTrustDiscount.
func trustDiscount(f *domain.FeatureVector) float64 {
	discount := 0.0

	if f.BounceRate == 0 {
		discount += 0.05
	}

	switch {
	case f.AccountAgeDays > 180:
		discount += 0.05
	case f.AccountAgeDays > 60:
		discount += 0.03
	}

	switch {
	case f.SignatureScore >= 80:
		discount += 0.05
	case f.SignatureScore >= 70:
		discount += 0.03
	}

	if discount > maxTrustDiscount {
		discount = maxTrustDiscount
	}
	return discount
}

func isTrustedPayee(name string) bool {
	_, ok := trustedPayeeAliases[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

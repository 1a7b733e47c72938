// Package scoring blends the rule score with the optional anomaly
// signal and maps the result onto risk tiers and decisions.
package scoring

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// mlDampening scales the anomaly signal before blending. The blend
// takes the lower of the dampened anomaly score and the rule score,
// biasing toward fewer false positives on legitimate traffic. The
// strict min (no averaging) is a fixed policy; keep it bit-for-bit.
const mlDampening = 0.7

// Post-blend caps for profiles with strong positive signals. Caps only
// ever lower the score.
const (
	signatureCapThreshold = 70
	signatureCap          = 45
	trustedProfileCap     = 35
	trustedAgeDays        = 60
)

// Blend combines the rule score and the optional anomaly fraud score
// into the final 0-100 score, rounded to one decimal. mlFraudScore is
// nil when the anomaly model was unavailable; the rule score then
// passes through unchanged (before caps).
func Blend(f *domain.FeatureVector, profileFound bool, ruleScore float64, mlFraudScore *float64) float64 {
	blended := ruleScore
	if mlFraudScore != nil {
		blended = math.Min(*mlFraudScore*mlDampening, ruleScore)
	}

	if profileFound && f.SignatureScore >= signatureCapThreshold {
		blended = math.Min(blended, signatureCap)
		if f.BounceRate == 0 && f.AccountAgeDays > trustedAgeDays {
			blended = math.Min(blended, trustedProfileCap)
		}
	}

	if blended < 0 {
		blended = 0
	}
	if blended > 100 {
		blended = 100
	}

	return math.Round(blended*10) / 10
}

// Risk tier thresholds, evaluated high-to-low.
const (
	criticalThreshold = 70
	highThreshold     = 50
	mediumThreshold   = 30
)

// Classify maps the final score to a risk tier and an operational
// decision. Stateless lookup: no hysteresis, no history-dependence.
func Classify(finalScore float64) (riskLevel, decision string) {
	switch {
	case finalScore >= criticalThreshold:
		return domain.RiskCritical, domain.DecisionReject
	case finalScore >= highThreshold:
		return domain.RiskHigh, domain.DecisionReview
	case finalScore >= mediumThreshold:
		return domain.RiskMedium, domain.DecisionReview
	default:
		return domain.RiskLow, domain.DecisionApprove
	}
}

// Confidence estimates how much evidence backed the assessment. It is
// computed from input coverage, not from the score itself: base 0.75,
// plus increments for each populated signal, capped at 0.99 and
// rounded to four decimals.
func Confidence(f *domain.FeatureVector, anyTriggered bool) float64 {
	confidence := 0.75

	if f.AmountZScore != 0 {
		confidence += 0.05
	}
	if f.AccountAgeDays > 0 {
		confidence += 0.05
	}
	if f.SignatureScore > 0 {
		confidence += 0.08
	}
	if anyTriggered {
		confidence += 0.02
	}

	if confidence > 0.99 {
		confidence = 0.99
	}

	return math.Round(confidence*10000) / 10000
}

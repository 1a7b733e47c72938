// Package features derives the fixed 20-field feature vector from a
// cheque event, an optional account profile and the recent history
// window. Build never fails: every branch has a numeric default.
package features

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// assumedBalance is used when no profile balance is known.
	assumedBalance = 100000

	// extremeBalanceRatio signals a non-positive balance instead of
	// dividing by zero.
	extremeBalanceRatio = 10

	// defaultAccountAgeDays is assumed for accounts with no profile.
	defaultAccountAgeDays = 365

	// dormancyDays is the inactivity gap that marks an account dormant.
	dormancyDays = 90
)

// Accepted instrument date formats, tried in order.
var dateFormats = []string{"2006-01-02", "02/01/2006"}

// Build computes the feature vector for one evaluation. The clock is
// an explicit parameter: hour_of_day is the processing hour (fraud
// signals correlate with when a cheque is presented, not the date
// written on it), while day_of_week comes from the instrument date.
func Build(event *domain.ChequeEvent, profile *domain.AccountProfile, history []*domain.Transaction, now time.Time) *domain.FeatureVector {
	f := &domain.FeatureVector{}

	amount := event.Amount
	if amount <= 0 {
		amount = domain.DefaultAmount
	}

	buildAmount(f, amount, profile)
	buildPayee(f, event.PayeeName, history)
	buildTime(f, event.Date, profile, now)
	buildVelocity(f, history, now)
	buildHealth(f, profile, now)

	f.SignatureScore = event.SignatureScore

	return f
}

func buildAmount(f *domain.FeatureVector, amount float64, profile *domain.AccountProfile) {
	if profile != nil && profile.StdDevTransactionAmt > 0 {
		f.AmountZScore = (amount - profile.AvgTransactionAmt) / profile.StdDevTransactionAmt
		if profile.MaxTransactionAmt > 0 {
			f.AmountToMaxRatio = amount / profile.MaxTransactionAmt
		}
	} else {
		f.AmountZScore = 0
		f.AmountToMaxRatio = 1
	}

	balance := resolveBalance(profile)
	if balance > 0 {
		f.AmountToBalanceRatio = amount / balance
	} else {
		f.AmountToBalanceRatio = extremeBalanceRatio
	}
	f.AvgBalance = balance

	if profile != nil && profile.MaxTransactionAmt > 0 && amount > profile.MaxTransactionAmt {
		f.IsAboveMax = 1
	}
}

// resolveBalance returns the profile balance, or the assumed balance
// when no profile exists or the stored balance is zero. A negative
// balance is kept as-is so the overdrawn account hits the extreme
// ratio branch.
func resolveBalance(profile *domain.AccountProfile) float64 {
	if profile == nil || profile.Balance == 0 {
		return assumedBalance
	}
	return profile.Balance
}

func buildPayee(f *domain.FeatureVector, payee string, history []*domain.Transaction) {
	var receivers []string
	for _, tx := range history {
		if tx.ReceiverName != "" {
			receivers = append(receivers, tx.ReceiverName)
		}
	}

	if len(receivers) == 0 {
		f.IsNewPayee = 1
		f.PayeeFrequency = 0
		f.UniquePayeeRatio = 1
		return
	}

	seen := false
	freq := 0
	distinct := make(map[string]struct{}, len(receivers))
	for _, name := range receivers {
		distinct[name] = struct{}{}
		if payee != "" && name == payee {
			seen = true
			freq++
		}
	}

	if !seen {
		f.IsNewPayee = 1
	}
	f.PayeeFrequency = float64(freq)
	f.UniquePayeeRatio = float64(len(distinct)) / float64(len(receivers))
}

func buildTime(f *domain.FeatureVector, rawDate string, profile *domain.AccountProfile, now time.Time) {
	instrumentDate := parseDate(rawDate, now)

	hour := now.Hour()
	dow := mondayIndexed(instrumentDate.Weekday())

	f.HourOfDay = float64(hour)
	f.DayOfWeek = float64(dow)
	if dow >= 5 {
		f.IsWeekend = 1
	}
	if hour < 6 || hour > 21 {
		f.IsNightTransaction = 1
	}

	if profile != nil && len(profile.UsualHours) > 0 {
		if !containsHour(profile.UsualHours, hour) {
			f.IsUnusualHour = 1
		}
	} else if hour < 9 || hour > 17 {
		f.IsUnusualHour = 1
	}
}

// parseDate tries the accepted instrument date formats and falls back
// to the processing date. Unparseable dates are recovered locally, not
// surfaced.
func parseDate(raw string, now time.Time) time.Time {
	if raw == "" {
		return now
	}
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, raw); err == nil {
			return d
		}
	}
	return now
}

// mondayIndexed maps a weekday to 0=Monday..6=Sunday, the indexing the
// anomaly model was trained with.
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}

func buildVelocity(f *domain.FeatureVector, history []*domain.Transaction, now time.Time) {
	if len(history) == 0 {
		return
	}

	var last time.Time
	for _, tx := range history {
		if tx.CreatedAt.IsZero() {
			continue
		}
		diff := now.Sub(tx.CreatedAt)
		if diff <= 24*time.Hour {
			f.TxnCount24h++
		}
		if int(diff.Hours()/24) <= 7 {
			f.TxnCount7d++
		}
		if tx.CreatedAt.After(last) {
			last = tx.CreatedAt
		}
	}

	if !last.IsZero() {
		f.DaysSinceLastTxn = float64(int(now.Sub(last).Hours() / 24))
	}
	if f.DaysSinceLastTxn > dormancyDays {
		f.IsDormant = 1
	}
}

func buildHealth(f *domain.FeatureVector, profile *domain.AccountProfile, now time.Time) {
	if profile != nil && !profile.CreatedAt.IsZero() {
		f.AccountAgeDays = float64(int(now.Sub(profile.CreatedAt).Hours() / 24))
	} else {
		f.AccountAgeDays = defaultAccountAgeDays
	}

	if profile != nil {
		rate := profile.BounceRate / 100
		if rate < 0 {
			rate = 0
		}
		if rate > 1 {
			rate = 1
		}
		f.BounceRate = rate
	}
}

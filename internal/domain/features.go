package domain

// FeatureVector is the fixed 20-field numeric record derived from a
// cheque event, an optional account profile, and the recent history
// window. Every field is always populated with either a computed value
// or a documented default; none is ever absent or NaN. Constructed
// once per evaluation and never mutated.
type FeatureVector struct {
	// Amount features
	AmountZScore         float64 `json:"amount_zscore"`
	AmountToMaxRatio     float64 `json:"amount_to_max_ratio"`
	AmountToBalanceRatio float64 `json:"amount_to_balance_ratio"`
	IsAboveMax           float64 `json:"is_above_max"`

	// Payee features
	IsNewPayee       float64 `json:"is_new_payee"`
	PayeeFrequency   float64 `json:"payee_frequency"`
	UniquePayeeRatio float64 `json:"unique_payee_ratio"`

	// Time features
	HourOfDay          float64 `json:"hour_of_day"`
	DayOfWeek          float64 `json:"day_of_week"`
	IsUnusualHour      float64 `json:"is_unusual_hour"`
	IsWeekend          float64 `json:"is_weekend"`
	IsNightTransaction float64 `json:"is_night_transaction"`

	// Velocity features
	TxnCount24h      float64 `json:"txn_count_24h"`
	TxnCount7d       float64 `json:"txn_count_7d"`
	DaysSinceLastTxn float64 `json:"days_since_last_txn"`
	IsDormant        float64 `json:"is_dormant"`

	// Account health features
	AccountAgeDays float64 `json:"account_age_days"`
	BounceRate     float64 `json:"bounce_rate"`
	AvgBalance     float64 `json:"avg_balance"`

	// Signal features
	SignatureScore float64 `json:"signature_score"`
}

// FeatureCount is the fixed width of the model input vector.
const FeatureCount = 20

// FeatureNames returns the feature identifiers in model input order.
// This order is a fixed contract with the external anomaly model and
// with CEL screening rules; never reorder it.
func FeatureNames() []string {
	return []string{
		"amount_zscore", "amount_to_max_ratio", "amount_to_balance_ratio", "is_above_max",
		"is_new_payee", "payee_frequency", "unique_payee_ratio",
		"hour_of_day", "day_of_week", "is_unusual_hour", "is_weekend", "is_night_transaction",
		"txn_count_24h", "txn_count_7d", "days_since_last_txn", "is_dormant",
		"account_age_days", "bounce_rate", "avg_balance",
		"signature_score",
	}
}

// Vector flattens the features into the model input order.
func (f *FeatureVector) Vector() []float64 {
	return []float64{
		f.AmountZScore, f.AmountToMaxRatio, f.AmountToBalanceRatio, f.IsAboveMax,
		f.IsNewPayee, f.PayeeFrequency, f.UniquePayeeRatio,
		f.HourOfDay, f.DayOfWeek, f.IsUnusualHour, f.IsWeekend, f.IsNightTransaction,
		f.TxnCount24h, f.TxnCount7d, f.DaysSinceLastTxn, f.IsDormant,
		f.AccountAgeDays, f.BounceRate, f.AvgBalance,
		f.SignatureScore,
	}
}

// Map returns the features keyed by name, in the same fixed order as
// Vector. Used as the CEL activation for screening rules.
func (f *FeatureVector) Map() map[string]any {
	names := FeatureNames()
	vals := f.Vector()
	m := make(map[string]any, len(names))
	for i, name := range names {
		m[name] = vals[i]
	}
	return m
}

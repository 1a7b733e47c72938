package domain

import (
	"time"
)

// MaxHistoryItems caps the recent-transaction window read for an
// account. This is a repository contract, not an incidental query
// limit: feature extraction is defined over at most this many items.
const MaxHistoryItems = 100

// AccountProfile holds aggregate statistics for an account. It is a
// read-only snapshot; absence is a valid state (new or unknown
// account) and every feature has a defaulted branch for it.
type AccountProfile struct {
	AccountID     string `json:"accountId"`
	AccountNumber string `json:"accountNumber"`

	// Historical transaction amount statistics
	AvgTransactionAmt    float64 `json:"avgTransactionAmt"`
	MaxTransactionAmt    float64 `json:"maxTransactionAmt"`
	MinTransactionAmt    float64 `json:"minTransactionAmt"`
	StdDevTransactionAmt float64 `json:"stddevTransactionAmt"`

	TotalTransactionCount int `json:"totalTransactionCount"`

	// Cheque bounce history. BounceRate is a percentage (0-100).
	BouncedChequesCount int     `json:"bouncedChequesCount"`
	BounceRate          float64 `json:"bounceRate"`

	// UsualHours is the set of habitual hours-of-day (0-23) observed
	// for this account. Empty means unknown.
	UsualHours []int `json:"usualHours,omitempty"`

	UniquePayeeCount int     `json:"uniquePayeeCount"`
	Balance          float64 `json:"balance"`

	CreatedAt time.Time `json:"createdAt"`
}

// Transaction is one historical item for an account, used only for
// payee-familiarity and velocity features.
type Transaction struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	AccountID    string    `json:"accountId"`
	TxnType      string    `json:"txnType"`
	Amount       float64   `json:"amount"`
	ReceiverName string    `json:"receiverName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ProfileSummary is the profile echo included on a ScoreResult when a
// profile was found, for reviewer context.
type ProfileSummary struct {
	AvgTransactionAmt float64 `json:"avgTransactionAmt"`
	MaxTransactionAmt float64 `json:"maxTransactionAmt"`
	TotalTransactions int     `json:"totalTransactions"`
	BounceRate        float64 `json:"bounceRate"`
	AccountBalance    float64 `json:"accountBalance"`
}

// Summary builds the response echo for a profile.
func (p *AccountProfile) Summary() *ProfileSummary {
	if p == nil {
		return nil
	}
	return &ProfileSummary{
		AvgTransactionAmt: p.AvgTransactionAmt,
		MaxTransactionAmt: p.MaxTransactionAmt,
		TotalTransactions: p.TotalTransactionCount,
		BounceRate:        p.BounceRate,
		AccountBalance:    p.Balance,
	}
}

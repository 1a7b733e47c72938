package domain

// ChequeEvent is the instrument being evaluated. It is created once per
// scoring request and never mutated by the engine.
type ChequeEvent struct {
	AccountNumber string  `json:"accountNumber"`
	Amount        float64 `json:"amount"`
	PayeeName     string  `json:"payeeName"`

	// Date is the date written on the instrument, as extracted upstream.
	// Accepted formats: YYYY-MM-DD or DD/MM/YYYY. Anything else falls
	// back to the processing date.
	Date string `json:"date"`

	ChequeNumber string `json:"chequeNumber"`

	// SignatureScore is the 0-100 confidence from the external
	// signature comparator, consumed verbatim as a feature.
	SignatureScore float64 `json:"signatureScore"`
}

// DefaultAmount is substituted when the extracted amount is absent or
// zero, so downstream ratios stay meaningful.
const DefaultAmount = 10000

// DefaultSignatureScore is assumed when no signature comparison result
// accompanies the request.
const DefaultSignatureScore = 85

// ScoreRequest is the API request payload for cheque evaluation.
type ScoreRequest struct {
	AccountNumber  string   `json:"accountNumber,omitempty"`
	Amount         float64  `json:"amount,omitempty"`
	PayeeName      string   `json:"payeeName,omitempty"`
	Date           string   `json:"date,omitempty"`
	ChequeNumber   string   `json:"chequeNumber,omitempty"`
	SignatureScore *float64 `json:"signatureScore,omitempty"`
}

// ToCheque converts a request to a ChequeEvent, resolving defaults.
func (r *ScoreRequest) ToCheque() *ChequeEvent {
	amount := r.Amount
	if amount <= 0 {
		amount = DefaultAmount
	}

	sig := float64(DefaultSignatureScore)
	if r.SignatureScore != nil {
		sig = *r.SignatureScore
	}

	return &ChequeEvent{
		AccountNumber:  r.AccountNumber,
		Amount:         amount,
		PayeeName:      r.PayeeName,
		Date:           r.Date,
		ChequeNumber:   r.ChequeNumber,
		SignatureScore: sig,
	}
}

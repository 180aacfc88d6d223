package domain

import "time"

// Donation is one normalized giving record ready for submission. Amounts are
// always held in cents; classification fields carry the human-readable names
// until the reference caches translate them to remote ids.
type Donation struct {
	PayerID       string
	ReceivedAt    time.Time
	Source        string
	Method        string
	Batch         string
	AmountCents   int64
	Fund          string
	TransactionID string
}

// Valid reports whether the donation satisfies the submission invariants.
func (d Donation) Valid() bool {
	return d.AmountCents > 0 && !d.ReceivedAt.IsZero() && d.PayerID != ""
}

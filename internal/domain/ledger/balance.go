package ledger

import "time"

// Balance is the single per-user credit row. Every mutation is a
// compare-and-swap on Version.
type Balance struct {
	UserID    string
	Amount    Cents
	Version   int64
	UpdatedAt time.Time
}

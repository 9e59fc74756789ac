package ledger

import "time"

// ReservationStatus tracks a hold on a user's balance.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is an amount already deducted from the balance but not yet
// recorded as a charge. Commit turns it into a charge Transaction; Release
// restores the balance.
type Reservation struct {
	ID             string
	UserID         string
	VerificationID string
	Amount         Cents
	Status         ReservationStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

package ledger

import "time"

// TransactionType classifies a committed monetary effect.
type TransactionType string

const (
	TypeCharge TransactionType = "charge"
	TypeRefund TransactionType = "refund"
	TypeCredit TransactionType = "credit"
)

// TransactionStatus is the settlement state of a Transaction.
type TransactionStatus string

const (
	StatusPosted TransactionStatus = "posted"
)

// Transaction is one committed monetary effect. A transaction is never
// duplicated for the same IdempotencyKey or (Type, VerificationID) pair.
type Transaction struct {
	ID                  string
	UserID              string
	Type                TransactionType
	Amount              Cents
	IdempotencyKey      string
	VerificationID      string
	SourceTransactionID string
	Status              TransactionStatus
	BalanceAfter        Cents
	CreatedAt           time.Time
}

// Signed returns the amount with the sign it applies to the balance.
func (t *Transaction) Signed() Cents {
	if t.Type == TypeCharge {
		return -t.Amount
	}
	return t.Amount
}

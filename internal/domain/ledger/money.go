// Package ledger defines the monetary entities: balances, reservations,
// and committed transactions. Amounts are integer minor units.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnitExp is the number of decimal places carried by Cents.
const minorUnitExp = 2

// Cents is an amount in minor currency units.
type Cents int64

// ParseAmount converts a decimal string such as "2.50" into Cents. Amounts
// with more precision than the minor unit are rejected rather than rounded.
func ParseAmount(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal amount into Cents.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	scaled := d.Shift(minorUnitExp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), minorUnitExp)
	}
	return Cents(scaled.IntPart()), nil
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -minorUnitExp)
}

// String formats the amount with two decimal places, e.g. "7.50".
func (c Cents) String() string {
	return c.Decimal().StringFixed(minorUnitExp)
}

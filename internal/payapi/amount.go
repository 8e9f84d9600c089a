package payapi

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// baseUnitExp is the backend's smallest-unit scale: 1 whole unit = 10^8.
const baseUnitExp = 8

// ToBaseUnits converts a human decimal amount to the smallest-unit integer
// string the backend expects. Amounts with more than 8 fractional digits or
// non-positive values are rejected here so they never reach the wire.
func ToBaseUnits(amount decimal.Decimal) (string, error) {
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("amount must be positive, got %s", amount)
	}
	shifted := amount.Shift(baseUnitExp)
	if !shifted.IsInteger() {
		return "", fmt.Errorf("amount %s exceeds %d decimal places", amount, baseUnitExp)
	}
	return shifted.String(), nil
}

// FromBaseUnits converts a smallest-unit integer string back to a human
// decimal amount.
func FromBaseUnits(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid base-unit amount %q: %w", raw, err)
	}
	if !d.IsInteger() {
		return decimal.Decimal{}, fmt.Errorf("base-unit amount %q is not an integer", raw)
	}
	return d.Shift(-baseUnitExp), nil
}

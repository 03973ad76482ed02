// Package money validates and converts fixed-point currency amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
)

// Scale is the number of fractional digits every stored amount carries.
const Scale = 2

// ValidatePositive rejects amounts that are not strictly positive or that
// carry more precision than the ledger stores.
func ValidatePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return finerr.NewValidationError(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Round(Scale)) {
		return finerr.NewValidationError(field, fmt.Sprintf("must have at most %d decimal places", Scale))
	}
	return nil
}

// ToMinorUnits converts 1234.50 into 123450.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(Scale).Round(0).IntPart()
}

// FromMinorUnits converts 123450 into 1234.50.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

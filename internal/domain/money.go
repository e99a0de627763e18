package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts cross the public API as decimal strings in major units and are held
// internally in minor units (cents). All supported currencies use a two-digit
// exponent.
const minorUnitExponent = 2

var (
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountPrecision   = errors.New("amount has more precision than the currency allows")
)

// ParseAmount converts a decimal string such as "200.00" into minor units.
// Transfer amounts must be strictly positive.
func ParseAmount(s string) (int64, error) {
	minor, err := parseMinor(s)
	if err != nil {
		return 0, err
	}
	if minor <= 0 {
		return 0, ErrAmountNotPositive
	}
	return minor, nil
}

// ParseBalance is ParseAmount for balances, where zero is allowed.
func ParseBalance(s string) (int64, error) {
	minor, err := parseMinor(s)
	if err != nil {
		return 0, err
	}
	if minor < 0 {
		return 0, fmt.Errorf("balance cannot be negative")
	}
	return minor, nil
}

func parseMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	minor := d.Shift(minorUnitExponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", s)
	}

	return minor.IntPart(), nil
}

// FormatMinor renders minor units back into the API's decimal representation.
func FormatMinor(v int64) string {
	return decimal.NewFromInt(v).Shift(-minorUnitExponent).StringFixed(minorUnitExponent)
}

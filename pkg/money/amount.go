package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places between a major unit (rupee) and a minor unit (paisa)
const Scale = 2

var (
	ErrEmptyAmount       = errors.New("amount is required")
	ErrInvalidAmount     = errors.New("invalid amount format")
	ErrSubMinorPrecision = errors.New("amount has more precision than the minor unit allows")
	ErrAmountOutOfRange  = errors.New("amount out of range")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	maxMinorUnits        = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits        = decimal.NewFromInt(math.MinInt64)
)

// Amount is a monetary value in integer minor units.
// All ledger arithmetic happens on Amount so no floating point ever touches a balance.
type Amount int64

// Parse converts a human-readable major-unit string ("10000", "10000.50") to minor units.
// Inputs with sub-paisa precision are rejected instead of being rounded.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	return FromDecimal(d)
}

// FromDecimal converts a major-unit decimal to minor units
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if !d.Equal(d.Truncate(Scale)) {
		return 0, fmt.Errorf("%w: %s", ErrSubMinorPrecision, d.String())
	}

	minor := d.Shift(Scale)
	if minor.GreaterThan(maxMinorUnits) || minor.LessThan(minMinorUnits) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d.String())
	}

	return Amount(minor.IntPart()), nil
}

// MustParse is Parse for constants and tests; it panics on invalid input
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromMajor builds an Amount from a whole number of major units
func FromMajor(units int64) Amount {
	return Amount(units * 100)
}

// Decimal returns the amount in major units
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// String formats the amount in major units with exactly two decimals ("10000.00")
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// Minor returns the raw minor-unit value
func (a Amount) Minor() int64 {
	return int64(a)
}

// IsPositive reports whether the amount is strictly greater than zero
func (a Amount) IsPositive() bool {
	return a > 0
}

// Abs returns the absolute value
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// Min returns the smaller of two amounts
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// Sum adds amounts
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// RequirePositive returns ErrNonPositiveAmount unless a > 0
func RequirePositive(a Amount) error {
	if a <= 0 {
		return fmt.Errorf("%w: got %s", ErrNonPositiveAmount, a.String())
	}
	return nil
}

// Package types provides the numeric value types shared by the sale pipeline.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// WithinTolerance reports whether |a-b| <= eps.
func WithinTolerance(a, b, eps Money) bool {
	return a.Sub(b).Abs().LessThanOrEqual(eps.Abs())
}

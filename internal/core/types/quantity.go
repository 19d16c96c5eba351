package types

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4).
//
// Stored as a scaled BIGINT so that two quantities compare exactly;
// weighed goods (0.250 kg) and unit goods (2) share the type.
type Quantity int64

// QuantityScale is the number of Quantity units in one whole unit.
const QuantityScale int64 = 10_000

// UnlimitedQuantity stands for stock that is not tracked.
const UnlimitedQuantity = Quantity(math.MaxInt64)

// ErrQuantityOutOfRange is returned when a quantity does not fit the scaled int64.
var ErrQuantityOutOfRange = errors.New("quantity out of range")

var (
	maxScaled = decimal.NewFromInt(math.MaxInt64)
	minScaled = decimal.NewFromInt(math.MinInt64)
)

// NewQuantity returns a whole-unit quantity.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

// NewQuantityFromInt64Scaled wraps an already scaled value (as stored in the database).
func NewQuantityFromInt64Scaled(v int64) Quantity { return Quantity(v) }

// Int64Scaled returns the raw scaled value.
func (q Quantity) Int64Scaled() int64 { return int64(q) }

// Decimal converts to decimal for money arithmetic.
func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -4)
}

// Times returns price * q.
func (q Quantity) Times(price Money) Money {
	return price.Mul(q.Decimal())
}

func (q Quantity) IsPositive() bool { return q > 0 }

// Add returns q + o, or ErrQuantityOutOfRange when the sum overflows.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	sum := q + o
	if (o > 0 && sum < q) || (o < 0 && sum > q) {
		return 0, ErrQuantityOutOfRange
	}
	return sum, nil
}

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	neg := q < 0
	v := q
	if neg {
		v = -v
	}
	intPart := int64(v) / QuantityScale
	frac := int64(v) % QuantityScale
	if neg {
		return fmt.Sprintf("-%d.%04d", intPart, frac)
	}
	return fmt.Sprintf("%d.%04d", intPart, frac)
}

// MarshalJSON encodes Quantity as a JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted number.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}
	s := string(data)
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = unquoted
	}
	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuantity parses "2", "0.25", "-1.5". Digits beyond the fourth decimal are rejected.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity: %w", err)
	}
	scaled := d.Shift(4)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("parse quantity %q: more than 4 decimal places", s)
	}
	if scaled.GreaterThan(maxScaled) || scaled.LessThan(minScaled) {
		return 0, fmt.Errorf("parse quantity %q: %w", s, ErrQuantityOutOfRange)
	}
	return Quantity(scaled.IntPart()), nil
}

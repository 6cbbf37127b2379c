// Package money implements fixed-point rupee amounts stored in paise.
package money

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units (paise).
type Money int64

var (
	// ErrEmpty is returned when parsing a blank amount.
	ErrEmpty = errors.New("money: empty amount")
	// ErrInvalid is returned when the input is not a decimal number.
	ErrInvalid = errors.New("money: invalid amount")
	// ErrOutOfRange is returned when an amount exceeds MaxAmount in magnitude.
	ErrOutOfRange = errors.New("money: amount out of range")
)

// MaxAmount bounds every checked amount (10^15 rupees). Two bounded amounts
// can be added without overflowing int64.
const MaxAmount Money = 100_000_000_000_000_000

var maxDecimal = decimal.NewFromInt(int64(MaxAmount))

var hundred = decimal.NewFromInt(100)

// Zero is the zero amount.
const Zero Money = 0

// FromRupees builds an amount from whole rupees.
func FromRupees(rupees int64) Money {
	return Money(rupees * 100)
}

// FromDecimal converts a rupee decimal into paise, rounding half away from zero.
// The caller must know d is within range; use Checked otherwise.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(2).Round(0).IntPart())
}

// Checked converts a rupee decimal into paise, rejecting values beyond MaxAmount.
func Checked(d decimal.Decimal) (Money, error) {
	p := d.Shift(2).Round(0)
	if p.Abs().GreaterThan(maxDecimal) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return Money(p.IntPart()), nil
}

// InRange reports whether a rupee decimal converts to a checked amount.
func InRange(d decimal.Decimal) bool {
	return !d.Shift(2).Round(0).Abs().GreaterThan(maxDecimal)
}

// Parse reads a decimal string such as "1180", "1,180.5" or " 12.345 ".
func Parse(s string) (Money, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	return Checked(d)
}

// ParseDecimal reads a plain decimal string, tolerating surrounding blanks and
// thousands separators.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return d, nil
}

// Decimal returns the amount in rupees.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String formats the amount with exactly two decimals.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Mul multiplies the amount by a decimal factor (e.g. a quantity).
func (m Money) Mul(factor decimal.Decimal) Money {
	return FromDecimal(m.Decimal().Mul(factor))
}

// MulChecked is Mul with a range check on the product.
func (m Money) MulChecked(factor decimal.Decimal) (Money, error) {
	return Checked(m.Decimal().Mul(factor))
}

// Percent returns rate percent of base, rounded to the paisa.
func Percent(base Money, rate decimal.Decimal) Money {
	return FromDecimal(base.Decimal().Mul(rate).Div(hundred))
}

// PercentChecked is Percent with a range check on the result.
func PercentChecked(base Money, rate decimal.Decimal) (Money, error) {
	return Checked(base.Decimal().Mul(rate).Div(hundred))
}

// Add sums two amounts, rejecting a result beyond MaxAmount.
func Add(a, b Money) (Money, error) {
	if a > MaxAmount || a < -MaxAmount || b > MaxAmount || b < -MaxAmount {
		return 0, ErrOutOfRange
	}
	sum := a + b
	if sum > MaxAmount || sum < -MaxAmount {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, sum.String())
	}
	return sum, nil
}

// Round rounds to the nearest whole rupee, half away from zero.
func Round(m Money) Money {
	return FromDecimal(m.Decimal().Round(0))
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}

// MarshalJSON renders the amount as a fixed two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a JSON string or number. Blank and null decode to zero.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			*m = 0
			return nil
		}
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

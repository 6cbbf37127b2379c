package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/purchasing/internal/money"
)

// NumericPolicy decides what happens to numeric form fields that do not parse.
type NumericPolicy string

const (
	// PolicyLenient treats blank and non-numeric input as zero.
	PolicyLenient NumericPolicy = "lenient"
	// PolicyStrict treats blank input as zero but rejects non-numeric input with a NumberError.
	PolicyStrict NumericPolicy = "strict"
)

// ParseNumericPolicy reads a policy name; blank selects lenient.
func ParseNumericPolicy(s string) (NumericPolicy, error) {
	switch NumericPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("pricing: unknown numeric policy %q", s)
	}
}

type numbers struct {
	policy NumericPolicy
}

func (n numbers) decimal(field, raw string) (decimal.Decimal, error) {
	d, err := money.ParseDecimal(raw)
	if err == nil {
		if !money.InRange(d) {
			return decimal.Zero, &NumberError{Field: field, Value: raw, Err: money.ErrOutOfRange}
		}
		return d, nil
	}
	if errors.Is(err, money.ErrEmpty) || n.policy != PolicyStrict {
		return decimal.Zero, nil
	}
	return decimal.Zero, &NumberError{Field: field, Value: raw}
}

func (n numbers) money(field, raw string) (money.Money, error) {
	d, err := n.decimal(field, raw)
	if err != nil {
		return 0, err
	}
	return money.FromDecimal(d), nil
}

// outOfRange attaches field to an error from a checked money operation.
func outOfRange(field string, err error) error {
	return &NumberError{Field: field, Err: err}
}

func formatRate(d decimal.Decimal) string {
	return d.String()
}

package pricing

import (
	"fmt"

	"github.com/odyssey-erp/purchasing/internal/money"
)

// OrderSettings are the order-level inputs of the aggregation.
type OrderSettings struct {
	DiscountType      DiscountType
	Discount          string
	DiscountValueType ValueType
	RoundOff          bool
	PaidAmount        string
}

// SettingsOf extracts the aggregation settings from a draft.
func SettingsOf(d Draft) OrderSettings {
	return OrderSettings{
		DiscountType:      d.DiscountType,
		Discount:          d.Discount,
		DiscountValueType: d.DiscountValueType,
		RoundOff:          d.RoundOff,
		PaidAmount:        d.PaidAmount,
	}
}

// TaxSubtotals splits the order tax by category.
type TaxSubtotals struct {
	CGST   money.Money            `json:"cgst"`
	SGST   money.Money            `json:"sgst"`
	IGST   money.Money            `json:"igst"`
	Custom money.Money            `json:"custom"`
	ByName map[string]money.Money `json:"byName,omitempty"`
}

// Totals is the derived summary of an order.
type Totals struct {
	TotalBaseAmount     money.Money  `json:"totalBaseAmount"`
	TotalDiscount       money.Money  `json:"totalDiscount"`
	TaxableAmount       money.Money  `json:"taxableAmount"`
	Taxes               TaxSubtotals `json:"taxes"`
	TotalTax            money.Money  `json:"totalTax"`
	TotalBeforeRoundOff money.Money  `json:"totalBeforeRoundOff"`
	RoundOffAmount      money.Money  `json:"roundOffAmount"`
	TotalInclTax        money.Money  `json:"totalInclTax"`
	PaidAmount          money.Money  `json:"paidAmount"`
	DueAmount           money.Money  `json:"dueAmount"`
}

// Aggregate sums the lines of an order and applies the order-level discount,
// round-off and paid amount.
func (c *Calculator) Aggregate(products []LineItem, s OrderSettings) (Totals, error) {
	var (
		t             Totals
		lineDiscounts money.Money
		sumErr        error
	)
	add := func(dst *money.Money, v money.Money) {
		if sumErr != nil {
			return
		}
		*dst, sumErr = money.Add(*dst, v)
	}
	for i, line := range products {
		path := fmt.Sprintf("products[%d]", i)
		fig, err := c.figures(line, s.DiscountType, path)
		if err != nil {
			return Totals{}, err
		}
		add(&t.TotalBaseAmount, fig.base)
		add(&lineDiscounts, fig.discount)
		for j, tax := range line.Taxes {
			amount := fig.taxes[j]
			switch {
			case tax.Type == TaxGST && tax.SubType == SubTypeCGST:
				add(&t.Taxes.CGST, amount)
			case tax.Type == TaxGST && tax.SubType == SubTypeSGST:
				add(&t.Taxes.SGST, amount)
			case tax.Type == TaxIGST:
				add(&t.Taxes.IGST, amount)
			default:
				add(&t.Taxes.Custom, amount)
				if t.Taxes.ByName == nil {
					t.Taxes.ByName = map[string]money.Money{}
				}
				t.Taxes.ByName[tax.SubType] += amount
			}
			add(&t.TotalTax, amount)
		}
		if sumErr != nil {
			return Totals{}, outOfRange(path, sumErr)
		}
	}

	switch s.DiscountType {
	case DiscountProduct:
		t.TotalDiscount = lineDiscounts
	default:
		value, err := c.num.decimal("discount", s.Discount)
		if err != nil {
			return Totals{}, err
		}
		if t.TotalDiscount, err = discountAmount(t.TotalBaseAmount, value, s.DiscountValueType); err != nil {
			return Totals{}, outOfRange("discount", err)
		}
	}

	t.TaxableAmount = t.TotalBaseAmount - t.TotalDiscount
	total, err := money.Add(t.TaxableAmount, t.TotalTax)
	if err != nil {
		return Totals{}, outOfRange("products", err)
	}
	t.TotalBeforeRoundOff = total
	t.TotalInclTax = t.TotalBeforeRoundOff
	if s.RoundOff {
		t.TotalInclTax = money.Round(t.TotalBeforeRoundOff)
		t.RoundOffAmount = t.TotalInclTax - t.TotalBeforeRoundOff
	}

	paid, err := c.num.money("paidAmount", s.PaidAmount)
	if err != nil {
		return Totals{}, err
	}
	t.PaidAmount = paid
	t.DueAmount = money.Max(0, t.TotalInclTax-paid)
	return t, nil
}

package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/purchasing/internal/money"
)

// Calculator runs the line recalculation and order aggregation under a numeric policy.
type Calculator struct {
	num numbers
}

// NewCalculator builds a Calculator. An empty policy means lenient.
func NewCalculator(policy NumericPolicy) *Calculator {
	if policy == "" {
		policy = PolicyLenient
	}
	return &Calculator{num: numbers{policy: policy}}
}

// Policy returns the numeric policy in effect.
func (c *Calculator) Policy() NumericPolicy {
	return c.num.policy
}

// LineContext carries the order-level facts a line recalculation depends on.
type LineContext struct {
	Classification Classification
	DiscountType   DiscountType
	// Option, when set, replaces the line's GST components (or adds a custom tax).
	Option *TaxOption
}

// lineFigures are the intermediate amounts of one line.
type lineFigures struct {
	base       money.Money
	discount   money.Money
	discounted money.Money
	taxes      []money.Money
	total      money.Money
}

// Recalculate derives the tax amounts and total price of a line. It returns a
// new LineItem and never mutates its input.
func (c *Calculator) Recalculate(line LineItem, lc LineContext) (LineItem, error) {
	return c.recalculate(line, lc, "line")
}

func (c *Calculator) recalculate(line LineItem, lc LineContext, path string) (LineItem, error) {
	out := line.clone()
	if lc.Option != nil {
		out.Taxes = applyOption(out.Taxes, *lc.Option)
	}
	rate, _ := gstRate(out.Taxes)
	if !hasShape(out.Taxes, lc.Classification) {
		out.Taxes = withShape(out.Taxes, lc.Classification, rate)
	}

	fig, err := c.figures(out, lc.DiscountType, path)
	if err != nil {
		return LineItem{}, err
	}
	for i := range out.Taxes {
		out.Taxes[i].Amount = fig.taxes[i].String()
	}
	out.TotalPrice = fig.total.String()
	return out, nil
}

// figures computes base, discount and per-component tax of a line whose tax
// components are already in their final shape.
func (c *Calculator) figures(line LineItem, dt DiscountType, path string) (lineFigures, error) {
	qty, err := c.num.decimal(path+".quantity", line.Quantity)
	if err != nil {
		return lineFigures{}, err
	}
	rate, err := c.num.money(path+".rate", line.Rate)
	if err != nil {
		return lineFigures{}, err
	}
	var fig lineFigures
	fig.base, err = rate.MulChecked(qty)
	if err != nil {
		return lineFigures{}, outOfRange(path+".quantity", err)
	}

	if dt == DiscountProduct {
		value, err := c.num.decimal(path+".inProductDiscount", line.InProductDiscount)
		if err != nil {
			return lineFigures{}, err
		}
		fig.discount, err = discountAmount(fig.base, value, line.InProductDiscountValueType)
		if err != nil {
			return lineFigures{}, outOfRange(path+".inProductDiscount", err)
		}
	}
	fig.discounted = fig.base - fig.discount

	fig.total = fig.discounted
	fig.taxes = make([]money.Money, len(line.Taxes))
	for i, t := range line.Taxes {
		field := fmt.Sprintf("%s.taxes[%d].rate", path, i)
		r, err := c.num.decimal(field, t.Rate)
		if err != nil {
			return lineFigures{}, err
		}
		if fig.taxes[i], err = money.PercentChecked(fig.discounted, r); err != nil {
			return lineFigures{}, outOfRange(field, err)
		}
		if fig.total, err = money.Add(fig.total, fig.taxes[i]); err != nil {
			return lineFigures{}, outOfRange(field, err)
		}
	}
	return fig, nil
}

// discountAmount turns a percent or absolute discount into an amount clamped to [0, base].
func discountAmount(base money.Money, value decimal.Decimal, vt ValueType) (money.Money, error) {
	var (
		d   money.Money
		err error
	)
	if vt == ValuePercent {
		d, err = money.PercentChecked(base, value)
	} else {
		d, err = money.Checked(value)
	}
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, nil
	}
	if d > base {
		return base, nil
	}
	return d, nil
}

// applyOption sets the GST part of taxes from a GST/IGST option, or adds a
// custom option when it is not already present.
func applyOption(taxes []TaxComponent, opt TaxOption) []TaxComponent {
	if opt.Type != TaxCustom {
		return append(componentsOf(opt), customComponents(taxes)...)
	}
	for _, t := range taxes {
		if t.Type == TaxCustom && t.SubType == opt.Components[0].SubType {
			return taxes
		}
	}
	return append(taxes, componentsOf(opt)...)
}

package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/purchasing/internal/money"
)

func TestAggregateTwoLinesWithRoundOff(t *testing.T) {
	calc := NewCalculator(PolicyLenient)
	products := []LineItem{gstLine("1", "500", "5"), gstLine("1", "700", "5")}

	totals, err := calc.Aggregate(products, OrderSettings{DiscountType: DiscountFlat, RoundOff: true})
	require.NoError(t, err)

	require.Equal(t, money.Money(120000), totals.TotalBaseAmount)
	require.Equal(t, money.Money(120000), totals.TaxableAmount)
	require.Equal(t, money.Money(3000), totals.Taxes.CGST)
	require.Equal(t, money.Money(3000), totals.Taxes.SGST)
	require.Equal(t, money.Money(6000), totals.TotalTax)
	require.Equal(t, money.Money(126000), totals.TotalInclTax)
	require.Equal(t, "0.00", totals.RoundOffAmount.String())
	require.Equal(t, "1260.00", totals.DueAmount.String())
}

func TestAggregateRoundOffAdjustment(t *testing.T) {
	calc := NewCalculator(PolicyLenient)
	products := []LineItem{gstLine("1", "99.50", "0"), gstLine("1", "10.20", "0")}

	totals, err := calc.Aggregate(products, OrderSettings{DiscountType: DiscountFlat, RoundOff: true})
	require.NoError(t, err)
	require.Equal(t, "109.70", totals.TotalBeforeRoundOff.String())
	require.Equal(t, "110.00", totals.TotalInclTax.String())
	require.Equal(t, "0.30", totals.RoundOffAmount.String())

	totals, err = calc.Aggregate(products, OrderSettings{DiscountType: DiscountFlat})
	require.NoError(t, err)
	require.Equal(t, "109.70", totals.TotalInclTax.String())
	require.Equal(t, money.Zero, totals.RoundOffAmount)
}

func TestAggregateFlatDiscount(t *testing.T) {
	calc := NewCalculator(PolicyLenient)
	products := []LineItem{gstLine("10", "100", "18")}

	totals, err := calc.Aggregate(products, OrderSettings{
		DiscountType:      DiscountFlat,
		Discount:          "10",
		DiscountValueType: ValuePercent,
		PaidAmount:        "100",
	})
	require.NoError(t, err)
	require.Equal(t, "100.00", totals.TotalDiscount.String())
	require.Equal(t, "900.00", totals.TaxableAmount.String())
	require.Equal(t, "180.00", totals.TotalTax.String())
	require.Equal(t, "1080.00", totals.TotalInclTax.String())
	require.Equal(t, "980.00", totals.DueAmount.String())
}

func TestAggregateProductDiscountIgnoresOrderDiscount(t *testing.T) {
	calc := NewCalculator(PolicyLenient)
	line := gstLine("10", "100", "18")
	line.InProductDiscount = "100"
	line.InProductDiscountValueType = ValueAmount

	totals, err := calc.Aggregate([]LineItem{line}, OrderSettings{
		DiscountType:      DiscountProduct,
		Discount:          "50",
		DiscountValueType: ValuePercent,
	})
	require.NoError(t, err)
	require.Equal(t, "100.00", totals.TotalDiscount.String())
	require.Equal(t, "162.00", totals.TotalTax.String())
	require.Equal(t, "1062.00", totals.TotalInclTax.String())
}

func TestAggregateSplitsTaxCategories(t *testing.T) {
	calc := NewCalculator(PolicyLenient)
	a := gstLine("1", "1000", "18")
	a.Taxes = append(a.Taxes, TaxComponent{Type: TaxCustom, SubType: "Cess", Rate: "1"})
	b := LineItem{ProductName: "Imported", Quantity: "1", Rate: "1000", Taxes: []TaxComponent{{Type: TaxIGST, SubType: SubTypeIGST, Rate: "12"}}}

	totals, err := calc.Aggregate([]LineItem{a, b}, OrderSettings{})
	require.NoError(t, err)
	require.Equal(t, "90.00", totals.Taxes.CGST.String())
	require.Equal(t, "90.00", totals.Taxes.SGST.String())
	require.Equal(t, "120.00", totals.Taxes.IGST.String())
	require.Equal(t, "10.00", totals.Taxes.Custom.String())
	require.Equal(t, money.Money(1000), totals.Taxes.ByName["Cess"])
	require.Equal(t, "310.00", totals.TotalTax.String())
}

func TestAggregateDueNeverNegative(t *testing.T) {
	calc := NewCalculator(PolicyLenient)
	totals, err := calc.Aggregate([]LineItem{gstLine("1", "100", "0")}, OrderSettings{PaidAmount: "250"})
	require.NoError(t, err)
	require.Equal(t, money.Zero, totals.DueAmount)
}

func TestAggregateStrictRejectsBadPaidAmount(t *testing.T) {
	calc := NewCalculator(PolicyStrict)
	_, err := calc.Aggregate([]LineItem{gstLine("1", "100", "0")}, OrderSettings{PaidAmount: "lots"})
	require.ErrorIs(t, err, ErrInvalidNumber)
}

func TestAggregateRejectsTotalsOutOfRange(t *testing.T) {
	calc := NewCalculator(PolicyLenient)
	big := gstLine("1", "900000000000000", "0")
	_, err := calc.Aggregate([]LineItem{big, big}, OrderSettings{})
	require.ErrorIs(t, err, money.ErrOutOfRange)

	var numErr *NumberError
	require.ErrorAs(t, err, &numErr)
	require.Equal(t, "products[1]", numErr.Field)
}

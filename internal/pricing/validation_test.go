package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func validationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()
	require.ErrorIs(t, err, ErrValidation)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	return verrs
}

func TestValidateAcceptsCompleteDraft(t *testing.T) {
	d := baseDraft()
	d.DueDate = "2024-02-29"
	d.Vendor.TaxStatus = TaxStatusRegistered
	d.Vendor.GSTIN = "33ABCDE1234F1Z5"
	require.NoError(t, NewCalculator(PolicyLenient).Validate(d))
}

func TestValidateReportsFieldPaths(t *testing.T) {
	d := baseDraft()
	d.Vendor.ID = ""
	d.Products[0].Quantity = "0"
	d.Products[0].Rate = "-5"
	d.Products[0].ProductName = ""
	d.Discount = "120"
	d.DiscountValueType = ValuePercent
	d.DueDate = "2024-01-01"

	verrs := validationErrors(t, NewCalculator(PolicyLenient).Validate(d))
	require.Equal(t, "is required", verrs["vendor.id"])
	require.Equal(t, "is required", verrs["products[0].productName"])
	require.Equal(t, "must be greater than 0", verrs["products[0].quantity"])
	require.Equal(t, "must not be negative", verrs["products[0].rate"])
	require.Equal(t, "must not exceed 100%", verrs["discount"])
	require.Contains(t, verrs, "dueDate")
}

func TestValidateRequiresProducts(t *testing.T) {
	d := baseDraft()
	d.Products = nil
	verrs := validationErrors(t, NewCalculator(PolicyLenient).Validate(d))
	require.Contains(t, verrs, "products")
}

func TestValidateGSTIN(t *testing.T) {
	require.True(t, ValidGSTIN("29AAACB1234C1Z9"))
	require.True(t, ValidGSTIN(" 33abcde1234f1z5 "))
	require.False(t, ValidGSTIN("99ABCDE1234F1Z5"))
	require.False(t, ValidGSTIN("33ABCDE1234F1Y5"))
	require.False(t, ValidGSTIN("33ABCDE"))

	d := baseDraft()
	d.Vendor.TaxStatus = TaxStatusRegistered
	verrs := validationErrors(t, NewCalculator(PolicyLenient).Validate(d))
	require.Contains(t, verrs, "vendor.gstin")

	d.Vendor.GSTIN = "99ABCDE1234F1Z5"
	verrs = validationErrors(t, NewCalculator(PolicyLenient).Validate(d))
	require.Equal(t, "is not a valid GSTIN", verrs["vendor.gstin"])
}

func TestValidateStrictPolicyFlagsNonNumeric(t *testing.T) {
	d := baseDraft()
	d.PaidAmount = "abc"

	require.NoError(t, NewCalculator(PolicyLenient).Validate(d))
	verrs := validationErrors(t, NewCalculator(PolicyStrict).Validate(d))
	require.Equal(t, "must be a number", verrs["paidAmount"])
}

func TestValidateEMI(t *testing.T) {
	d := baseDraft()
	d.EMIDetails = &EMIDetails{Frequency: "Weekly", InstallmentCount: 0, InterestRate: "-1"}
	verrs := validationErrors(t, NewCalculator(PolicyLenient).Validate(d))
	require.Contains(t, verrs, "emiDetails.frequency")
	require.Contains(t, verrs, "emiDetails.installmentCount")
	require.Equal(t, "must not be negative", verrs["emiDetails.interestRate"])
}

func TestValidateScheduleMatchesRepricedTotals(t *testing.T) {
	e := newEditor(t, baseDraft())
	res, err := e.Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "12", Count: 3})
	require.NoError(t, err)
	require.NoError(t, ValidateSchedule(res.Draft, res.Totals))
	require.NoError(t, ValidateSchedule(baseDraft(), res.Totals))

	forged := res.Draft.Clone()
	forged.EMIDetails.TotalWithInterest = "5000.00"
	forged.EMIDetails.Installments = forged.EMIDetails.Installments[:2]
	forged.EMIDetails.Installments[0].Amount = "1.00"
	forged.EMIDetails.Installments[1].Amount = "1.00"
	forged.EMIDetails.InstallmentCount = 2
	verrs := validationErrors(t, ValidateSchedule(forged, res.Totals))
	require.Equal(t, "must add up to totalWithInterest 5000.00", verrs["emiDetails.installments"])

	stale := res.Draft.Clone()
	stale.EMIDetails.PrincipalAmount = "900.00"
	verrs = validationErrors(t, ValidateSchedule(stale, res.Totals))
	require.Equal(t, "must equal the due amount 1180.00", verrs["emiDetails.principalAmount"])

	short := res.Draft.Clone()
	short.EMIDetails.Installments = short.EMIDetails.Installments[:1]
	verrs = validationErrors(t, ValidateSchedule(short, res.Totals))
	require.Equal(t, "must match installmentCount", verrs["emiDetails.installments"])

	garbled := res.Draft.Clone()
	garbled.EMIDetails.Installments[1].Amount = "lots"
	verrs = validationErrors(t, ValidateSchedule(garbled, res.Totals))
	require.Equal(t, "must be an amount", verrs["emiDetails.installments[1].amount"])
}

func TestValidatePayment(t *testing.T) {
	require.NoError(t, ValidatePayment(Payment{Date: "2024-03-01", Method: "NEFT"}))

	err := ValidatePayment(Payment{Date: "01/03/2024"})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Equal(t, "must be a date (YYYY-MM-DD)", verrs["paymentDate"])
	require.Equal(t, "is required", verrs["paymentMethod"])
}

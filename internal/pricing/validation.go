package pricing

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/purchasing/internal/money"
	"github.com/odyssey-erp/purchasing/internal/refdata"
)

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
			return ValidGSTIN(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ValidGSTIN checks the 15 character GSTIN layout and its state code prefix.
func ValidGSTIN(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !gstinPattern.MatchString(s) {
		return false
	}
	_, ok := refdata.StateByCode(s[:2])
	return ok
}

// Validate checks a draft before submission. Field paths in the returned
// ValidationErrors use the wire names, e.g. "products[0].quantity".
func (c *Calculator) Validate(d Draft) error {
	errs := ValidationErrors{}
	if err := structValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs[fieldPath(fe.Namespace())] = tagMessage(fe)
		}
	}

	check := func(field, raw string, rule func(decimal.Decimal) string) {
		v, err := c.num.decimal(field, raw)
		if err != nil {
			errs[field] = "must be a number"
			return
		}
		if msg := rule(v); msg != "" {
			errs[field] = msg
		}
	}
	nonNegative := func(v decimal.Decimal) string {
		if v.IsNegative() {
			return "must not be negative"
		}
		return ""
	}
	hundred := decimal.NewFromInt(100)
	discount := func(vt ValueType) func(decimal.Decimal) string {
		return func(v decimal.Decimal) string {
			if v.IsNegative() {
				return "must not be negative"
			}
			if vt == ValuePercent && v.GreaterThan(hundred) {
				return "must not exceed 100%"
			}
			return ""
		}
	}

	for i, line := range d.Products {
		path := fmt.Sprintf("products[%d]", i)
		check(path+".quantity", line.Quantity, func(v decimal.Decimal) string {
			if !v.IsPositive() {
				return "must be greater than 0"
			}
			return ""
		})
		check(path+".rate", line.Rate, nonNegative)
		if d.DiscountType == DiscountProduct {
			check(path+".inProductDiscount", line.InProductDiscount, discount(line.InProductDiscountValueType))
		}
		for j, t := range line.Taxes {
			check(fmt.Sprintf("%s.taxes[%d].rate", path, j), t.Rate, nonNegative)
		}
	}
	if d.DiscountType != DiscountProduct {
		check("discount", d.Discount, discount(d.DiscountValueType))
	}
	check("paidAmount", d.PaidAmount, nonNegative)

	if d.Vendor.TaxStatus == TaxStatusRegistered && strings.TrimSpace(d.Vendor.GSTIN) == "" {
		errs["vendor.gstin"] = "is required for a GST registered vendor"
	}
	if d.OrderDate != "" && d.DueDate != "" {
		od, err1 := time.Parse(DateLayout, d.OrderDate)
		dd, err2 := time.Parse(DateLayout, d.DueDate)
		if err1 == nil && err2 == nil && dd.Before(od) {
			errs["dueDate"] = "must not be before the order date"
		}
	}
	if emi := d.EMIDetails; emi != nil {
		if emi.InstallmentCount < 1 || emi.InstallmentCount > MaxInstallments {
			errs["emiDetails.installmentCount"] = fmt.Sprintf("must be between 1 and %d", MaxInstallments)
		}
		check("emiDetails.interestRate", emi.InterestRate, nonNegative)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateSchedule checks that a draft's installment schedule still belongs to
// its repriced totals: the principal equals the due amount and the
// installments add up to the total with interest. A draft without installments
// passes.
func ValidateSchedule(d Draft, totals Totals) error {
	emi := d.EMIDetails
	if emi == nil || len(emi.Installments) == 0 {
		return nil
	}
	errs := ValidationErrors{}
	if emi.InstallmentCount != 0 && emi.InstallmentCount != len(emi.Installments) {
		errs["emiDetails.installments"] = "must match installmentCount"
	}
	principal, err := money.Parse(emi.PrincipalAmount)
	if err != nil || principal != totals.DueAmount {
		errs["emiDetails.principalAmount"] = "must equal the due amount " + totals.DueAmount.String()
	}
	var sum money.Money
	for i, inst := range emi.Installments {
		amount, err := money.Parse(inst.Amount)
		if err != nil {
			errs[fmt.Sprintf("emiDetails.installments[%d].amount", i)] = "must be an amount"
			continue
		}
		if sum, err = money.Add(sum, amount); err != nil {
			errs[fmt.Sprintf("emiDetails.installments[%d].amount", i)] = "is too large"
		}
	}
	total, err := money.Parse(emi.TotalWithInterest)
	switch {
	case err != nil:
		errs["emiDetails.totalWithInterest"] = "must be an amount"
	case total < principal:
		errs["emiDetails.totalWithInterest"] = "must not be less than the principal"
	case total != sum:
		if _, ok := errs["emiDetails.installments"]; !ok {
			errs["emiDetails.installments"] = "must add up to totalWithInterest " + total.String()
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidatePayment checks an installment payment before it is recorded.
func ValidatePayment(p Payment) error {
	errs := ValidationErrors{}
	if err := structValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs[fieldPath(fe.Namespace())] = tagMessage(fe)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entry"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gstin":
		return "is not a valid GSTIN"
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	default:
		return "is invalid"
	}
}

package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/purchasing/internal/money"
)

// PeriodsPerYear returns 12/4/2/1 for Monthly/Quarterly/Half-Yearly/Yearly.
func PeriodsPerYear(f Frequency) (int, error) {
	switch f {
	case Monthly:
		return 12, nil
	case Quarterly:
		return 4, nil
	case HalfYearly:
		return 2, nil
	case Yearly:
		return 1, nil
	default:
		return 0, ErrInvalidFrequency
	}
}

// PlanInput describes an EMI plan request.
type PlanInput struct {
	DueAmount    money.Money
	InterestRate decimal.Decimal
	Frequency    Frequency
	Count        int
	StartDate    time.Time
}

// Schedule is a computed installment plan.
type Schedule struct {
	Principal         money.Money   `json:"principal"`
	Interest          money.Money   `json:"interest"`
	TotalWithInterest money.Money   `json:"totalWithInterest"`
	Installments      []Installment `json:"installments"`
}

// MaxInstallments caps a schedule at fifty years of monthly payments.
const MaxInstallments = 600

// Plan computes a simple-interest installment schedule. Every installment but
// the last is the per-installment amount floored to the paisa; the last one
// absorbs the remainder so the installments sum to TotalWithInterest exactly.
func Plan(in PlanInput) (Schedule, error) {
	if in.Count < 1 || in.Count > MaxInstallments {
		return Schedule{}, ErrInvalidInstallmentCount
	}
	if in.InterestRate.IsNegative() {
		return Schedule{}, ErrNegativeInterest
	}
	perYear, err := PeriodsPerYear(in.Frequency)
	if err != nil {
		return Schedule{}, err
	}
	principal := money.Max(0, in.DueAmount)

	interest, err := money.Checked(principal.Decimal().
		Mul(in.InterestRate).
		Mul(decimal.NewFromInt(int64(in.Count))).
		Div(decimal.NewFromInt(int64(100 * perYear))))
	if err != nil {
		return Schedule{}, outOfRange("emiDetails.interestRate", err)
	}
	total, err := money.Add(principal, interest)
	if err != nil {
		return Schedule{}, outOfRange("emiDetails.interestRate", err)
	}

	count := money.Money(in.Count)
	base := total / count
	last := total - base*(count-1)
	step := 12 / perYear

	installments := make([]Installment, in.Count)
	for i := range installments {
		amount := base
		if i == in.Count-1 {
			amount = last
		}
		installments[i] = Installment{
			Amount:  amount.String(),
			DueDate: addMonths(in.StartDate, step*(i+1)).Format(DateLayout),
			Status:  InstallmentUnpaid,
		}
	}
	return Schedule{Principal: principal, Interest: interest, TotalWithInterest: total, Installments: installments}, nil
}

// addMonths steps t forward by calendar months, clamping the day to the end of
// the target month (Jan 31 + 1 month = Feb 28/29).
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// Payment is recorded against an installment once the backend confirms it.
type Payment struct {
	Date      string `json:"paymentDate" validate:"required,datetime=2006-01-02"`
	Method    string `json:"paymentMethod" validate:"required"`
	Reference string `json:"paymentReference"`
	Note      string `json:"paymentNote"`
}

// MarkPaid returns a copy of installments with the one at index moved to Paid.
// The transition is one-way; paying twice returns ErrAlreadyPaid.
func MarkPaid(installments []Installment, index int, p Payment) ([]Installment, error) {
	if index < 0 || index >= len(installments) {
		return nil, ErrInstallmentNotFound
	}
	if installments[index].Status == InstallmentPaid {
		return nil, ErrAlreadyPaid
	}
	out := append([]Installment(nil), installments...)
	out[index].Status = InstallmentPaid
	out[index].PaymentDate = p.Date
	out[index].PaymentMethod = p.Method
	out[index].PaymentReference = p.Reference
	out[index].PaymentNote = p.Note
	return out, nil
}

func hasPaid(installments []Installment) bool {
	for _, inst := range installments {
		if inst.Status == InstallmentPaid {
			return true
		}
	}
	return false
}

package pricing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/odyssey-erp/purchasing/internal/money"
)

// Action is a single edit applied to a draft by Editor.Dispatch.
type Action interface {
	apply(e *Editor, d *Draft) ([]Warning, error)
}

// Result is the state after an action: the draft, its derived totals and any warnings.
type Result struct {
	Draft    Draft     `json:"draft"`
	Totals   Totals    `json:"totals"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Editor owns one draft and re-derives every line and the totals after each action.
type Editor struct {
	calc   *Calculator
	custom []CustomTax
	draft  Draft
	totals Totals
}

// NewEditor wraps draft. custom lists the non-GST taxes the backend offers.
// The draft is repriced immediately so the editor starts consistent.
func NewEditor(calc *Calculator, draft Draft, custom []CustomTax) (*Editor, error) {
	e := &Editor{calc: calc, custom: append([]CustomTax(nil), custom...)}
	d := draft.Clone()
	totals, _, err := e.derive(&d)
	if err != nil {
		return nil, err
	}
	e.draft = d
	e.totals = totals
	return e, nil
}

// Draft returns a copy of the current draft.
func (e *Editor) Draft() Draft {
	return e.draft.Clone()
}

// Totals returns the totals of the current draft.
func (e *Editor) Totals() Totals {
	return e.totals
}

// Options returns the tax options for the current pair of states.
func (e *Editor) Options() []TaxOption {
	return Resolve(e.draft.Address.SourceState, e.draft.Address.DeliveryState, e.custom)
}

// Classification returns the intra/inter decision for the current states.
func (e *Editor) Classification() Classification {
	return Classify(e.draft.Address.SourceState, e.draft.Address.DeliveryState)
}

// Dispatch applies a to a copy of the draft and re-derives it. On error the
// editor keeps its previous, valid draft.
func (e *Editor) Dispatch(a Action) (Result, error) {
	d := e.draft.Clone()
	warnings, err := a.apply(e, &d)
	if err != nil {
		return Result{}, err
	}
	totals, more, err := e.derive(&d)
	if err != nil {
		return Result{}, err
	}
	e.draft = d
	e.totals = totals
	return Result{Draft: e.Draft(), Totals: totals, Warnings: append(warnings, more...)}, nil
}

// derive recalculates every line, aggregates the totals and writes them back
// into the draft's summary fields.
func (e *Editor) derive(d *Draft) (Totals, []Warning, error) {
	class := Classify(d.Address.SourceState, d.Address.DeliveryState)
	for i := range d.Products {
		line, err := e.calc.recalculate(d.Products[i], LineContext{Classification: class, DiscountType: d.DiscountType}, fmt.Sprintf("products[%d]", i))
		if err != nil {
			return Totals{}, nil, err
		}
		d.Products[i] = line
	}
	totals, err := e.calc.Aggregate(d.Products, SettingsOf(*d))
	if err != nil {
		return Totals{}, nil, err
	}
	d.Subtotal = totals.TaxableAmount.String()
	d.TaxAmount = totals.TotalTax.String()
	d.RoundOffAmount = totals.RoundOffAmount.String()
	d.GrandAmount = totals.TotalInclTax.String()
	d.DueAmount = totals.DueAmount.String()

	var warnings []Warning
	if d.EMIDetails != nil && len(d.EMIDetails.Installments) > 0 && d.EMIDetails.PrincipalAmount != totals.DueAmount.String() {
		warnings = append(warnings, Warning{Line: -1, Message: "installment schedule was planned for a different due amount; reconfigure EMI"})
	}
	return totals, warnings, nil
}

// Reprice re-derives every line and total of a draft. The server uses it so
// client-provided totals are never trusted.
func (c *Calculator) Reprice(d Draft) (Draft, Totals, error) {
	e := &Editor{calc: c}
	out := d.Clone()
	totals, _, err := e.derive(&out)
	if err != nil {
		return Draft{}, Totals{}, err
	}
	return out, totals, nil
}

func (d *Draft) line(index int) (*LineItem, error) {
	if index < 0 || index >= len(d.Products) {
		return nil, ErrLineNotFound
	}
	return &d.Products[index], nil
}

// AddLine appends a product row. A row without taxes gets a zero-rate entry.
type AddLine struct {
	Line LineItem `json:"line"`
}

func (a AddLine) apply(e *Editor, d *Draft) ([]Warning, error) {
	line := a.Line.clone()
	if d.DiscountType != DiscountProduct {
		line.InProductDiscount = "0"
	}
	d.Products = append(d.Products, line)
	return nil, nil
}

// RemoveLine deletes the product row at Index.
type RemoveLine struct {
	Index int `json:"index"`
}

func (a RemoveLine) apply(e *Editor, d *Draft) ([]Warning, error) {
	if _, err := d.line(a.Index); err != nil {
		return nil, err
	}
	d.Products = append(d.Products[:a.Index], d.Products[a.Index+1:]...)
	return nil, nil
}

// UpdateLine changes the editable fields of a product row; nil fields are left alone.
type UpdateLine struct {
	Index                      int        `json:"index"`
	ProductID                  *string    `json:"productId,omitempty"`
	ProductName                *string    `json:"productName,omitempty"`
	HSNOrSACCode               *string    `json:"hsnOrSacCode,omitempty"`
	Quantity                   *string    `json:"quantity,omitempty"`
	Rate                       *string    `json:"rate,omitempty"`
	Unit                       *string    `json:"unit,omitempty"`
	InProductDiscount          *string    `json:"inProductDiscount,omitempty"`
	InProductDiscountValueType *ValueType `json:"inProductDiscountValueType,omitempty"`
}

func (a UpdateLine) apply(e *Editor, d *Draft) ([]Warning, error) {
	line, err := d.line(a.Index)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&line.ProductID, a.ProductID)
	set(&line.ProductName, a.ProductName)
	set(&line.HSNOrSACCode, a.HSNOrSACCode)
	set(&line.Quantity, a.Quantity)
	set(&line.Rate, a.Rate)
	set(&line.Unit, a.Unit)
	set(&line.InProductDiscount, a.InProductDiscount)
	if a.InProductDiscountValueType != nil {
		line.InProductDiscountValueType = *a.InProductDiscountValueType
	}
	return nil, nil
}

// SelectTax applies a tax option (by key) to a product row. GST/IGST options
// replace the line's GST; custom options are added alongside it.
type SelectTax struct {
	Index     int    `json:"index"`
	OptionKey string `json:"optionKey"`
}

func (a SelectTax) apply(e *Editor, d *Draft) ([]Warning, error) {
	line, err := d.line(a.Index)
	if err != nil {
		return nil, err
	}
	opt, ok := FindOption(Resolve(d.Address.SourceState, d.Address.DeliveryState, e.custom), a.OptionKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaxOption, a.OptionKey)
	}
	line.Taxes = applyOption(line.Taxes, opt)
	return nil, nil
}

// RemoveTax drops a custom tax component from a product row.
type RemoveTax struct {
	Index   int    `json:"index"`
	SubType string `json:"subType"`
}

func (a RemoveTax) apply(e *Editor, d *Draft) ([]Warning, error) {
	line, err := d.line(a.Index)
	if err != nil {
		return nil, err
	}
	kept := line.Taxes[:0]
	for _, t := range line.Taxes {
		if t.Type == TaxCustom && t.SubType == a.SubType {
			continue
		}
		kept = append(kept, t)
	}
	line.Taxes = kept
	return nil, nil
}

// SetVendor replaces the vendor; its source state drives the GST shape.
type SetVendor struct {
	Vendor Vendor `json:"vendor"`
}

func (a SetVendor) apply(e *Editor, d *Draft) ([]Warning, error) {
	d.Vendor = a.Vendor
	d.Address.SourceState = a.Vendor.SourceState
	return reshapeAll(e, d), nil
}

// SetDeliveryState changes where the goods are delivered.
type SetDeliveryState struct {
	State    string `json:"state"`
	Location string `json:"location,omitempty"`
}

func (a SetDeliveryState) apply(e *Editor, d *Draft) ([]Warning, error) {
	d.Address.DeliveryState = a.State
	if a.Location != "" {
		d.Address.DeliveryLocation = a.Location
	}
	return reshapeAll(e, d), nil
}

func reshapeAll(e *Editor, d *Draft) []Warning {
	class := Classify(d.Address.SourceState, d.Address.DeliveryState)
	options := Resolve(d.Address.SourceState, d.Address.DeliveryState, e.custom)
	var warnings []Warning
	for i := range d.Products {
		line, w := Reshape(d.Products[i], class, options)
		d.Products[i] = line
		if w != nil {
			w.Line = i
			warnings = append(warnings, *w)
		}
	}
	return warnings
}

// SetDiscountType switches between flat and per-product discounts. Switching
// resets every per-line discount and the order discount to zero.
type SetDiscountType struct {
	Type DiscountType `json:"type"`
}

func (a SetDiscountType) apply(e *Editor, d *Draft) ([]Warning, error) {
	if a.Type != DiscountFlat && a.Type != DiscountProduct {
		return nil, fmt.Errorf("%w: unknown discount type %q", ErrInvalidAction, a.Type)
	}
	if d.DiscountType == a.Type {
		return nil, nil
	}
	d.DiscountType = a.Type
	d.Discount = "0"
	for i := range d.Products {
		d.Products[i].InProductDiscount = "0"
	}
	return nil, nil
}

// SetOrderDiscount sets the order-level discount used in flat mode.
type SetOrderDiscount struct {
	Value     string    `json:"value"`
	ValueType ValueType `json:"valueType"`
}

func (a SetOrderDiscount) apply(e *Editor, d *Draft) ([]Warning, error) {
	d.Discount = a.Value
	if a.ValueType != "" {
		d.DiscountValueType = a.ValueType
	}
	return nil, nil
}

// SetRoundOff toggles rounding of the grand total to whole rupees.
type SetRoundOff struct {
	Enabled bool `json:"enabled"`
}

func (a SetRoundOff) apply(e *Editor, d *Draft) ([]Warning, error) {
	d.RoundOff = a.Enabled
	return nil, nil
}

// SetPaidAmount records the advance paid. When an installment schedule exists
// it is re-planned against the new due amount, which requires Confirm.
type SetPaidAmount struct {
	Amount  string `json:"amount"`
	Confirm bool   `json:"confirm"`
}

func (a SetPaidAmount) apply(e *Editor, d *Draft) ([]Warning, error) {
	emi := d.EMIDetails
	if err := guardSchedule(emi, a.Confirm); err != nil {
		return nil, err
	}
	d.PaidAmount = a.Amount
	if emi == nil {
		return nil, nil
	}
	return nil, replan(e, d, emi.Frequency, emi.InterestRate, emi.InstallmentCount, emi.StartDate)
}

// ConfigureEMI (re)plans installments for the current due amount. Replacing an
// existing schedule requires Confirm.
type ConfigureEMI struct {
	Frequency    Frequency `json:"frequency"`
	InterestRate string    `json:"interestRate"`
	Count        int       `json:"installmentCount"`
	StartDate    string    `json:"startDate"`
	Confirm      bool      `json:"confirm"`
}

func (a ConfigureEMI) apply(e *Editor, d *Draft) ([]Warning, error) {
	if err := guardSchedule(d.EMIDetails, a.Confirm); err != nil {
		return nil, err
	}
	return nil, replan(e, d, a.Frequency, a.InterestRate, a.Count, a.StartDate)
}

// ClearEMI drops the installment plan. Dropping a non-empty schedule requires Confirm.
type ClearEMI struct {
	Confirm bool `json:"confirm"`
}

func (a ClearEMI) apply(e *Editor, d *Draft) ([]Warning, error) {
	if err := guardSchedule(d.EMIDetails, a.Confirm); err != nil {
		return nil, err
	}
	d.EMIDetails = nil
	return nil, nil
}

// guardSchedule allows replacing or dropping a schedule only when nothing has
// been paid against it and the caller confirmed.
func guardSchedule(emi *EMIDetails, confirm bool) error {
	if emi == nil || len(emi.Installments) == 0 {
		return nil
	}
	if hasPaid(emi.Installments) {
		return fmt.Errorf("%w: schedule has paid installments", ErrAlreadyPaid)
	}
	if !confirm {
		return ErrConfirmationRequired
	}
	return nil
}

func replan(e *Editor, d *Draft, freq Frequency, rate string, count int, start string) error {
	scratch := d.Clone()
	scratch.EMIDetails = nil
	totals, _, err := e.derive(&scratch)
	if err != nil {
		return err
	}
	interest, err := e.calc.num.decimal("emiDetails.interestRate", rate)
	if err != nil {
		return err
	}
	startDate := time.Time{}
	if start != "" {
		startDate, err = time.Parse(DateLayout, start)
		if err != nil {
			return fmt.Errorf("%w: emi start date %q is not YYYY-MM-DD", ErrInvalidAction, start)
		}
	} else if d.OrderDate != "" {
		startDate, err = time.Parse(DateLayout, d.OrderDate)
		if err != nil {
			return fmt.Errorf("%w: order date %q is not YYYY-MM-DD", ErrInvalidAction, d.OrderDate)
		}
		start = d.OrderDate
	}
	sched, err := Plan(PlanInput{
		DueAmount:    totals.DueAmount,
		InterestRate: interest,
		Frequency:    freq,
		Count:        count,
		StartDate:    startDate,
	})
	if err != nil {
		return err
	}
	d.EMIDetails = &EMIDetails{
		Frequency:         freq,
		InterestRate:      rate,
		InstallmentCount:  count,
		StartDate:         start,
		PrincipalAmount:   sched.Principal.String(),
		TotalWithInterest: sched.TotalWithInterest.String(),
		AdvancePayment:    totals.PaidAmount.String(),
		Installments:      sched.Installments,
	}
	return nil
}

// MarkInstallmentPaid echoes a backend-confirmed payment into the schedule.
type MarkInstallmentPaid struct {
	Index   int     `json:"index"`
	Payment Payment `json:"payment"`
}

func (a MarkInstallmentPaid) apply(e *Editor, d *Draft) ([]Warning, error) {
	if d.EMIDetails == nil {
		return nil, ErrNoSchedule
	}
	updated, err := MarkPaid(d.EMIDetails.Installments, a.Index, a.Payment)
	if err != nil {
		return nil, err
	}
	d.EMIDetails.Installments = updated
	return nil, nil
}

// ActionEnvelope is the wire form of an action: {"type": "updateLine", "payload": {...}}.
type ActionEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode converts the envelope into a typed Action.
func (env ActionEnvelope) Decode() (Action, error) {
	var (
		a   Action
		err error
	)
	switch env.Type {
	case "addLine":
		a, err = decodeAs[AddLine](env.Payload)
	case "removeLine":
		a, err = decodeAs[RemoveLine](env.Payload)
	case "updateLine":
		a, err = decodeAs[UpdateLine](env.Payload)
	case "selectItem":
		a, err = decodeAs[SelectItem](env.Payload)
	case "selectTax":
		a, err = decodeAs[SelectTax](env.Payload)
	case "removeTax":
		a, err = decodeAs[RemoveTax](env.Payload)
	case "setVendor":
		a, err = decodeAs[SetVendor](env.Payload)
	case "setDeliveryState":
		a, err = decodeAs[SetDeliveryState](env.Payload)
	case "setDiscountType":
		a, err = decodeAs[SetDiscountType](env.Payload)
	case "setOrderDiscount":
		a, err = decodeAs[SetOrderDiscount](env.Payload)
	case "setRoundOff":
		a, err = decodeAs[SetRoundOff](env.Payload)
	case "setPaidAmount":
		a, err = decodeAs[SetPaidAmount](env.Payload)
	case "configureEmi":
		a, err = decodeAs[ConfigureEMI](env.Payload)
	case "clearEmi":
		a, err = decodeAs[ClearEMI](env.Payload)
	case "markInstallmentPaid":
		a, err = decodeAs[MarkInstallmentPaid](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidAction, env.Type, err)
	}
	return a, nil
}

func decodeAs[T Action](raw json.RawMessage) (Action, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Summary returns the draft's money summary fields parsed back into Money.
// It is a convenience for callers that only hold a repriced draft.
func Summary(d Draft) (grand, due money.Money) {
	grand, _ = money.Parse(d.GrandAmount)
	due, _ = money.Parse(d.DueAmount)
	return grand, due
}

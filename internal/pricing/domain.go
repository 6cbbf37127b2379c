// Package pricing computes purchase-order line taxes, order totals and EMI
// schedules. Everything in this package is pure: no I/O, no clocks, no globals
// beyond the bundled reference data.
package pricing

import "time"

// TaxStatus describes a vendor's GST registration.
type TaxStatus string

const (
	TaxStatusRegistered   TaxStatus = "gstRegistered"
	TaxStatusUnregistered TaxStatus = "unregistered"
)

// DiscountType selects where discounts are applied.
type DiscountType string

const (
	// DiscountFlat applies a single order-level discount; per-line discounts are inert.
	DiscountFlat DiscountType = "Flat"
	// DiscountProduct sums per-line discounts; the order-level discount is inert.
	DiscountProduct DiscountType = "Product"
)

// ValueType tells whether a discount value is a percentage or an absolute amount.
type ValueType string

const (
	ValuePercent ValueType = "Percent"
	ValueAmount  ValueType = "Amount"
)

// TaxType classifies a tax component.
type TaxType string

const (
	TaxGST    TaxType = "GST"
	TaxIGST   TaxType = "IGST"
	TaxCustom TaxType = "custom"
)

// GST component sub types.
const (
	SubTypeCGST = "CGST"
	SubTypeSGST = "SGST"
	SubTypeIGST = "IGST"
)

// Classification is the intra/inter-state decision for a transaction.
type Classification string

const (
	Intra Classification = "intra"
	Inter Classification = "inter"
)

// Frequency is the EMI payment period.
type Frequency string

const (
	Monthly    Frequency = "Monthly"
	Quarterly  Frequency = "Quarterly"
	HalfYearly Frequency = "Half-Yearly"
	Yearly     Frequency = "Yearly"
)

// InstallmentStatus tracks the one-way Unpaid -> Paid transition.
type InstallmentStatus string

const (
	InstallmentUnpaid InstallmentStatus = "Unpaid"
	InstallmentPaid   InstallmentStatus = "Paid"
)

// DateLayout is the wire format of every date in a draft.
const DateLayout = "2006-01-02"

// Vendor is the supplier the order is raised against.
type Vendor struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name"`
	GSTIN       string    `json:"gstin" validate:"omitempty,gstin"`
	TaxStatus   TaxStatus `json:"taxStatus" validate:"omitempty,oneof=gstRegistered unregistered"`
	SourceState string    `json:"sourceState"`
}

// Address carries billing/shipping details and the two states that drive GST.
type Address struct {
	Billing          string `json:"billing"`
	Shipping         string `json:"shipping"`
	SourceState      string `json:"sourceState"`
	DeliveryState    string `json:"deliveryState"`
	DeliveryLocation string `json:"deliveryLocation"`
}

// TaxComponent is one tax applied to a line. Rate and Amount are decimal strings.
type TaxComponent struct {
	Type    TaxType `json:"type" validate:"required,oneof=GST IGST custom"`
	SubType string  `json:"subType" validate:"required"`
	Rate    string  `json:"rate"`
	Amount  string  `json:"amount"`
}

// LineItem is one product row of the order. TotalPrice is always derived.
type LineItem struct {
	ProductID                  string         `json:"productId,omitempty"`
	ProductName                string         `json:"productName" validate:"required"`
	HSNOrSACCode               string         `json:"hsnOrSacCode"`
	Quantity                   string         `json:"quantity"`
	Rate                       string         `json:"rate"`
	Unit                       string         `json:"unit"`
	InProductDiscount          string         `json:"inProductDiscount"`
	InProductDiscountValueType ValueType      `json:"inProductDiscountValueType" validate:"omitempty,oneof=Percent Amount"`
	Taxes                      []TaxComponent `json:"taxes" validate:"dive"`
	TotalPrice                 string         `json:"totalPrice"`
}

// Installment is one EMI payment.
type Installment struct {
	Amount           string            `json:"amount"`
	DueDate          string            `json:"dueDate"`
	Status           InstallmentStatus `json:"status"`
	PaymentDate      string            `json:"paymentDate,omitempty"`
	PaymentMethod    string            `json:"paymentMethod,omitempty"`
	PaymentReference string            `json:"paymentReference,omitempty"`
	PaymentNote      string            `json:"paymentNote,omitempty"`
}

// EMIDetails holds the installment plan settings and the generated schedule.
type EMIDetails struct {
	Frequency         Frequency     `json:"frequency" validate:"required,oneof=Monthly Quarterly Half-Yearly Yearly"`
	InterestRate      string        `json:"interestRate"`
	InstallmentCount  int           `json:"installmentCount"`
	StartDate         string        `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	PrincipalAmount   string        `json:"principalAmount"`
	TotalWithInterest string        `json:"totalWithInterest"`
	AdvancePayment    string        `json:"advancePayment"`
	Installments      []Installment `json:"installments"`
}

// Attachment references a file uploaded with the order.
type Attachment struct {
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	UploadedBy string    `json:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt"`
	IsNew      bool      `json:"isNew"`
}

// Draft is the purchase order being created or edited.
type Draft struct {
	ID                string       `json:"id,omitempty"`
	OrderNumber       string       `json:"orderNumber,omitempty"`
	OrderDate         string       `json:"orderDate" validate:"omitempty,datetime=2006-01-02"`
	DueDate           string       `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Vendor            Vendor       `json:"vendor"`
	Address           Address      `json:"address"`
	Products          []LineItem   `json:"products" validate:"required,min=1,dive"`
	Discount          string       `json:"discount"`
	DiscountType      DiscountType `json:"discountType" validate:"omitempty,oneof=Flat Product"`
	DiscountValueType ValueType    `json:"discountValueType" validate:"omitempty,oneof=Percent Amount"`
	RoundOff          bool         `json:"roundOff"`
	RoundOffAmount    string       `json:"roundOffAmount"`
	Subtotal          string       `json:"subtotal"`
	TaxAmount         string       `json:"taxAmount"`
	GrandAmount       string       `json:"grandAmount"`
	PaidAmount        string       `json:"paidAmount"`
	DueAmount         string       `json:"dueAmount"`
	EMIDetails        *EMIDetails  `json:"emiDetails,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	Notes             string       `json:"notes,omitempty"`
}

// Clone returns a deep copy so reducers never alias the caller's slices.
func (d Draft) Clone() Draft {
	out := d
	out.Products = make([]LineItem, len(d.Products))
	for i, line := range d.Products {
		out.Products[i] = line.clone()
	}
	if d.EMIDetails != nil {
		emi := *d.EMIDetails
		emi.Installments = append([]Installment(nil), d.EMIDetails.Installments...)
		out.EMIDetails = &emi
	}
	out.Attachments = append([]Attachment(nil), d.Attachments...)
	return out
}

func (l LineItem) clone() LineItem {
	out := l
	out.Taxes = append([]TaxComponent(nil), l.Taxes...)
	return out
}

// Warning is a non-blocking notice produced while recomputing a draft.
type Warning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/odyssey-erp/purchasing/internal/pricing"
)

// Vendor is the vendor record served by the order-management API.
type Vendor struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	TaxDetails      TaxDetails `json:"taxDetails"`
	BillingAddress  Text       `json:"billingAddress"`
	ShippingAddress Text       `json:"shippingAddress"`
}

// TaxDetails is the GST registration block of a vendor.
type TaxDetails struct {
	SourceState string            `json:"sourceState"`
	GSTIN       string            `json:"gstin"`
	TaxStatus   pricing.TaxStatus `json:"taxStatus"`
}

// Pricing converts the record into the vendor carried by a draft.
func (v Vendor) Pricing() pricing.Vendor {
	return pricing.Vendor{
		ID:          v.ID,
		Name:        v.Name,
		GSTIN:       v.TaxDetails.GSTIN,
		TaxStatus:   v.TaxDetails.TaxStatus,
		SourceState: v.TaxDetails.SourceState,
	}
}

// Item is a purchasable product or service. GST rates are percentages.
type Item struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	HSNOrSAC      string `json:"hsnOrSac"`
	Unit          string `json:"unit"`
	Rate          Number `json:"rate"`
	IntraStateGST Number `json:"intraStateGST"`
	InterStateGST Number `json:"interStateGST"`
}

// Pricing converts the catalog entry into its selectable form.
func (i Item) Pricing() pricing.CatalogItem {
	return pricing.CatalogItem{
		ID:            i.ID,
		Name:          i.Name,
		HSNOrSACCode:  i.HSNOrSAC,
		Unit:          i.Unit,
		Rate:          string(i.Rate),
		IntraStateGST: string(i.IntraStateGST),
		InterStateGST: string(i.InterStateGST),
	}
}

// Number is a decimal the API may send as a JSON number or string.
type Number string

// UnmarshalJSON keeps the literal digits of a number, or the content of a string.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
		return nil
	default:
		var num json.Number
		if err := json.Unmarshal(b, &num); err != nil {
			return fmt.Errorf("backend: number: %w", err)
		}
		*n = Number(num.String())
		return nil
	}
}

// Text is an address the API may send as a string or a structured object;
// objects are kept as their compact JSON.
type Text string

// UnmarshalJSON accepts a JSON string, null or any other value.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err != nil {
			return err
		}
		*t = Text(buf.String())
		return nil
	}
}

// Order is a persisted purchase order as returned by the API.
type Order struct {
	pricing.Draft
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Upload is a new attachment sent with a create or update.
type Upload struct {
	FileName    string
	ContentType string
	Content     []byte
}

// InstallmentPayment is the body of a payment recording call.
type InstallmentPayment struct {
	pricing.Payment
	Amount string `json:"amount"`
}

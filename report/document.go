package report

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"strings"

	"github.com/odyssey-erp/purchasing/internal/money"
	"github.com/odyssey-erp/purchasing/internal/pricing"
	"github.com/odyssey-erp/purchasing/web"
)

// HTMLRenderer converts an HTML document to PDF.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// PurchaseOrderDocument is the view model of the purchase-order template.
type PurchaseOrderDocument struct {
	Number           string
	OrderDate        string
	DueDate          string
	Vendor           pricing.Vendor
	SourceState      string
	DeliveryState    string
	DeliveryLocation string
	SupplyLabel      string
	Lines            []DocumentLine
	Totals           pricing.Totals
	AmountInWords    string
	Installments     []DocumentInstallment
	Notes            string
}

// DocumentLine is one printed product row.
type DocumentLine struct {
	No       int
	Name     string
	HSN      string
	Quantity string
	Unit     string
	Rate     string
	Discount string
	Taxes    string
	Total    string
}

// DocumentInstallment is one printed EMI row.
type DocumentInstallment struct {
	No      int
	DueDate string
	Amount  string
	Status  pricing.InstallmentStatus
}

// NewPurchaseOrderDocument builds the view model of a repriced draft.
func NewPurchaseOrderDocument(d pricing.Draft, t pricing.Totals) PurchaseOrderDocument {
	number := d.OrderNumber
	if number == "" {
		number = d.ID
	}
	doc := PurchaseOrderDocument{
		Number:           number,
		OrderDate:        d.OrderDate,
		DueDate:          d.DueDate,
		Vendor:           d.Vendor,
		SourceState:      d.Address.SourceState,
		DeliveryState:    d.Address.DeliveryState,
		DeliveryLocation: d.Address.DeliveryLocation,
		SupplyLabel:      "Intra-state",
		Totals:           t,
		AmountInWords:    money.InWords(t.TotalInclTax),
		Notes:            d.Notes,
	}
	if pricing.Classify(d.Address.SourceState, d.Address.DeliveryState) == pricing.Inter {
		doc.SupplyLabel = "Inter-state"
	}
	for i, line := range d.Products {
		discount := ""
		if d.DiscountType == pricing.DiscountProduct && line.InProductDiscount != "" && line.InProductDiscount != "0" {
			discount = line.InProductDiscount
			if line.InProductDiscountValueType == pricing.ValuePercent {
				discount += "%"
			}
		}
		doc.Lines = append(doc.Lines, DocumentLine{
			No:       i + 1,
			Name:     line.ProductName,
			HSN:      line.HSNOrSACCode,
			Quantity: line.Quantity,
			Unit:     line.Unit,
			Rate:     line.Rate,
			Discount: discount,
			Taxes:    taxSummary(line.Taxes),
			Total:    line.TotalPrice,
		})
	}
	if d.EMIDetails != nil {
		for i, inst := range d.EMIDetails.Installments {
			doc.Installments = append(doc.Installments, DocumentInstallment{
				No:      i + 1,
				DueDate: inst.DueDate,
				Amount:  inst.Amount,
				Status:  inst.Status,
			})
		}
	}
	return doc
}

func taxSummary(taxes []pricing.TaxComponent) string {
	parts := make([]string, 0, len(taxes))
	for _, tc := range taxes {
		parts = append(parts, tc.SubType+" "+tc.Rate+"%")
	}
	return strings.Join(parts, ", ")
}

// Renderer produces purchase-order PDFs.
type Renderer struct {
	pdf  HTMLRenderer
	tmpl *template.Template
}

// NewRenderer parses the embedded purchase-order template.
func NewRenderer(pdf HTMLRenderer) (*Renderer, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/purchase_order.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{pdf: pdf, tmpl: tmpl}, nil
}

// HTML renders the purchase-order document.
func (r *Renderer) HTML(d pricing.Draft, t pricing.Totals) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, NewPurchaseOrderDocument(d, t)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPurchaseOrder renders the document and converts it to PDF.
func (r *Renderer) RenderPurchaseOrder(ctx context.Context, d pricing.Draft, t pricing.Totals) ([]byte, error) {
	if r == nil || r.pdf == nil {
		return nil, errors.New("report: renderer not configured")
	}
	html, err := r.HTML(d, t)
	if err != nil {
		return nil, err
	}
	return r.pdf.RenderHTML(ctx, html)
}

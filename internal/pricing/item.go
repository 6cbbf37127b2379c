package pricing

import (
	"fmt"
	"strings"
)

// CatalogItem is a product or service picked from the backend item catalog.
// The GST rates are total percentages for each classification.
type CatalogItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	HSNOrSACCode  string `json:"hsnOrSac"`
	Unit          string `json:"unit"`
	Rate          string `json:"rate"`
	IntraStateGST string `json:"intraStateGST"`
	InterStateGST string `json:"interStateGST"`
}

// SelectItem fills a product row from a catalog item: name, HSN/SAC, unit and
// rate are copied and the GST matching the draft's classification replaces
// the line's GST. Custom taxes on the line are kept. An Index equal to the
// number of rows appends a new row with quantity 1.
type SelectItem struct {
	Index int         `json:"index"`
	Item  CatalogItem `json:"item"`
}

func (a SelectItem) apply(e *Editor, d *Draft) ([]Warning, error) {
	if a.Index == len(d.Products) {
		d.Products = append(d.Products, LineItem{Quantity: "1", InProductDiscount: "0"})
	}
	line, err := d.line(a.Index)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Item.Name) == "" {
		return nil, fmt.Errorf("%w: catalog item has no name", ErrInvalidAction)
	}
	class := Classify(d.Address.SourceState, d.Address.DeliveryState)
	raw, field := a.Item.IntraStateGST, "item.intraStateGST"
	if class == Inter {
		raw, field = a.Item.InterStateGST, "item.interStateGST"
	}
	rate, err := e.calc.num.decimal(field, raw)
	if err != nil {
		return nil, err
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidAction, field)
	}

	line.ProductID = a.Item.ID
	line.ProductName = a.Item.Name
	line.HSNOrSACCode = a.Item.HSNOrSACCode
	line.Unit = a.Item.Unit
	line.Rate = a.Item.Rate
	line.Taxes = applyOption(line.Taxes, GSTOption(class, rate))
	return nil, nil
}

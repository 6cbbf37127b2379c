package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/purchasing/internal/refdata"
)

var two = decimal.NewFromInt(2)

// CustomTax is a non-GST tax rate maintained in the backend tax table.
type CustomTax struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Rate     string `json:"rate"`
	RateType string `json:"rateType"`
}

// ComponentRate is one component of a selectable tax option.
type ComponentRate struct {
	Type    TaxType         `json:"type"`
	SubType string          `json:"subType"`
	Rate    decimal.Decimal `json:"rate"`
}

// TaxOption is an entry of the tax picker.
type TaxOption struct {
	Key        string          `json:"key"`
	Label      string          `json:"label"`
	Type       TaxType         `json:"type"`
	Rate       decimal.Decimal `json:"rate"`
	Components []ComponentRate `json:"components"`
}

// Classify returns Intra when both states name the same state, Inter otherwise.
// GST state codes ("33") and names ("Tamil Nadu") are both accepted.
func Classify(sourceState, deliveryState string) Classification {
	if canonicalState(sourceState) == canonicalState(deliveryState) {
		return Intra
	}
	return Inter
}

func canonicalState(s string) string {
	if st, ok := refdata.StateByCode(s); ok {
		return refdata.NormalizeName(st.Name)
	}
	return refdata.NormalizeName(s)
}

// Resolve lists the tax options for a transaction between the two states.
func Resolve(sourceState, deliveryState string, custom []CustomTax) []TaxOption {
	class := Classify(sourceState, deliveryState)
	bands := refdata.GSTBands()
	options := make([]TaxOption, 0, len(bands)+len(custom))
	for _, rate := range bands {
		options = append(options, GSTOption(class, rate))
	}
	return append(options, CustomOptions(custom)...)
}

// GSTOption builds the GST option of the given total rate in the shape of class:
// CGST+SGST halves for intra-state, a single IGST for inter-state.
func GSTOption(class Classification, rate decimal.Decimal) TaxOption {
	if class == Intra {
		half := rate.Div(two)
		return TaxOption{
			Key:   "GST-" + formatRate(rate),
			Label: fmt.Sprintf("GST %s%%", formatRate(rate)),
			Type:  TaxGST,
			Rate:  rate,
			Components: []ComponentRate{
				{Type: TaxGST, SubType: SubTypeCGST, Rate: half},
				{Type: TaxGST, SubType: SubTypeSGST, Rate: half},
			},
		}
	}
	return TaxOption{
		Key:        "IGST-" + formatRate(rate),
		Label:      fmt.Sprintf("IGST %s%%", formatRate(rate)),
		Type:       TaxIGST,
		Rate:       rate,
		Components: []ComponentRate{{Type: TaxIGST, SubType: SubTypeIGST, Rate: rate}},
	}
}

// CustomOptions converts percentage-based custom taxes into options. Rows with
// another rate type or an unparsable rate are skipped.
func CustomOptions(custom []CustomTax) []TaxOption {
	var out []TaxOption
	for _, ct := range custom {
		if !isPercentRateType(ct.RateType) || strings.TrimSpace(ct.Name) == "" {
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(ct.Rate))
		if err != nil || rate.IsNegative() {
			continue
		}
		out = append(out, TaxOption{
			Key:        "custom-" + ct.Name,
			Label:      fmt.Sprintf("%s %s%%", ct.Name, formatRate(rate)),
			Type:       TaxCustom,
			Rate:       rate,
			Components: []ComponentRate{{Type: TaxCustom, SubType: ct.Name, Rate: rate}},
		})
	}
	return out
}

func isPercentRateType(rt string) bool {
	switch strings.ToLower(strings.TrimSpace(rt)) {
	case "", "percent", "percentage", "%":
		return true
	}
	return false
}

// FindOption returns the option with the given key.
func FindOption(options []TaxOption, key string) (TaxOption, bool) {
	for _, opt := range options {
		if opt.Key == key {
			return opt, true
		}
	}
	return TaxOption{}, false
}

// gstRate sums the GST/IGST component rates of a line. The boolean is false
// when the line carries no GST component at all.
func gstRate(taxes []TaxComponent) (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, t := range taxes {
		if t.Type != TaxGST && t.Type != TaxIGST {
			continue
		}
		found = true
		if r, err := decimal.NewFromString(strings.TrimSpace(t.Rate)); err == nil {
			total = total.Add(r)
		}
	}
	return total, found
}

func customComponents(taxes []TaxComponent) []TaxComponent {
	var out []TaxComponent
	for _, t := range taxes {
		if t.Type == TaxCustom {
			out = append(out, t)
		}
	}
	return out
}

func componentsOf(opt TaxOption) []TaxComponent {
	out := make([]TaxComponent, 0, len(opt.Components))
	for _, c := range opt.Components {
		out = append(out, TaxComponent{Type: c.Type, SubType: c.SubType, Rate: formatRate(c.Rate), Amount: "0.00"})
	}
	return out
}

// hasShape reports whether the GST components of taxes already match class.
func hasShape(taxes []TaxComponent, class Classification) bool {
	var cgst, sgst, igst int
	for _, t := range taxes {
		switch {
		case t.Type == TaxGST && t.SubType == SubTypeCGST:
			cgst++
		case t.Type == TaxGST && t.SubType == SubTypeSGST:
			sgst++
		case t.Type == TaxIGST && t.SubType == SubTypeIGST:
			igst++
		case t.Type == TaxGST || t.Type == TaxIGST:
			return false
		}
	}
	if class == Intra {
		return cgst == 1 && sgst == 1 && igst == 0
	}
	return igst == 1 && cgst == 0 && sgst == 0
}

// withShape rewrites the GST part of taxes into the shape of class at the given
// total rate, keeping custom components after it.
func withShape(taxes []TaxComponent, class Classification, rate decimal.Decimal) []TaxComponent {
	out := componentsOf(GSTOption(class, rate))
	return append(out, customComponents(taxes)...)
}

// Reshape re-applies a line's selected GST rate after the classification
// changed. When options hold no GST entry at that rate the line falls back to a
// zero-rate entry of the correct shape and a warning is returned. Custom
// components are kept when they are still offered.
func Reshape(line LineItem, class Classification, options []TaxOption) (LineItem, *Warning) {
	out := line.clone()
	rate, had := gstRate(line.Taxes)
	custom := keepOffered(customComponents(line.Taxes), options)
	if !had {
		out.Taxes = append(componentsOf(GSTOption(class, decimal.Zero)), custom...)
		return out, nil
	}
	for _, opt := range options {
		if opt.Type == TaxCustom || !opt.Rate.Equal(rate) {
			continue
		}
		if (class == Intra) != (opt.Type == TaxGST) {
			continue
		}
		out.Taxes = append(componentsOf(opt), custom...)
		return out, nil
	}
	out.Taxes = append(componentsOf(GSTOption(class, decimal.Zero)), custom...)
	return out, &Warning{Message: fmt.Sprintf("tax rate %s%% is not available for this delivery state; line reset to 0%%", formatRate(rate))}
}

func keepOffered(custom []TaxComponent, options []TaxOption) []TaxComponent {
	var out []TaxComponent
	for _, c := range custom {
		for _, opt := range options {
			if opt.Type == TaxCustom && opt.Components[0].SubType == c.SubType {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

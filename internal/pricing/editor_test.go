package pricing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func baseDraft() Draft {
	return Draft{
		OrderDate:    "2024-01-31",
		Vendor:       Vendor{ID: "v-1", Name: "Acme Traders", SourceState: "Tamil Nadu"},
		Address:      Address{SourceState: "Tamil Nadu", DeliveryState: "Tamil Nadu"},
		DiscountType: DiscountFlat,
		Products:     []LineItem{gstLine("10", "100", "18")},
	}
}

func newEditor(t *testing.T, d Draft, custom ...CustomTax) *Editor {
	t.Helper()
	e, err := NewEditor(NewCalculator(PolicyLenient), d, custom)
	require.NoError(t, err)
	return e
}

func TestNewEditorDerivesSummary(t *testing.T) {
	e := newEditor(t, baseDraft())
	d := e.Draft()
	require.Equal(t, "1180.00", d.Products[0].TotalPrice)
	require.Equal(t, "1000.00", d.Subtotal)
	require.Equal(t, "180.00", d.TaxAmount)
	require.Equal(t, "1180.00", d.GrandAmount)
	require.Equal(t, "1180.00", d.DueAmount)
	require.Equal(t, "0.00", d.RoundOffAmount)
}

func TestDeliveryStateChangeReshapesLines(t *testing.T) {
	e := newEditor(t, baseDraft())

	res, err := e.Dispatch(SetDeliveryState{State: "Karnataka"})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Len(t, res.Draft.Products[0].Taxes, 1)
	require.Equal(t, TaxIGST, res.Draft.Products[0].Taxes[0].Type)
	require.Equal(t, "180.00", res.Draft.Products[0].Taxes[0].Amount)
	require.Equal(t, "180.00", res.Totals.Taxes.IGST.String())

	res, err = e.Dispatch(SetDeliveryState{State: "33"})
	require.NoError(t, err)
	require.Len(t, res.Draft.Products[0].Taxes, 2)
	require.Equal(t, "90.00", res.Totals.Taxes.CGST.String())
}

func TestDeliveryStateChangeWarnsOnMissingRate(t *testing.T) {
	d := baseDraft()
	d.Products = append(d.Products, gstLine("1", "100", "3"))
	e := newEditor(t, d)

	res, err := e.Dispatch(SetDeliveryState{State: "Karnataka"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, 1, res.Warnings[0].Line)
	require.Equal(t, "0", res.Draft.Products[1].Taxes[0].Rate)
	require.Equal(t, "100.00", res.Draft.Products[1].TotalPrice)
}

func TestSetVendorCopiesSourceState(t *testing.T) {
	e := newEditor(t, baseDraft())
	res, err := e.Dispatch(SetVendor{Vendor: Vendor{ID: "v-2", SourceState: "Maharashtra"}})
	require.NoError(t, err)
	require.Equal(t, "Maharashtra", res.Draft.Address.SourceState)
	require.Equal(t, Inter, e.Classification())
}

func TestSelectTaxAndRemoveTax(t *testing.T) {
	e := newEditor(t, baseDraft(), CustomTax{Name: "Cess", Rate: "1", RateType: "percent"})

	res, err := e.Dispatch(SelectTax{Index: 0, OptionKey: "GST-5"})
	require.NoError(t, err)
	require.Equal(t, "1050.00", res.Draft.Products[0].TotalPrice)

	res, err = e.Dispatch(SelectTax{Index: 0, OptionKey: "custom-Cess"})
	require.NoError(t, err)
	require.Equal(t, "1060.00", res.Draft.Products[0].TotalPrice)

	res, err = e.Dispatch(RemoveTax{Index: 0, SubType: "Cess"})
	require.NoError(t, err)
	require.Equal(t, "1050.00", res.Draft.Products[0].TotalPrice)

	_, err = e.Dispatch(SelectTax{Index: 0, OptionKey: "IGST-5"})
	require.ErrorIs(t, err, ErrUnknownTaxOption)
	_, err = e.Dispatch(SelectTax{Index: 3, OptionKey: "GST-5"})
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestAddUpdateRemoveLine(t *testing.T) {
	e := newEditor(t, baseDraft())

	res, err := e.Dispatch(AddLine{Line: LineItem{ProductName: "Bolt", Quantity: "4", Rate: "25"}})
	require.NoError(t, err)
	require.Len(t, res.Draft.Products, 2)
	require.Equal(t, "1280.00", res.Draft.GrandAmount)

	qty := "8"
	res, err = e.Dispatch(UpdateLine{Index: 1, Quantity: &qty})
	require.NoError(t, err)
	require.Equal(t, "200.00", res.Draft.Products[1].TotalPrice)
	require.Equal(t, "Bolt", res.Draft.Products[1].ProductName)

	res, err = e.Dispatch(RemoveLine{Index: 0})
	require.NoError(t, err)
	require.Len(t, res.Draft.Products, 1)
	require.Equal(t, "200.00", res.Draft.GrandAmount)
}

func TestDiscountTypeToggleResetsDiscounts(t *testing.T) {
	d := baseDraft()
	d.DiscountType = DiscountProduct
	d.Products[0].InProductDiscount = "10"
	d.Products[0].InProductDiscountValueType = ValuePercent
	e := newEditor(t, d)
	require.Equal(t, "1062.00", e.Draft().GrandAmount)

	res, err := e.Dispatch(SetDiscountType{Type: DiscountFlat})
	require.NoError(t, err)
	require.Equal(t, "0", res.Draft.Products[0].InProductDiscount)
	require.Equal(t, "0", res.Draft.Discount)
	require.Equal(t, "1180.00", res.Draft.GrandAmount)

	res, err = e.Dispatch(SetOrderDiscount{Value: "100", ValueType: ValueAmount})
	require.NoError(t, err)
	require.Equal(t, "1080.00", res.Draft.GrandAmount)

	res, err = e.Dispatch(SetDiscountType{Type: DiscountProduct})
	require.NoError(t, err)
	require.Equal(t, "0", res.Draft.Discount)
	require.Equal(t, "1180.00", res.Draft.GrandAmount)
}

func TestConfigureEMIAndConfirmation(t *testing.T) {
	d := baseDraft()
	d.Products = []LineItem{{ProductName: "Server", Quantity: "1", Rate: "1200"}}
	e := newEditor(t, d)

	res, err := e.Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "12", Count: 3})
	require.NoError(t, err)
	emi := res.Draft.EMIDetails
	require.NotNil(t, emi)
	require.Equal(t, "1200.00", emi.PrincipalAmount)
	require.Equal(t, "1236.00", emi.TotalWithInterest)
	require.Equal(t, "2024-01-31", emi.StartDate)
	require.Len(t, emi.Installments, 3)
	require.Equal(t, "412.00", emi.Installments[2].Amount)
	require.Equal(t, "2024-02-29", emi.Installments[0].DueDate)

	_, err = e.Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "12", Count: 6})
	require.ErrorIs(t, err, ErrConfirmationRequired)
	require.Len(t, e.Draft().EMIDetails.Installments, 3)

	_, err = e.Dispatch(SetPaidAmount{Amount: "200"})
	require.ErrorIs(t, err, ErrConfirmationRequired)
	require.Empty(t, e.Draft().PaidAmount)

	res, err = e.Dispatch(SetPaidAmount{Amount: "200", Confirm: true})
	require.NoError(t, err)
	require.Equal(t, "1000.00", res.Draft.EMIDetails.PrincipalAmount)
	require.Equal(t, "200.00", res.Draft.EMIDetails.AdvancePayment)
	require.Equal(t, "343.33", res.Draft.EMIDetails.Installments[0].Amount)
	require.Equal(t, "343.34", res.Draft.EMIDetails.Installments[2].Amount)
	require.Empty(t, res.Warnings)
}

func TestLineChangeAfterEMIWarns(t *testing.T) {
	d := baseDraft()
	d.Products = []LineItem{{ProductName: "Server", Quantity: "1", Rate: "1200"}}
	e := newEditor(t, d)
	_, err := e.Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "0", Count: 2, StartDate: "2024-02-01"})
	require.NoError(t, err)

	qty := "2"
	res, err := e.Dispatch(UpdateLine{Index: 0, Quantity: &qty})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, -1, res.Warnings[0].Line)
	require.Equal(t, "1200.00", res.Draft.EMIDetails.PrincipalAmount)
}

func TestMarkInstallmentPaidLocksSchedule(t *testing.T) {
	d := baseDraft()
	d.Products = []LineItem{{ProductName: "Server", Quantity: "1", Rate: "1200"}}
	e := newEditor(t, d)

	_, err := e.Dispatch(MarkInstallmentPaid{Index: 0})
	require.ErrorIs(t, err, ErrNoSchedule)

	_, err = e.Dispatch(ConfigureEMI{Frequency: Quarterly, InterestRate: "0", Count: 2, StartDate: "2024-02-01"})
	require.NoError(t, err)

	res, err := e.Dispatch(MarkInstallmentPaid{Index: 0, Payment: Payment{Date: "2024-05-01", Method: "NEFT"}})
	require.NoError(t, err)
	require.Equal(t, InstallmentPaid, res.Draft.EMIDetails.Installments[0].Status)

	_, err = e.Dispatch(MarkInstallmentPaid{Index: 0, Payment: Payment{Date: "2024-05-02", Method: "NEFT"}})
	require.ErrorIs(t, err, ErrAlreadyPaid)

	_, err = e.Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "0", Count: 2, Confirm: true})
	require.ErrorIs(t, err, ErrAlreadyPaid)

	_, err = e.Dispatch(SetPaidAmount{Amount: "100", Confirm: true})
	require.ErrorIs(t, err, ErrAlreadyPaid)
	require.Empty(t, e.Draft().PaidAmount)

	_, err = e.Dispatch(ClearEMI{Confirm: true})
	require.ErrorIs(t, err, ErrAlreadyPaid)

	emi := e.Draft().EMIDetails
	require.NotNil(t, emi)
	require.Equal(t, InstallmentPaid, emi.Installments[0].Status)
	require.Equal(t, "2024-05-01", emi.Installments[0].PaymentDate)
}

func TestClearEMIRequiresConfirmation(t *testing.T) {
	d := baseDraft()
	e := newEditor(t, d)
	_, err := e.Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "0", Count: 2})
	require.NoError(t, err)

	_, err = e.Dispatch(ClearEMI{})
	require.ErrorIs(t, err, ErrConfirmationRequired)

	res, err := e.Dispatch(ClearEMI{Confirm: true})
	require.NoError(t, err)
	require.Nil(t, res.Draft.EMIDetails)
}

func TestDispatchKeepsDraftOnError(t *testing.T) {
	d := baseDraft()
	e, err := NewEditor(NewCalculator(PolicyStrict), d, nil)
	require.NoError(t, err)

	bad := "1O"
	_, err = e.Dispatch(UpdateLine{Index: 0, Quantity: &bad})
	require.ErrorIs(t, err, ErrInvalidNumber)
	require.Equal(t, "10", e.Draft().Products[0].Quantity)
	require.Equal(t, "1180.00", e.Totals().TotalInclTax.String())
}

func TestRoundOffToggle(t *testing.T) {
	d := baseDraft()
	d.Products = []LineItem{gstLine("1", "99.60", "0")}
	e := newEditor(t, d)

	res, err := e.Dispatch(SetRoundOff{Enabled: true})
	require.NoError(t, err)
	require.Equal(t, "100.00", res.Draft.GrandAmount)
	require.Equal(t, "0.40", res.Draft.RoundOffAmount)
	require.Equal(t, "99.60", res.Draft.Subtotal)
}

func TestActionEnvelopeDecode(t *testing.T) {
	var env ActionEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"updateLine","payload":{"index":0,"rate":"50"}}`), &env))
	a, err := env.Decode()
	require.NoError(t, err)
	upd, ok := a.(UpdateLine)
	require.True(t, ok)
	require.Equal(t, "50", *upd.Rate)
	require.Nil(t, upd.Quantity)

	e := newEditor(t, baseDraft())
	res, err := e.Dispatch(a)
	require.NoError(t, err)
	require.Equal(t, "590.00", res.Draft.GrandAmount)

	_, err = ActionEnvelope{Type: "explode"}.Decode()
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = ActionEnvelope{Type: "removeLine", Payload: json.RawMessage(`{"index":"x"}`)}.Decode()
	require.ErrorIs(t, err, ErrInvalidAction)
}

func TestSelectItemFillsLineForClassification(t *testing.T) {
	item := CatalogItem{ID: "i-7", Name: "Copper Cable", HSNOrSACCode: "8544", Unit: "Mtr", Rate: "50", IntraStateGST: "12", InterStateGST: "18"}
	d := baseDraft()
	d.Products[0].Taxes = append(d.Products[0].Taxes, TaxComponent{Type: TaxCustom, SubType: "Cess", Rate: "1"})
	e := newEditor(t, d)

	res, err := e.Dispatch(SelectItem{Index: 0, Item: item})
	require.NoError(t, err)
	line := res.Draft.Products[0]
	require.Equal(t, "i-7", line.ProductID)
	require.Equal(t, "Copper Cable", line.ProductName)
	require.Equal(t, "8544", line.HSNOrSACCode)
	require.Equal(t, "Mtr", line.Unit)
	require.Equal(t, "10", line.Quantity)
	require.Equal(t, []TaxComponent{
		{Type: TaxGST, SubType: SubTypeCGST, Rate: "6", Amount: "30.00"},
		{Type: TaxGST, SubType: SubTypeSGST, Rate: "6", Amount: "30.00"},
		{Type: TaxCustom, SubType: "Cess", Rate: "1", Amount: "5.00"},
	}, line.Taxes)
	require.Equal(t, "565.00", line.TotalPrice)

	inter := baseDraft()
	inter.Address.DeliveryState = "Kerala"
	res, err = newEditor(t, inter).Dispatch(SelectItem{Index: 1, Item: item})
	require.NoError(t, err)
	require.Len(t, res.Draft.Products, 2)
	added := res.Draft.Products[1]
	require.Equal(t, "1", added.Quantity)
	require.Equal(t, []TaxComponent{{Type: TaxIGST, SubType: SubTypeIGST, Rate: "18", Amount: "9.00"}}, added.Taxes)
	require.Equal(t, "59.00", added.TotalPrice)

	_, err = e.Dispatch(SelectItem{Index: 5, Item: item})
	require.ErrorIs(t, err, ErrLineNotFound)

	_, err = e.Dispatch(SelectItem{Index: 0, Item: CatalogItem{Rate: "1"}})
	require.ErrorIs(t, err, ErrInvalidAction)

	var env ActionEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"selectItem","payload":{"index":0,"item":{"name":"Pipe","rate":"20","intraStateGST":"5"}}}`), &env))
	a, err := env.Decode()
	require.NoError(t, err)
	require.Equal(t, SelectItem{Index: 0, Item: CatalogItem{Name: "Pipe", Rate: "20", IntraStateGST: "5"}}, a)
}

func TestInvalidActionArguments(t *testing.T) {
	e := newEditor(t, baseDraft())

	_, err := e.Dispatch(SetDiscountType{Type: "Bulk"})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, err = e.Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "0", Count: 2, StartDate: "31/01/2024"})
	require.ErrorIs(t, err, ErrInvalidAction)

	d := baseDraft()
	d.OrderDate = "Jan 31"
	_, err = newEditor(t, d).Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "0", Count: 2})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, err = e.Dispatch(ConfigureEMI{Frequency: Monthly, InterestRate: "0", Count: MaxInstallments + 1})
	require.ErrorIs(t, err, ErrInvalidInstallmentCount)
	require.Nil(t, e.Draft().EMIDetails)
}

func TestRepriceOverridesClientTotals(t *testing.T) {
	d := baseDraft()
	d.GrandAmount = "1.00"
	d.Products[0].TotalPrice = "5.00"

	out, totals, err := NewCalculator(PolicyLenient).Reprice(d)
	require.NoError(t, err)
	require.Equal(t, "1180.00", out.GrandAmount)
	require.Equal(t, "1180.00", out.Products[0].TotalPrice)
	require.Equal(t, "1180.00", totals.TotalInclTax.String())
	require.Equal(t, "1.00", d.GrandAmount)
}

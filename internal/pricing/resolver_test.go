package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		source, delivery string
		want             Classification
	}{
		{"Tamil Nadu", "Tamil Nadu", Intra},
		{"tamil  nadu ", "TAMIL NADU", Intra},
		{"33", "Tamil Nadu", Intra},
		{"Tamil Nadu", "Karnataka", Inter},
		{"27", "29", Inter},
		{"", "", Intra},
		{"Kerala", "", Inter},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.source, tc.delivery), "%q -> %q", tc.source, tc.delivery)
	}
}

func TestResolveIntraStateOptions(t *testing.T) {
	options := Resolve("Tamil Nadu", "Tamil Nadu", nil)
	require.Len(t, options, 5)

	gst18, ok := FindOption(options, "GST-18")
	require.True(t, ok)
	require.Equal(t, TaxGST, gst18.Type)
	require.Len(t, gst18.Components, 2)
	require.True(t, gst18.Components[0].Rate.Equal(decimal.NewFromInt(9)))
	require.Equal(t, SubTypeSGST, gst18.Components[1].SubType)

	_, ok = FindOption(options, "IGST-18")
	require.False(t, ok)
}

func TestResolveInterStateOptions(t *testing.T) {
	options := Resolve("Tamil Nadu", "Karnataka", []CustomTax{
		{Name: "Cess", Rate: "1", RateType: "percentage"},
		{Name: "Freight", Rate: "250", RateType: "fixed"},
		{Name: "Broken", Rate: "x", RateType: "percent"},
	})
	require.Len(t, options, 6)

	igst, ok := FindOption(options, "IGST-5")
	require.True(t, ok)
	require.Len(t, igst.Components, 1)
	require.Equal(t, SubTypeIGST, igst.Components[0].SubType)

	cess, ok := FindOption(options, "custom-Cess")
	require.True(t, ok)
	require.Equal(t, TaxCustom, cess.Type)
	require.Equal(t, "Cess 1%", cess.Label)

	_, ok = FindOption(options, "custom-Freight")
	require.False(t, ok)
}

func TestReshapeMovesRateToNewShape(t *testing.T) {
	line := gstLine("1", "100", "18")
	line.Taxes = append(line.Taxes, TaxComponent{Type: TaxCustom, SubType: "Cess", Rate: "1"})
	custom := []CustomTax{{Name: "Cess", Rate: "1"}}

	out, warn := Reshape(line, Inter, Resolve("Tamil Nadu", "Karnataka", custom))
	require.Nil(t, warn)
	require.Len(t, out.Taxes, 2)
	require.Equal(t, TaxIGST, out.Taxes[0].Type)
	require.Equal(t, "18", out.Taxes[0].Rate)
	require.Equal(t, "Cess", out.Taxes[1].SubType)
	require.Len(t, line.Taxes, 3)
}

func TestReshapeWarnsWhenRateUnavailable(t *testing.T) {
	line := gstLine("1", "100", "3")

	out, warn := Reshape(line, Inter, Resolve("Tamil Nadu", "Karnataka", nil))
	require.NotNil(t, warn)
	require.Contains(t, warn.Message, "3%")
	require.Len(t, out.Taxes, 1)
	require.Equal(t, TaxIGST, out.Taxes[0].Type)
	require.Equal(t, "0", out.Taxes[0].Rate)
}

func TestReshapeDropsCustomTaxNoLongerOffered(t *testing.T) {
	line := gstLine("1", "100", "5")
	line.Taxes = append(line.Taxes, TaxComponent{Type: TaxCustom, SubType: "Cess", Rate: "1"})

	out, warn := Reshape(line, Intra, Resolve("Kerala", "Kerala", nil))
	require.Nil(t, warn)
	require.Len(t, out.Taxes, 2)
	for _, tax := range out.Taxes {
		require.NotEqual(t, TaxCustom, tax.Type)
	}
}

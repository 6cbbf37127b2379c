package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/purchasing/internal/money"
	"github.com/odyssey-erp/purchasing/internal/pricing"
)

// QuoteOptions configures the quote command.
type QuoteOptions struct {
	Path       string
	Policy     pricing.NumericPolicy
	JSONOutput bool
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// QuoteSummary is the JSON output of the quote command.
type QuoteSummary struct {
	Classification pricing.Classification `json:"classification"`
	Draft          pricing.Draft          `json:"draft"`
	Totals         pricing.Totals         `json:"totals"`
	Warnings       []pricing.Warning      `json:"warnings,omitempty"`
	AmountInWords  string                 `json:"amountInWords"`
}

// QuoteCommand reprices a draft read from Path ("-" for stdin) and prints its
// totals. It returns 1 on unreadable input and 2 when the draft does not price.
func QuoteCommand(opts QuoteOptions) int {
	raw, err := readInput(opts.Path, opts.Stdin)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "read draft: %v\n", err)
		return 1
	}
	var d pricing.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		fmt.Fprintf(opts.Stderr, "decode draft: %v\n", err)
		return 1
	}

	calc := pricing.NewCalculator(opts.Policy)
	editor, err := pricing.NewEditor(calc, d, nil)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "price draft: %v\n", err)
		return 2
	}
	summary := QuoteSummary{
		Classification: editor.Classification(),
		Draft:          editor.Draft(),
		Totals:         editor.Totals(),
		AmountInWords:  money.InWords(editor.Totals().TotalInclTax),
	}
	for i, line := range d.Products {
		if _, w := pricing.Reshape(line, summary.Classification, editor.Options()); w != nil {
			w.Line = i
			summary.Warnings = append(summary.Warnings, *w)
		}
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "encode: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(opts.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	t := summary.Totals
	fmt.Fprintf(tw, "Supply\t%s\t\n", summary.Classification)
	fmt.Fprintf(tw, "Base\t%s\t\n", t.TotalBaseAmount)
	fmt.Fprintf(tw, "Discount\t%s\t\n", t.TotalDiscount)
	fmt.Fprintf(tw, "Taxable\t%s\t\n", t.TaxableAmount)
	fmt.Fprintf(tw, "Tax\t%s\t\n", t.TotalTax)
	fmt.Fprintf(tw, "Round off\t%s\t\n", t.RoundOffAmount)
	fmt.Fprintf(tw, "Total\t%s\t\n", t.TotalInclTax)
	fmt.Fprintf(tw, "Paid\t%s\t\n", t.PaidAmount)
	fmt.Fprintf(tw, "Due\t%s\t\n", t.DueAmount)
	if err := tw.Flush(); err != nil {
		return 1
	}
	fmt.Fprintln(opts.Stdout, summary.AmountInWords)
	for _, w := range summary.Warnings {
		fmt.Fprintf(opts.Stderr, "warning: line %d: %s\n", w.Line, w.Message)
	}
	return 0
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return nil, errors.New("path required")
	}
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

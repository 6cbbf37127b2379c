package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/purchasing/internal/money"
	"github.com/odyssey-erp/purchasing/internal/pricing"
)

// EMIOptions configures the emi command.
type EMIOptions struct {
	DueAmount    string
	InterestRate string
	Frequency    string
	Count        int
	StartDate    string
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
}

// EMICommand previews an installment schedule. It returns 1 on invalid input.
func EMICommand(opts EMIOptions) int {
	due, err := money.Parse(opts.DueAmount)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "invalid amount %q\n", opts.DueAmount)
		return 1
	}
	rate := decimal.Zero
	if strings.TrimSpace(opts.InterestRate) != "" {
		if rate, err = money.ParseDecimal(opts.InterestRate); err != nil {
			fmt.Fprintf(opts.Stderr, "invalid interest rate %q\n", opts.InterestRate)
			return 1
		}
	}
	start := time.Now().UTC()
	if opts.StartDate != "" {
		if start, err = time.Parse(pricing.DateLayout, opts.StartDate); err != nil {
			fmt.Fprintf(opts.Stderr, "invalid start date %q (want YYYY-MM-DD)\n", opts.StartDate)
			return 1
		}
	}
	sched, err := pricing.Plan(pricing.PlanInput{
		DueAmount:    due,
		InterestRate: rate,
		Frequency:    pricing.Frequency(opts.Frequency),
		Count:        opts.Count,
		StartDate:    start,
	})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "plan: %s\n", strings.TrimPrefix(err.Error(), "pricing: "))
		return 1
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sched); err != nil {
			fmt.Fprintf(opts.Stderr, "encode: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(opts.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDUE DATE\tAMOUNT")
	for i, inst := range sched.Installments {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, inst.DueDate, inst.Amount)
	}
	fmt.Fprintf(tw, "\tprincipal\t%s\n", sched.Principal)
	fmt.Fprintf(tw, "\tinterest\t%s\n", sched.Interest)
	fmt.Fprintf(tw, "\ttotal\t%s\n", sched.TotalWithInterest)
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}

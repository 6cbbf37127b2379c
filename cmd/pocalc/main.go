// Command pocalc prices purchase-order drafts, previews EMI schedules and
// inspects the reminder queue from the shell.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/purchasing/cmd/pocalc/cli"
	"github.com/odyssey-erp/purchasing/internal/pricing"
	"github.com/odyssey-erp/purchasing/jobs"
)

type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		if ee, ok := err.(exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "pocalc",
		Short:         "Purchase order pricing tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newQuoteCmd(), newEMICmd(), newJobsCmd())
	return root
}

func exit(code int) error {
	if code == 0 {
		return nil
	}
	return exitError{code: code}
}

func newQuoteCmd() *cobra.Command {
	var (
		policy     string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "quote <draft.json|->",
		Short: "Reprice a draft and print its totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pricing.ParseNumericPolicy(policy)
			if err != nil {
				return err
			}
			return exit(cli.QuoteCommand(cli.QuoteOptions{
				Path:       args[0],
				Policy:     p,
				JSONOutput: jsonOutput,
				Stdin:      cmd.InOrStdin(),
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}))
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "lenient", "numeric policy: lenient or strict")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	return cmd
}

func newEMICmd() *cobra.Command {
	opts := cli.EMIOptions{}
	cmd := &cobra.Command{
		Use:   "emi",
		Short: "Preview an installment schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			return exit(cli.EMICommand(opts))
		},
	}
	cmd.Flags().StringVar(&opts.DueAmount, "amount", "", "amount to finance")
	cmd.Flags().StringVar(&opts.InterestRate, "rate", "0", "annual simple interest rate in percent")
	cmd.Flags().StringVar(&opts.Frequency, "frequency", string(pricing.Monthly), "Monthly, Quarterly, Half-Yearly or Yearly")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of installments")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (YYYY-MM-DD), defaults to today")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newJobsCmd() *cobra.Command {
	var redisAddr string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")

	withJobs := func(fn func(cmd *cobra.Command, c *cli.JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := cli.NewJobsCLI(redisAddr)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return fn(cmd, c, args)
		}
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, _ []string) error {
			s, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
			return nil
		}),
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List upcoming scheduled tasks",
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, _ []string) error {
			infos, err := c.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", info.NextProcessAt.Format(time.RFC3339), info.Type, info.ID)
			}
			return nil
		}),
	}
	scheduled.Flags().IntVar(&size, "size", 20, "page size")

	var retention time.Duration
	trigger := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue a maintenance job (" + jobs.TaskIdempotencyCleanup + ")",
		Args:  cobra.ExactArgs(1),
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, args []string) error {
			info, err := c.Trigger(cmd.Context(), args[0], retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.Type, info.ID)
			return nil
		}),
	}
	trigger.Flags().DurationVar(&retention, "retention", jobs.DefaultRetention, "idempotency key retention")

	cmd.AddCommand(stats, scheduled, trigger)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

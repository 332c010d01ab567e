package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/finance"
)

// NewFinanceCommand shows the financial summary and edits the manual ledger.
func NewFinanceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finance",
		Short: "Financial summary and manual cash entries",
	}
	cmd.AddCommand(newFinanceSummaryCommand(rootOpts))
	cmd.AddCommand(newFinanceEntriesCommand(rootOpts))
	cmd.AddCommand(newFinanceAddCommand(rootOpts))
	cmd.AddCommand(newFinanceRemoveCommand(rootOpts))
	return cmd
}

func newFinanceSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Revenue and profit across orders, sales and entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				summary, err := d.workspace.Finance(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(summary, func(w io.Writer) {
					printSummary(w, summary)
				})
			})
		},
	}
}

func newFinanceEntriesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entries",
		Short: "List manual cash entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				entries, err := d.workspace.Entries(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(map[string]any{"entries": entries}, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tDATE\tTYPE\tDESCRIPTION\tCATEGORY\tAMOUNT")
					for _, e := range entries {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date.Local().Format("02/01/2006"), e.Type, e.Description, e.Category, money(e.Amount))
					}
					tw.Flush()
				})
			})
		},
	}
}

func newFinanceAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		entryType, description, category, method, date string
		amount                                         float64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a manual income (entrada) or expense (saida)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := finance.ParseEntryType(entryType)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --type", err)
			}
			var at time.Time
			if date != "" {
				at, err = time.ParseInLocation("2006-01-02", date, time.Local)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --date, want YYYY-MM-DD", err)
				}
			}
			entry, err := finance.NewEntry(t, description, amount, category, method, at)
			if err != nil {
				return classify(err)
			}
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				if err := d.workspace.AddEntry(cmd.Context(), entry); err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(entry, func(w io.Writer) {
					fmt.Fprintf(w, "Recorded %s %s: %s\n", entry.Type, entry.ID, money(entry.Amount))
				})
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&entryType, "type", "", "entrada|saida")
	flags.StringVar(&description, "description", "", "what the entry is for")
	flags.Float64Var(&amount, "amount", 0, "amount, positive")
	flags.StringVar(&category, "category", "", "category")
	flags.StringVar(&method, "method", "", "payment method")
	flags.StringVar(&date, "date", "", "entry date YYYY-MM-DD (defaults to now)")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newFinanceRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <entry-id>",
		Short: "Delete a manual cash entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				if err := d.workspace.RemoveEntry(cmd.Context(), args[0]); err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(map[string]string{"removed": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed entry %s\n", args[0])
				})
			})
		},
	}
}

func printSummary(w io.Writer, s finance.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Service revenue\t%s\t(%d delivered)\n", money(s.ServiceRevenue), s.DeliveredCount)
	fmt.Fprintf(tw, "Parts cost\t%s\t\n", money(s.PartsCost))
	fmt.Fprintf(tw, "Sales revenue\t%s\t(%d sales)\n", money(s.SalesRevenue), s.SalesCount)
	fmt.Fprintf(tw, "Sales profit\t%s\t\n", money(s.SalesProfit))
	fmt.Fprintf(tw, "Other income\t%s\t\n", money(s.Income))
	fmt.Fprintf(tw, "Expenses\t%s\t\n", money(s.Expense))
	fmt.Fprintf(tw, "Net profit\t%s\t\n", money(s.NetProfit))
	tw.Flush()
}

package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/checkout"
	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

// NewSalesCommand lists and cancels recorded sales.
func NewSalesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sales",
		Short: "Sales history and cancellation",
	}
	cmd.AddCommand(newSalesListCommand(rootOpts))
	cmd.AddCommand(newSalesCancelCommand(rootOpts))
	return cmd
}

func newSalesListCommand(rootOpts *RootOptions) *cobra.Command {
	var period, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sales for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := checkout.ParsePeriod(period)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --period", err)
			}
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				cart, err := d.workspace.Checkout(cmd.Context())
				if err != nil {
					return err
				}
				sales := cart.SalesHistory(p, search)
				return rootOpts.formatter(cmd).Success(map[string]any{"sales": sales}, func(w io.Writer) {
					printSales(w, sales)
				})
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "today", "today|month|all")
	cmd.Flags().StringVar(&search, "search", "", "filter by product name or transaction code")
	return cmd
}

func newSalesCancelCommand(rootOpts *RootOptions) *cobra.Command {
	var adminPassword string
	cmd := &cobra.Command{
		Use:   "cancel <sale-id>",
		Short: "Cancel a sale and return its stock (admin password required)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				cart, err := d.workspace.Checkout(cmd.Context())
				if err != nil {
					return err
				}
				if err := cart.CancelSale(cmd.Context(), args[0], adminPassword); err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(map[string]string{"cancelled": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Cancelled sale %s\n", args[0])
				})
			})
		},
	}
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "tenant admin password")
	cmd.MarkFlagRequired("admin-password")
	return cmd
}

func printSales(w io.Writer, sales []domain.Sale) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tDATE\tITEM\tQTY\tTOTAL\tPAYMENT\tSELLER")
	total := 0.0
	for _, s := range sales {
		total += s.FinalPrice
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID, s.TransactionID, s.Date.Local().Format("02/01 15:04"), s.ProductName, s.Quantity, money(s.FinalPrice), s.PaymentMethod, s.SellerName)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d sale(s), %s\n", len(sales), money(total))
}

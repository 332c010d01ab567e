package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/inventory"
)

type StockListResult struct {
	Products []domain.Product  `json:"products"`
	Summary  inventory.Summary `json:"summary"`
}

// NewStockCommand manages the products bucket.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "List and edit products",
	}
	cmd.AddCommand(newStockListCommand(rootOpts))
	cmd.AddCommand(newStockAddCommand(rootOpts))
	cmd.AddCommand(newStockRemoveCommand(rootOpts))
	return cmd
}

func newStockListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List products with stock totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				products, err := d.workspace.Products(cmd.Context())
				if err != nil {
					return err
				}
				result := StockListResult{Products: products, Summary: inventory.New(products).Summary()}
				return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tQTY\tCOST\tPRICE")
					for _, p := range products {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", p.ID, p.Name, p.Quantity, money(p.CostPrice), money(p.SalePrice))
					}
					tw.Flush()
					fmt.Fprintf(w, "Investment: %s  Potential profit: %s\n", money(result.Summary.TotalStockInvestment), money(result.Summary.TotalPotentialProfit))
				})
			})
		},
	}
}

type stockAddOptions struct {
	id       string
	name     string
	cost     float64
	price    float64
	quantity int
}

func newStockAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &stockAddOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product, or replace one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				saved, err := d.workspace.SaveProduct(cmd.Context(), domain.Product{
					ID:        opts.id,
					Name:      opts.name,
					CostPrice: opts.cost,
					SalePrice: opts.price,
					Quantity:  opts.quantity,
				})
				if err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(saved, func(w io.Writer) {
					fmt.Fprintf(w, "Saved %s (%s): %d in stock at %s\n", saved.Name, saved.ID, saved.Quantity, money(saved.SalePrice))
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.id, "id", "", "existing product id to replace")
	cmd.Flags().StringVar(&opts.name, "name", "", "product name")
	cmd.Flags().Float64Var(&opts.cost, "cost", 0, "cost price")
	cmd.Flags().Float64Var(&opts.price, "price", 0, "sale price")
	cmd.Flags().IntVar(&opts.quantity, "qty", 0, "quantity on hand")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newStockRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				if err := d.workspace.RemoveProduct(cmd.Context(), args[0]); err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(map[string]string{"removed": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %s\n", args[0])
				})
			})
		},
	}
}

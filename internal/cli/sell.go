package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/checkout"
)

type sellOptions struct {
	items    []string
	method   string
	received float64
	seller   string
}

type cartItem struct {
	productID string
	quantity  int
}

// parseItems reads "id" or "id:qty" values.
func parseItems(raw []string) ([]cartItem, error) {
	items := make([]cartItem, 0, len(raw))
	for _, value := range raw {
		id, qtyRaw, hasQty := strings.Cut(strings.TrimSpace(value), ":")
		qty := 1
		if hasQty {
			parsed, err := strconv.Atoi(qtyRaw)
			if err != nil || parsed < 1 {
				return nil, fmt.Errorf("invalid quantity in %q", value)
			}
			qty = parsed
		}
		if id == "" {
			return nil, fmt.Errorf("missing product id in %q", value)
		}
		items = append(items, cartItem{productID: id, quantity: qty})
	}
	return items, nil
}

// NewSellCommand runs one sale through the cart.
func NewSellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &sellOptions{}
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Sell products: --item id[:qty] --method <payment>",
		Long: `Build a cart from --item flags, take payment and record the sale.

Payment methods: Dinheiro, Cartão de Crédito, Cartão de Débito, PIX.
For Dinheiro, --received computes the change due.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseItems(opts.items)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --item", err)
			}
			if len(items) == 0 {
				return NewExitError(ExitCommandError, "at least one --item is required")
			}
			seller := opts.seller
			if seller == "" {
				seller = rootOpts.client.SellerName
			}

			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				cart, err := d.workspace.Checkout(cmd.Context())
				if err != nil {
					return err
				}
				for _, item := range items {
					for i := 0; i < item.quantity; i++ {
						if err := cart.AddToCart(item.productID); err != nil {
							return err
						}
					}
				}
				if err := cart.BeginPayment(); err != nil {
					return err
				}
				receipt, err := cart.Finalize(cmd.Context(), checkout.Payment{
					Method:         opts.method,
					Seller:         seller,
					AmountReceived: opts.received,
				})
				if err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(receipt, func(w io.Writer) {
					printReceipt(w, receipt)
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&opts.items, "item", nil, "product id with optional quantity, e.g. prod_1:2 (repeatable)")
	cmd.Flags().StringVar(&opts.method, "method", "Dinheiro", "payment method")
	cmd.Flags().Float64Var(&opts.received, "received", 0, "amount received in cash")
	cmd.Flags().StringVar(&opts.seller, "seller", "", "seller name (defaults to ASSIST_SELLER)")
	return cmd
}

func printReceipt(w io.Writer, r checkout.Receipt) {
	fmt.Fprintf(w, "Transaction %s  %s\n", r.TransactionID, r.Date.Local().Format("02/01/2006 15:04"))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tQTY\tUNIT\tTOTAL")
	for _, s := range r.Sales {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.ProductName, s.Quantity, money(s.OriginalPrice), money(s.FinalPrice))
	}
	tw.Flush()
	fmt.Fprintf(w, "Total: %s  (%s, %s)\n", money(r.Total), r.PaymentMethod, r.SellerName)
	if r.ChangeDue > 0 {
		fmt.Fprintf(w, "Change: %s\n", money(r.ChangeDue))
	}
}

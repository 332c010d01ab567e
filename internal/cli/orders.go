package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

// NewOrdersCommand manages service orders.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Service orders",
	}
	cmd.AddCommand(newOrdersListCommand(rootOpts))
	cmd.AddCommand(newOrdersAddCommand(rootOpts))
	cmd.AddCommand(newOrdersStatusCommand(rootOpts))
	cmd.AddCommand(newOrdersRemoveCommand(rootOpts))
	return cmd
}

func newOrdersListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List service orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				list, err := d.workspace.Orders(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(map[string]any{"orders": list}, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tCUSTOMER\tDEVICE\tSTATUS\tTOTAL")
					for _, o := range list {
						fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\n", o.ID, o.CustomerName, o.DeviceBrand, o.DeviceModel, o.Status, money(o.Total))
					}
					tw.Flush()
				})
			})
		},
	}
}

func newOrdersAddCommand(rootOpts *RootOptions) *cobra.Command {
	var o domain.ServiceOrder
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Open a service order, or edit one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				saved, err := d.workspace.SaveOrder(cmd.Context(), o)
				if err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(saved, func(w io.Writer) {
					fmt.Fprintf(w, "Saved order %s for %s: %s (%s)\n", saved.ID, saved.CustomerName, money(saved.Total), saved.Status)
				})
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&o.ID, "id", "", "existing order id")
	flags.StringVar(&o.CustomerName, "customer", "", "customer name")
	flags.StringVar(&o.PhoneNumber, "phone", "", "customer phone")
	flags.StringVar(&o.Address, "address", "", "customer address")
	flags.StringVar(&o.DeviceBrand, "brand", "", "device brand")
	flags.StringVar(&o.DeviceModel, "model", "", "device model")
	flags.StringVar(&o.Defect, "defect", "", "reported defect")
	flags.StringVar(&o.RepairDetails, "repair", "", "repair details")
	flags.Float64Var(&o.PartsCost, "parts", 0, "parts cost")
	flags.Float64Var(&o.ServiceCost, "service", 0, "service cost")
	flags.StringSliceVar(&o.Photos, "photo", nil, "photo reference taken at intake (repeatable)")
	flags.StringSliceVar(&o.FinishedPhotos, "finished-photo", nil, "photo reference of the finished repair (repeatable)")
	cmd.MarkFlagRequired("customer")
	return cmd
}

func newOrdersStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <order-id> <Pendente|Concluído|Entregue>",
		Short: "Move a service order to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				updated, err := d.workspace.TransitionOrder(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(updated, func(w io.Writer) {
					fmt.Fprintf(w, "Order %s is now %s\n", updated.ID, updated.Status)
				})
			})
		},
	}
}

func newOrdersRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <order-id>",
		Short: "Delete a service order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				if err := d.workspace.RemoveOrder(cmd.Context(), args[0]); err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(map[string]string{"removed": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed order %s\n", args[0])
				})
			})
		},
	}
}

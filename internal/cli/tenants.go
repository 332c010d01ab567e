package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/remote"
)

// NewTenantsCommand holds the operator-only tenant administration.
func NewTenantsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Provision and list tenants (operator login)",
	}
	cmd.AddCommand(newTenantsListCommand(rootOpts))
	cmd.AddCommand(newTenantsCreateCommand(rootOpts))
	cmd.AddCommand(newTenantsDeactivateCommand(rootOpts))
	return cmd
}

// withOperator logs in as the super operator. No local store is opened.
func (o *RootOptions) withOperator(ctx context.Context, fn func(client *remote.Client) error) error {
	sess, client, err := o.login(ctx)
	if err != nil {
		return err
	}
	defer sess.Logout()
	if !sess.IsSuper() {
		return NewExitError(ExitAuth, "tenant administration requires the operator account")
	}
	return classify(fn(client))
}

func newTenantsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperator(cmd.Context(), func(client *remote.Client) error {
				tenants, err := client.ListTenants(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(map[string]any{"tenants": tenants}, func(w io.Writer) {
					printTenants(w, tenants)
				})
			})
		},
	}
}

func newTenantsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var req domain.ProvisionRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a tenant and its admin user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperator(cmd.Context(), func(client *remote.Client) error {
				created, err := client.ProvisionTenant(cmd.Context(), req)
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(created, func(w io.Writer) {
					fmt.Fprintf(w, "Provisioned %s (%s), admin %s\n", created.StoreName, created.ID, created.AdminUsername)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.StoreName, "store", "", "store name")
	cmd.Flags().StringVar(&req.Username, "admin-username", "", "tenant admin username")
	cmd.Flags().StringVar(&req.Password, "admin-password", "", "tenant admin password")
	cmd.MarkFlagRequired("store")
	cmd.MarkFlagRequired("admin-username")
	cmd.MarkFlagRequired("admin-password")
	return cmd
}

func newTenantsDeactivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <tenant-id>",
		Short: "Soft-delete a tenant; its data is kept but no longer served",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperator(cmd.Context(), func(client *remote.Client) error {
				t, err := client.DeactivateTenant(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(t, func(w io.Writer) {
					fmt.Fprintf(w, "Deactivated %s (%s)\n", t.StoreName, t.ID)
				})
			})
		},
	}
}

func printTenants(w io.Writer, tenants []domain.Tenant) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTORE\tADMIN\tCREATED\tACTIVE")
	for _, t := range tenants {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", t.ID, t.StoreName, t.AdminUsername, t.CreatedAt.Local().Format("2006-01-02"), t.Active())
	}
	tw.Flush()
}

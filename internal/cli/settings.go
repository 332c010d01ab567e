package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

// NewSettingsCommand shows and edits the store settings document.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Store name and receipt (PDF) options",
	}
	cmd.AddCommand(newSettingsShowCommand(rootOpts))
	cmd.AddCommand(newSettingsSetCommand(rootOpts))
	return cmd
}

func newSettingsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				settings, err := d.workspace.Settings(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(settings, func(w io.Writer) {
					printSettings(w, settings)
				})
			})
		},
	}
}

var settingsFlags = []string{"store", "logo", "warranty", "font-size", "font-family", "paper-width", "text-color", "bg-color"}

func newSettingsSetCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		next domain.Settings
		logo string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings; only the given flags are modified",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			changed := false
			for _, name := range settingsFlags {
				changed = changed || flags.Changed(name)
			}
			if !changed {
				return NewExitError(ExitCommandError, "nothing to change, pass at least one flag")
			}
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				settings, err := d.workspace.Settings(cmd.Context())
				if err != nil {
					return err
				}
				if flags.Changed("store") {
					settings.StoreName = next.StoreName
				}
				if flags.Changed("logo") {
					settings.LogoURL = nil
					if logo != "" {
						settings.LogoURL = &logo
					}
				}
				if flags.Changed("warranty") {
					settings.PDFWarrantyText = next.PDFWarrantyText
				}
				if flags.Changed("font-size") {
					settings.PDFFontSize = next.PDFFontSize
				}
				if flags.Changed("font-family") {
					settings.PDFFontFamily = next.PDFFontFamily
				}
				if flags.Changed("paper-width") {
					settings.PDFPaperWidth = next.PDFPaperWidth
				}
				if flags.Changed("text-color") {
					settings.PDFTextColor = next.PDFTextColor
				}
				if flags.Changed("bg-color") {
					settings.PDFBgColor = next.PDFBgColor
				}
				settings.IsConfigured = true

				if err := d.workspace.SaveSettings(cmd.Context(), settings); err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(settings, func(w io.Writer) {
					printSettings(w, settings)
				})
			})
		},
	}
	cmd.Flags().StringVar(&next.StoreName, "store", "", "store name")
	cmd.Flags().StringVar(&logo, "logo", "", "logo URL or data URI (empty clears it)")
	cmd.Flags().StringVar(&next.PDFWarrantyText, "warranty", "", "warranty text printed on receipts")
	cmd.Flags().IntVar(&next.PDFFontSize, "font-size", 0, "receipt font size")
	cmd.Flags().StringVar(&next.PDFFontFamily, "font-family", "", "receipt font family")
	cmd.Flags().IntVar(&next.PDFPaperWidth, "paper-width", 0, "receipt paper width in mm (58 or 80)")
	cmd.Flags().StringVar(&next.PDFTextColor, "text-color", "", "receipt text color")
	cmd.Flags().StringVar(&next.PDFBgColor, "bg-color", "", "receipt background color")
	return cmd
}

// NewUsersCommand manages the sellers and technicians listed in settings.
func NewUsersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Sellers and technicians of the store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List store users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				settings, err := d.workspace.Settings(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(map[string]any{"users": settings.Users}, func(w io.Writer) {
					printUsers(w, settings.Users)
				})
			})
		},
	})
	cmd.AddCommand(newUsersAddCommand(rootOpts))
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a store user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				if err := d.workspace.RemoveUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(map[string]any{"removed": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed user %s\n", args[0])
				})
			})
		},
	})
	return cmd
}

func newUsersAddCommand(rootOpts *RootOptions) *cobra.Command {
	var name, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a seller (vendedor) or technician (tecnico)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				user, err := d.workspace.AddUser(cmd.Context(), name, role)
				if err != nil {
					return err
				}
				d.flush(cmd.Context())
				return rootOpts.formatter(cmd).Success(user, func(w io.Writer) {
					fmt.Fprintf(w, "Added %s %s (%s)\n", user.Role, user.Name, user.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user name")
	cmd.Flags().StringVar(&role, "role", domain.RoleVendedor, "vendedor or tecnico")
	cmd.MarkFlagRequired("name")
	return cmd
}

func printSettings(w io.Writer, s domain.Settings) {
	logo := "-"
	if s.LogoURL != nil {
		logo = *s.LogoURL
	}
	fmt.Fprintf(w, "Store:      %s\n", s.StoreName)
	fmt.Fprintf(w, "Logo:       %s\n", logo)
	fmt.Fprintf(w, "Warranty:   %s\n", s.PDFWarrantyText)
	fmt.Fprintf(w, "Receipt:    %dmm, %s %dpt, %s on %s\n", s.PDFPaperWidth, s.PDFFontFamily, s.PDFFontSize, s.PDFTextColor, s.PDFBgColor)
	printUsers(w, s.Users)
}

func printUsers(w io.Writer, users []domain.StoreUser) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Name, u.Role)
	}
	tw.Flush()
}

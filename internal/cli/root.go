// Package cli is the device and operator command line.
package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/config"
	"github.com/KiritoRJ/assistenciatecnica/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "text" | "json" | "yaml"
	RemoteURL string
	LocalDB   string
	Username  string
	Password  string
	Timeout   time.Duration

	client config.ClientConfig
}

var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand builds the CLI. cfg supplies the defaults of the global
// flags.
func NewRootCommand(cfg config.ClientConfig) *cobra.Command {
	opts := &RootOptions{client: cfg}

	cmd := &cobra.Command{
		Use:           "assist",
		Short:         "Assistência Técnica device client",
		Long:          "Offline-first client for a repair shop: stock, point of sale, service orders and finances, synced per tenant.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := cfg.LogLevel
			if opts.Verbose {
				level = "debug"
			}
			logging.Init(cmd.ErrOrStderr(), level, true)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	flags.StringVar(&opts.RemoteURL, "remote", cfg.RemoteURL, "remote store base URL")
	flags.StringVar(&opts.LocalDB, "db", cfg.LocalDBPath, "local device database path")
	flags.StringVarP(&opts.Username, "username", "u", cfg.Username, "login username")
	flags.StringVarP(&opts.Password, "password", "p", cfg.Password, "login password")
	flags.DurationVar(&opts.Timeout, "timeout", cfg.RequestTimeout, "remote request timeout")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))
	cmd.AddCommand(NewSellCommand(opts))
	cmd.AddCommand(NewSalesCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewFinanceCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewUsersCommand(opts))
	cmd.AddCommand(NewTenantsCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

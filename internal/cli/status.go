package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/syncer"
)

// StatusResult is the session and sync state after login.
type StatusResult struct {
	Kind      string         `json:"kind"`
	TenantID  string         `json:"tenantId"`
	StoreName string         `json:"storeName"`
	DeviceID  string         `json:"deviceId"`
	Settings  StatusSettings `json:"settings"`
	Sync      syncer.Status  `json:"sync"`
}

type StatusSettings struct {
	StoreName    string `json:"storeName"`
	IsConfigured bool   `json:"isConfigured"`
	Users        int    `json:"users"`
}

// NewStatusCommand logs in, reconciles every bucket and reports the result.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"login"},
		Short:   "Log in, reconcile all buckets and show sync state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				settings, err := d.workspace.Settings(cmd.Context())
				if err != nil {
					return err
				}
				result := StatusResult{
					Kind:      string(d.session.Kind),
					TenantID:  d.session.TenantID,
					StoreName: d.session.StoreName,
					DeviceID:  d.deviceID,
					Settings: StatusSettings{
						StoreName:    settings.StoreName,
						IsConfigured: settings.IsConfigured,
						Users:        len(settings.Users),
					},
					Sync: d.flush(cmd.Context()),
				}
				return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
					fmt.Fprintf(w, "Tenant:   %s (%s)\n", result.StoreName, result.TenantID)
					fmt.Fprintf(w, "Device:   %s\n", result.DeviceID)
					fmt.Fprintf(w, "Settings: %s, %d user(s)\n", result.Settings.StoreName, result.Settings.Users)
					printSyncStatus(w, result.Sync)
				})
			})
		},
	}
}

// NewSyncCommand groups manual sync operations.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Manual sync operations",
	}
	cmd.AddCommand(newSyncPullCommand(rootOpts))
	cmd.AddCommand(newSyncDrainCommand(rootOpts))
	cmd.AddCommand(newSyncWatchCommand(rootOpts))
	return cmd
}

func newSyncPullCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [bucket]",
		Short: "Reconcile one bucket, or all buckets, with the remote store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var only domain.Bucket
			if len(args) == 1 {
				bucket, ok := domain.ParseBucket(args[0])
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown bucket %q", args[0]))
				}
				only = bucket
			}
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				// Bootstrap already reconciled everything; a named bucket is pulled again.
				if only != "" {
					if err := d.engine.Refresh(cmd.Context(), only); err != nil {
						return err
					}
				}
				status, err := d.engine.Status(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(status, func(w io.Writer) {
					printSyncStatus(w, status)
				})
			})
		},
	}
}

// DrainResult reports one outbox pass.
type DrainResult struct {
	Pending int           `json:"pending"`
	Sync    syncer.Status `json:"sync"`
}

func newSyncDrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Push queued local writes to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				status := d.flush(cmd.Context())
				result := DrainResult{Pending: status.Pending, Sync: status}
				return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
					printSyncStatus(w, status)
				})
			})
		},
	}
}

// WatchResult reports the outbox once the background drainer stops.
type WatchResult struct {
	Ran  string        `json:"ran"`
	Sync syncer.Status `json:"sync"`
}

func newSyncWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var interval, duration time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep draining queued writes in the background until interrupted",
		Long:  "Runs the outbox drainer with exponential backoff. Stops on SIGINT/SIGTERM, or after --for when set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval > 0 {
				rootOpts.client.DrainInterval = interval
			}
			return rootOpts.withDevice(cmd.Context(), func(d *device) error {
				runCtx := cmd.Context()
				if duration > 0 {
					var cancel context.CancelFunc
					runCtx, cancel = context.WithTimeout(runCtx, duration)
					defer cancel()
				}

				started := time.Now()
				log.Info().Dur("interval", rootOpts.client.DrainInterval).Msg("[cli] drainer running")
				d.engine.Run(runCtx)

				// A signal cancels the command context too; the final read still runs.
				status, err := d.engine.Status(context.WithoutCancel(cmd.Context()))
				if err != nil {
					return err
				}
				result := WatchResult{Ran: time.Since(started).Round(time.Millisecond).String(), Sync: status}
				return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
					fmt.Fprintf(w, "Drainer stopped after %s\n", result.Ran)
					printSyncStatus(w, status)
				})
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "drain interval (default ASSIST_DRAIN_INTERVAL_SECONDS)")
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func printSyncStatus(w io.Writer, status syncer.Status) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUCKET\tSTATE\tRECONCILED\tLAST ERROR")
	for _, b := range status.Buckets {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", b.Bucket, b.State, b.Reconciled, b.LastError)
	}
	tw.Flush()
	fmt.Fprintf(w, "Pending writes: %d\n", status.Pending)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewReindexCommand creates the reindex command. It sweeps posts updated
// since the given window through the synchronizer and waits for the queue
// to drain before exiting.
func NewReindexCommand(opts *RootOptions) *cobra.Command {
	var (
		since        time.Duration
		drainTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild search documents from the primary store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if since < 0 {
				return fmt.Errorf("--since must not be negative")
			}
			ctx := cmd.Context()
			cfg, err := opts.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rt, err := opts.Runtime(ctx, cfg)
			if err != nil {
				return err
			}
			rt.Start(ctx, false)
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
				defer cancel()
				err = errors.Join(err, rt.Close(closeCtx))
			}()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			stats, err := rt.Reconciler.Sweep(ctx, from)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued scanned=%d upserts=%d removes=%d\n",
				stats.Scanned, stats.Upserts, stats.Removes)
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only posts updated within this window (0 means all)")
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", time.Minute, "how long to wait for queued events")

	return cmd
}

package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// PurgeResult is the outcome document printed by the purge command.
type PurgeResult struct {
	Purged int64  `json:"purged"`
	MaxAge string `json:"max_age"`
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete executions older than the retention window",
		Long: `Delete stored executions whose age exceeds the retention window and
reclaim the freed space. The window and the statuses considered come
from the retention section of the configuration; --older-than overrides
the window for this run.

Example:
  outpost purge
  outpost purge --older-than 72h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(rootOpts, olderThan, cmd)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff for this run (default: configured retention max_age)")

	return cmd
}

func runPurge(opts *RootOptions, olderThan time.Duration, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd)

	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	purged, err := a.purger.RunOnce(ctx, olderThan)
	if err != nil {
		return WrapExitError(ExitCommandError, "purge failed", err)
	}

	maxAge := olderThan
	if maxAge <= 0 {
		maxAge = a.cfg.Retention.MaxAge()
	}
	return formatter.Success(PurgeResult{Purged: purged, MaxAge: maxAge.String()})
}

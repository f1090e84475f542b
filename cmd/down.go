package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var downDelay time.Duration

func newDownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Scale every unit to zero replicas",
		Long: `Scales every configured unit to zero, whether or not sumctl brought it up.
Failures on individual units are logged and do not stop the sweep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			stack, provider, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(provider)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return stack.Orchestrator.ScaleToZero(ctx, downDelay)
		},
	}
	cmd.Flags().DurationVar(&downDelay, "delay", 0, "wait this long before scaling down")
	return cmd
}

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <unit>",
		Short: "Print the URL a unit is reached at",
		Long: `Prints the endpoint of a unit: its cluster DNS name when running in-cluster,
otherwise the local port its tunnel prefers. No tunnel is opened.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid unit %q: %w", args[0], err)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if unit < 0 || unit >= cfg.Orchestrator.MaxUnits {
				return fmt.Errorf("unit %d out of range [0, %d)", unit, cfg.Orchestrator.MaxUnits)
			}
			stack, provider, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(provider)

			fmt.Fprintln(cmd.OutOrStdout(), stack.Orchestrator.Resolve(unit).URL)
			return nil
		},
	}
}

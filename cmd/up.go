package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"sumctl/internal/orchestrator"
	"sumctl/pkg/logging"

	"github.com/spf13/cobra"
)

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up <count>",
		Short: "Bring up units 0..count-1 and hold them until interrupted",
		Long: `Scales units 0..count-1 to one replica, waits for their pods and opens a tunnel
to each (unless running in-cluster), then prints their endpoints. The units stay
up until sumctl is interrupted, after which they are scaled back to zero.`,
		Args: cobra.ExactArgs(1),
		RunE: runUp,
	}
}

func runUp(cmd *cobra.Command, args []string) error {
	count, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid unit count %q: %w", args[0], err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stack, provider, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(provider)
	orch := stack.Orchestrator

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	lease, upErr := orch.BringUpUnits(ctx, count)
	if upErr == nil {
		printEndpoints(cmd.OutOrStdout(), orch, lease.Units())
		logging.Info(subsystem, "Units are up, press Ctrl+C to scale them down")
		<-ctx.Done()
	}

	releaseCtx, cancel := cleanupContext()
	defer cancel()
	if err := orch.Release(releaseCtx, lease, 0); err != nil {
		logging.Warn(subsystem, "Scale-down interrupted: %v", err)
	}
	stack.Tunnels.TeardownAll()
	return upErr
}

func printEndpoints(w io.Writer, orch *orchestrator.Orchestrator, units []int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tDEPLOYMENT\tURL")
	for _, unit := range units {
		ep := orch.Resolve(unit)
		fmt.Fprintf(tw, "%d\t%s\t%s\n", unit, orch.Names().Deployment(unit), ep.URL)
	}
	tw.Flush()
}

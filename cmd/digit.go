package cmd

import (
	"net"
	"strconv"

	"sumctl/internal/digit"
	"sumctl/internal/httpserver"

	"github.com/spf13/cobra"
)

var (
	digitHost string
	digitPort int
)

func newDigitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digit",
		Short: "Run the single-digit adder served by every unit pod",
		Long: `Serves POST /suma, which adds two digits and a carry, and GET /health.
This is the process each unit deployment runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogging(logLevel); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			addr := net.JoinHostPort(digitHost, strconv.Itoa(digitPort))
			return httpserver.New("Digit", addr, digit.NewHandler()).Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&digitHost, "host", "0.0.0.0", "address to listen on")
	cmd.Flags().IntVar(&digitPort, "port", 8000, "port to listen on")
	return cmd
}

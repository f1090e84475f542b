package cmd

import (
	"net"
	"net/http"
	"strconv"

	"sumctl/internal/digit"
	"sumctl/internal/httpserver"
	"sumctl/internal/orchestrator"
	"sumctl/internal/proxy"
	"sumctl/pkg/logging"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var (
	serveHost      string
	servePort      int
	serveStaticDir string
	serveKeepWarm  bool
	serveLeaveUp   bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the addition proxy and scale units on demand",
		Long: `Starts the HTTP proxy. Every POST /suma-n-digitos brings up one unit per digit,
chains the carry through them and schedules the units to scale back to zero.

The proxy also serves the browser UI from --static-dir and streams sumctl's log
at /terminal-stream. When orchestrator.reconcileInterval is set, idle units are
swept back to zero on that interval.

On shutdown every unit is scaled to zero unless --leave-up is given.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&serveHost, "host", "", "address to listen on (overrides proxy.host)")
	cmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides proxy.port)")
	cmd.Flags().StringVar(&serveStaticDir, "static-dir", "", "directory served at / (overrides proxy.staticDir)")
	cmd.Flags().BoolVar(&serveKeepWarm, "keep-warm", false, "do not scale units down after each addition")
	cmd.Flags().BoolVar(&serveLeaveUp, "leave-up", false, "do not scale units to zero on shutdown")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Proxy.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Proxy.Port = servePort
	}
	if flags.Changed("static-dir") {
		cfg.Proxy.StaticDir = serveStaticDir
	}
	if flags.Changed("keep-warm") {
		cfg.Proxy.KeepWarm = serveKeepWarm
	}

	hub := proxy.NewHub(cfg.Proxy.LogBuffer)
	detach := hub.Attach()
	defer detach()

	stack, provider, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(provider)
	orch := stack.Orchestrator

	digits := digit.NewClient(cfg.Proxy.DigitTimeout)
	digits.HTTP.Transport = otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(provider.TracerProvider()))

	p := proxy.New(proxy.Options{
		Config:         cfg.Proxy,
		ScaleDownDelay: cfg.Orchestrator.ScaleDownDelay,
	}, orch, digits, stack.Lookup, hub)
	handler := otelhttp.NewHandler(p.Handler(), "proxy", otelhttp.WithTracerProvider(provider.TracerProvider()))
	server := httpserver.New("Proxy", net.JoinHostPort(cfg.Proxy.Host, strconv.Itoa(cfg.Proxy.Port)), handler)
	server.RegisterOnShutdown(hub.Close)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	logging.Info(subsystem, "Serving additions of up to %d digit(s) in namespace %s", orch.MaxUnits(), cfg.Orchestrator.Namespace)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	g.Go(func() error {
		return orchestrator.NewReconciler(orch, cfg.Orchestrator.ReconcileInterval).Run(gctx)
	})
	runErr := g.Wait()

	orch.Wait()
	shutdownCtx, cancel := cleanupContext()
	defer cancel()
	if serveLeaveUp {
		logging.Info(subsystem, "Leaving units %v up", orch.ActiveUnits())
	} else if err := orch.ScaleToZero(shutdownCtx, 0); err != nil {
		logging.Warn(subsystem, "Final scale-down interrupted: %v", err)
	}
	stack.Tunnels.TeardownAll()
	return runErr
}

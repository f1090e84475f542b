package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sumctl/internal/config"
	"sumctl/internal/orchestrator"
	"sumctl/internal/telemetry"
	"sumctl/pkg/logging"
)

const (
	subsystem       = "CLI"
	cleanupDeadline = 30 * time.Second
)

// buildStack wires the orchestrator and the telemetry provider its spans go to.
// Callers must pass the provider to shutdownTelemetry.
func buildStack(cfg config.SumctlConfig) (*orchestrator.Stack, *telemetry.Provider, error) {
	provider := telemetry.NewProvider(cfg.Telemetry.Enabled)
	stack, err := orchestrator.Build(cfg.Orchestrator, provider.Tracer(cfg.Telemetry.ServiceName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, nil, err
	}
	return stack, provider, nil
}

func shutdownTelemetry(provider *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		logging.Warn(subsystem, "Flushing telemetry failed: %v", err)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// cleanupContext bounds the work done after the main context was canceled.
func cleanupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cleanupDeadline)
}

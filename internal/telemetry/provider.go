package telemetry

import (
	"context"

	"sumctl/pkg/logging"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const subsystem = "Telemetry"

// Provider hands out tracers. When disabled every tracer is a no-op.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

// NewProvider returns a Provider whose finished spans are written to the debug log.
// Extra processors (a span recorder in tests) receive every span as well.
func NewProvider(enabled bool, processors ...sdktrace.SpanProcessor) *Provider {
	if !enabled {
		return &Provider{}
	}
	opts := []sdktrace.TracerProviderOption{sdktrace.WithSpanProcessor(logProcessor{})}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	return &Provider{sdk: sdktrace.NewTracerProvider(opts...)}
}

func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.sdk == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.sdk.Tracer(name)
}

// TracerProvider exposes the provider to instrumentation libraries.
func (p *Provider) TracerProvider() trace.TracerProvider {
	if p == nil || p.sdk == nil {
		return noop.NewTracerProvider()
	}
	return p.sdk
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// logProcessor reports finished spans through the logging package.
type logProcessor struct{}

func (logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (logProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	elapsed := span.EndTime().Sub(span.StartTime())
	if span.Status().Code == codes.Error {
		logging.Debug(subsystem, "span %s failed after %s: %s", span.Name(), elapsed, span.Status().Description)
		return
	}
	logging.Debug(subsystem, "span %s finished in %s", span.Name(), elapsed)
}

func (logProcessor) Shutdown(context.Context) error   { return nil }
func (logProcessor) ForceFlush(context.Context) error { return nil }

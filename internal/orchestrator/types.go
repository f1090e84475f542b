package orchestrator

import (
	"context"
	"fmt"
	"time"

	"sumctl/internal/config"
	"sumctl/internal/kube"

	"go.opentelemetry.io/otel/trace"
)

// Tunnels is what the orchestrator needs from the tunnel manager.
type Tunnels interface {
	Establish(ctx context.Context, unit int) error
	Teardown(unit int)
	LocalPort(unit int) (int, bool)
}

// Endpoint is where a unit can be reached.
type Endpoint struct {
	URL  string
	Port int
}

// Step names one stage of bringing a unit up.
type Step string

const (
	StepScale         Step = "scale"
	StepWaitPods      Step = "wait-pods"
	StepWaitEndpoints Step = "wait-endpoints"
	StepTunnel        Step = "tunnel"
)

// StepError attributes a bring-up failure to the step and unit where it happened.
type StepError struct {
	Step Step
	Unit int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("bring-up of unit %d failed at %s: %v", e.Unit, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Options configures an Orchestrator.
type Options struct {
	Names       kube.Names
	MaxUnits    int
	BasePort    int
	ServicePort int
	InCluster   bool

	PodReadyTimeout  time.Duration
	EndpointsTimeout time.Duration

	// Tracer receives one span per bring-up and release. Nil disables tracing.
	Tracer trace.Tracer
}

// OptionsFromConfig derives orchestrator options from the loaded configuration.
func OptionsFromConfig(cfg config.OrchestratorConfig) Options {
	return Options{
		Names:            NamesFromConfig(cfg),
		MaxUnits:         cfg.MaxUnits,
		BasePort:         cfg.BasePort,
		ServicePort:      cfg.ServicePort,
		InCluster:        cfg.InCluster,
		PodReadyTimeout:  cfg.PodReadyTimeout,
		EndpointsTimeout: cfg.EndpointsTimeout,
	}
}

// NamesFromConfig returns the naming convention configured for the units.
func NamesFromConfig(cfg config.OrchestratorConfig) kube.Names {
	return kube.Names{
		Namespace: cfg.Namespace,
		Prefix:    cfg.Prefix,
		AppLabel:  cfg.AppLabel,
		UnitLabel: cfg.UnitLabel,
	}
}

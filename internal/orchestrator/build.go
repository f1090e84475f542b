package orchestrator

import (
	"fmt"

	"sumctl/internal/config"
	"sumctl/internal/kube"
	"sumctl/internal/portforwarding"

	"go.opentelemetry.io/otel/trace"
)

// Stack is everything a command needs to drive the fleet.
type Stack struct {
	Orchestrator *Orchestrator
	Tunnels      *portforwarding.Manager
	Lookup       kube.AddressLookup
}

// Build wires an Orchestrator for the configured backend.
// The kubectl backend shells out for cluster calls and tunnels; the api backend uses
// client-go for both and keeps tunnels in-process.
func Build(cfg config.OrchestratorConfig, tracer trace.Tracer) (*Stack, error) {
	names := NamesFromConfig(cfg)

	var (
		cluster interface {
			kube.Cluster
			kube.AddressLookup
		}
		opener portforwarding.Opener
	)
	switch cfg.Backend {
	case config.BackendAPI:
		clientset, restConfig, err := kube.NewClientset(cfg.KubeContext, cfg.InCluster || config.RunningInCluster())
		if err != nil {
			return nil, err
		}
		cluster = kube.NewAPI(names, clientset)
		opener = portforwarding.NewStreamOpener(clientset, restConfig)
	case config.BackendKubectl, "":
		cluster = kube.NewCLI(names, cfg.Kubectl, cfg.KubeContext)
		opener = &portforwarding.ProcessOpener{Binary: cfg.Kubectl, KubeContext: cfg.KubeContext}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	tunnels := portforwarding.NewManager(portforwarding.Options{
		Names:       names,
		BasePort:    cfg.BasePort,
		ServicePort: cfg.ServicePort,
		InCluster:   cfg.InCluster,
	}, opener)

	opts := OptionsFromConfig(cfg)
	opts.Tracer = tracer
	return &Stack{
		Orchestrator: New(opts, cluster, tunnels),
		Tunnels:      tunnels,
		Lookup:       cluster,
	}, nil
}

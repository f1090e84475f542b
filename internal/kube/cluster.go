package kube

import (
	"context"
	"time"
)

// Bounds applied to individual cluster operations.
const (
	ScaleTimeout         = 10 * time.Second
	PodWaitGrace         = 5 * time.Second
	EndpointProbeTimeout = 10 * time.Second
	EndpointPollPeriod   = 1 * time.Second
)

// Cluster is the control surface the orchestrator needs from Kubernetes.
// Every method returns nil on success or an *OpError describing the failure.
type Cluster interface {
	// Scale sets the replica count of the unit's deployment.
	Scale(ctx context.Context, unit, replicas int) error
	// WaitPodsReady blocks until the unit's pods report the Ready condition.
	WaitPodsReady(ctx context.Context, unit int, timeout time.Duration) error
	// WaitEndpointsReady polls until the unit's service has at least one endpoint,
	// checking both the Endpoints and EndpointSlice views.
	WaitEndpointsReady(ctx context.Context, unit int, timeout time.Duration) error
}

// AddressLookup finds the external address of LoadBalancer services.
type AddressLookup interface {
	// ExternalAddress returns the first ingress IP or hostname of the service,
	// or "" while the load balancer is still being provisioned.
	ExternalAddress(ctx context.Context, namespace, service string) (string, error)
}

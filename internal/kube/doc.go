// Package kube is sumctl's control surface towards the Kubernetes cluster.
//
// It scales unit deployments, waits for their pods to become ready and waits
// for their services to publish endpoints. Two interchangeable backends
// implement the Cluster interface:
//
//   - CLI shells out to kubectl (scale, wait, get endpoints/endpointslices).
//     Every invocation runs under exec.CommandContext with an explicit bound,
//     so a command that times out is killed instead of leaking.
//   - API talks to the API server through client-go.
//
// # Naming Convention
//
// Units are addressed by index. For prefix "suma-digito" unit 2 maps to:
//
//   - Deployment: suma-digito-2
//   - Service:    suma-digito-2
//   - Pods:       app=suma-backend,digito=2
//
// # Error Handling
//
// Every failure is an *OpError carrying a Kind (CommandFailed, TimedOut,
// ExecutionFault, NotReady, PortUnavailable, Canceled). Each failure is also
// logged with a message specific to its kind.
package kube

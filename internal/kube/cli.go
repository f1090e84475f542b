package kube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// execCommandContext allows tests to replace the kubectl binary with a helper process.
var execCommandContext = exec.CommandContext

// CLI implements Cluster by invoking the kubectl binary.
type CLI struct {
	Names   Names
	Binary  string // defaults to "kubectl"
	Context string // optional --context

	ScaleTimeout time.Duration
	ProbeTimeout time.Duration
	PollInterval time.Duration
}

// NewCLI creates a kubectl-backed Cluster with the default operation bounds.
func NewCLI(names Names, binary, kubeContext string) *CLI {
	if binary == "" {
		binary = "kubectl"
	}
	return &CLI{
		Names:        names,
		Binary:       binary,
		Context:      kubeContext,
		ScaleTimeout: ScaleTimeout,
		ProbeTimeout: EndpointProbeTimeout,
		PollInterval: EndpointPollPeriod,
	}
}

// commandResult holds what a finished kubectl invocation produced.
type commandResult struct {
	stdout string
	stderr string
}

// run executes kubectl with args bounded by timeout and classifies any failure.
// The child is killed when the bound expires, so a timed out command never outlives the call.
func (c *CLI) run(ctx context.Context, op, target string, timeout time.Duration, args ...string) (commandResult, error) {
	if c.Context != "" {
		args = append([]string{"--context", c.Context}, args...)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := execCommandContext(opCtx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{stdout: stdout.String(), stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	opErr := &OpError{Op: op, Target: target, Stderr: res.stderr, Err: err}
	var exitErr *exec.ExitError
	if kind, done := contextKind(ctx, opCtx); done {
		opErr.Kind = kind
	} else if errors.As(err, &exitErr) {
		opErr.Kind = KindCommandFailed
	} else {
		opErr.Kind = KindExecutionFault
	}
	return res, opErr
}

// Scale runs `kubectl scale deployment {name} --replicas=N -n {ns}`.
func (c *CLI) Scale(ctx context.Context, unit, replicas int) error {
	name := c.Names.Deployment(unit)
	_, err := c.run(ctx, "scale", name, c.ScaleTimeout,
		"scale", "deployment", name, fmt.Sprintf("--replicas=%d", replicas), "-n", c.Names.Namespace)
	reportScale(unit, name, replicas, err)
	return err
}

// WaitPodsReady runs a single `kubectl wait --for=condition=ready pod -l ...` bounded by timeout plus a grace period.
func (c *CLI) WaitPodsReady(ctx context.Context, unit int, timeout time.Duration) error {
	name := c.Names.Deployment(unit)
	reportPodsWaiting(unit, name)

	seconds := int(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	_, err := c.run(ctx, "wait-pods", c.Names.PodSelector(unit), timeout+PodWaitGrace,
		"wait", "--for=condition=ready", "pod",
		"-l", c.Names.PodSelector(unit),
		"-n", c.Names.Namespace,
		fmt.Sprintf("--timeout=%ds", seconds))

	var opErr *OpError
	if errors.As(err, &opErr) && opErr.Kind == KindCommandFailed {
		// kubectl wait exits non-zero when the pods did not become ready in time.
		opErr.Kind = KindNotReady
	}
	reportPodsReady(unit, name, err)
	return err
}

// WaitEndpointsReady polls the Endpoints and EndpointSlice views of the unit's service.
// A failing probe counts as "not ready yet"; only the overall deadline ends the loop.
func (c *CLI) WaitEndpointsReady(ctx context.Context, unit int, timeout time.Duration) error {
	service := c.Names.Service(unit)
	reportEndpointsWaiting(unit, service)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.hasEndpoints(ctx, service) || c.hasEndpointSlices(ctx, service) {
			reportEndpointsReady(unit, service, nil)
			return nil
		}

		select {
		case <-ctx.Done():
			err := &OpError{Op: "wait-endpoints", Target: service, Kind: KindCanceled, Err: ctx.Err()}
			reportEndpointsReady(unit, service, err)
			return err
		case <-time.After(c.PollInterval):
		}
	}

	err := &OpError{Op: "wait-endpoints", Target: service, Kind: KindNotReady,
		Err: fmt.Errorf("no endpoints after %s", timeout)}
	reportEndpointsReady(unit, service, err)
	return err
}

func (c *CLI) hasEndpoints(ctx context.Context, service string) bool {
	res, err := c.run(ctx, "get-endpoints", service, c.ProbeTimeout,
		"get", "endpoints", service,
		"-n", c.Names.Namespace,
		"-o", "jsonpath={.subsets[*].addresses[*].ip}")
	return err == nil && strings.TrimSpace(res.stdout) != ""
}

func (c *CLI) hasEndpointSlices(ctx context.Context, service string) bool {
	res, err := c.run(ctx, "get-endpointslices", service, c.ProbeTimeout,
		"get", "endpointslices",
		"-n", c.Names.Namespace,
		"-l", "kubernetes.io/service-name="+service,
		"-o", "jsonpath={.items[*].endpoints[*].addresses[*]}")
	return err == nil && strings.TrimSpace(res.stdout) != ""
}

// ExternalAddress reads the load balancer ingress of a service.
func (c *CLI) ExternalAddress(ctx context.Context, namespace, service string) (string, error) {
	res, err := c.run(ctx, "get-service", namespace+"/"+service, c.ProbeTimeout,
		"get", "svc", service,
		"-n", namespace,
		"-o", "jsonpath={.status.loadBalancer.ingress[0].ip}{.status.loadBalancer.ingress[0].hostname}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.stdout), nil
}

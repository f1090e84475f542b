package portforwarding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"sumctl/internal/kube"
)

// execCommand allows tests to substitute the kubectl binary.
// Tunnel processes outlive the Open call, so they are not tied to its context.
var execCommand = exec.Command

// ProcessOpener runs one "kubectl port-forward" process per tunnel.
type ProcessOpener struct {
	Binary      string // defaults to "kubectl"
	KubeContext string
}

// Open releases the reservation and starts kubectl on the same port.
// Another process may grab the port in between; the settle check catches that.
func (o *ProcessOpener) Open(ctx context.Context, target Target, res *Reservation) (Tunnel, error) {
	localPort := res.Port()
	if err := res.Release(); err != nil {
		return nil, &kube.OpError{Op: "port-forward", Target: target.Service, Kind: kube.KindPortUnavailable, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &kube.OpError{Op: "port-forward", Target: target.Service, Kind: kube.KindCanceled, Err: err}
	}

	binary := o.Binary
	if binary == "" {
		binary = "kubectl"
	}
	args := []string{"port-forward"}
	if o.KubeContext != "" {
		args = append(args, "--context", o.KubeContext)
	}
	args = append(args,
		"svc/"+target.Service,
		fmt.Sprintf("%d:%d", localPort, target.RemotePort),
		"-n", target.Namespace,
	)

	cmd := execCommand(binary, args...)
	p := &processTunnel{
		cmd:       cmd,
		localPort: localPort,
		done:      make(chan struct{}),
	}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, &kube.OpError{Op: "port-forward", Target: target.Service, Kind: kube.KindExecutionFault, Err: err}
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type processTunnel struct {
	cmd       *exec.Cmd
	localPort int
	stdout    syncBuffer
	stderr    syncBuffer

	done    chan struct{}
	waitErr error // valid once done is closed

	stopOnce sync.Once
	stopErr  error
}

func (p *processTunnel) LocalPort() int        { return p.localPort }
func (p *processTunnel) Done() <-chan struct{} { return p.done }

func (p *processTunnel) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *processTunnel) Diagnostics() string {
	if s := strings.TrimSpace(p.stderr.String()); s != "" {
		return s
	}
	select {
	case <-p.done:
		if p.waitErr != nil {
			return p.waitErr.Error()
		}
	default:
	}
	return ""
}

// Stop sends SIGTERM, waits up to grace and kills the process if it is still running.
func (p *processTunnel) Stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop(grace)
	})
	return p.stopErr
}

func (p *processTunnel) stop(grace time.Duration) error {
	if !p.Alive() || p.cmd.Process == nil {
		return nil
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		// If SIGTERM fails, force kill
		if kerr := p.cmd.Process.Kill(); kerr != nil && p.Alive() {
			return fmt.Errorf("failed to kill port-forward process %d: %w", p.cmd.Process.Pid, kerr)
		}
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	if err := p.cmd.Process.Kill(); err != nil && p.Alive() {
		return fmt.Errorf("failed to kill port-forward process %d: %w", p.cmd.Process.Pid, err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("port-forward process %d did not exit after kill", p.cmd.Process.Pid)
	}
}

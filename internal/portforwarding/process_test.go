package portforwarding

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"sumctl/internal/kube"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortForward replaces execCommand with a re-exec of the test binary running
// TestHelperProcess in mode. It returns a function listing the argument vectors seen.
func fakePortForward(t *testing.T, mode string) func() [][]string {
	t.Helper()
	var mu sync.Mutex
	var calls [][]string

	original := execCommand
	t.Cleanup(func() { execCommand = original })

	execCommand = func(name string, args ...string) *exec.Cmd {
		mu.Lock()
		calls = append(calls, append([]string{name}, args...))
		mu.Unlock()

		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.Command(os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)
		return cmd
	}

	return func() [][]string {
		mu.Lock()
		defer mu.Unlock()
		return append([][]string(nil), calls...)
	}
}

// TestHelperProcess is not a real test. It stands in for "kubectl port-forward".
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("HELPER_MODE") {
	case "serve":
		fmt.Fprintln(os.Stdout, "Forwarding from 127.0.0.1 -> 8000")
		time.Sleep(time.Minute)
	case "exit":
		fmt.Fprintln(os.Stderr, `error: services "suma-digito-1" not found`)
		os.Exit(1)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func openProcess(t *testing.T, opener *ProcessOpener) Tunnel {
	t.Helper()
	res, err := Allocate(0)
	require.NoError(t, err)
	tun, err := opener.Open(context.Background(), Target{Unit: 1, Namespace: "calculadora-suma", Service: "suma-digito-1", RemotePort: 8000}, res)
	require.NoError(t, err)
	t.Cleanup(func() { tun.Stop(100 * time.Millisecond) })
	return tun
}

func TestProcessOpener_Arguments(t *testing.T) {
	calls := fakePortForward(t, "serve")

	tun := openProcess(t, &ProcessOpener{KubeContext: "kind-suma"})

	require.Len(t, calls(), 1)
	assert.Equal(t, []string{
		"kubectl", "port-forward", "--context", "kind-suma",
		"svc/suma-digito-1", fmt.Sprintf("%d:8000", tun.LocalPort()),
		"-n", "calculadora-suma",
	}, calls()[0])
	assert.True(t, tun.Alive())
}

func TestProcessOpener_StopTerminates(t *testing.T) {
	fakePortForward(t, "serve")
	tun := openProcess(t, &ProcessOpener{})

	require.NoError(t, tun.Stop(2*time.Second))
	assert.False(t, tun.Alive())
	require.NoError(t, tun.Stop(2*time.Second), "second stop is a no-op")
}

func TestProcessOpener_ForceKillsAfterGrace(t *testing.T) {
	fakePortForward(t, "stubborn")
	tun := openProcess(t, &ProcessOpener{})
	// give the helper time to install its signal handler
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, tun.Stop(100*time.Millisecond))
	assert.False(t, tun.Alive())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessOpener_ExitCapturesStderr(t *testing.T) {
	fakePortForward(t, "exit")
	tun := openProcess(t, &ProcessOpener{})

	select {
	case <-tun.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("helper process did not exit")
	}
	assert.False(t, tun.Alive())
	assert.Contains(t, tun.Diagnostics(), `services "suma-digito-1" not found`)
}

func TestProcessOpener_MissingBinary(t *testing.T) {
	res, err := Allocate(0)
	require.NoError(t, err)

	_, err = (&ProcessOpener{Binary: "/nonexistent/kubectl"}).Open(context.Background(), Target{Service: "suma-digito-0", Namespace: "ns", RemotePort: 8000}, res)
	require.Error(t, err)
	assert.Equal(t, kube.KindExecutionFault, kube.KindOf(err))
}

func TestManager_WithProcessOpener(t *testing.T) {
	fakePortForward(t, "exit")
	m := newTestManager(t, freeBase(t), &ProcessOpener{})
	m.settle = 2 * time.Second

	err := m.Establish(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTunnelExited)
	var opErr *kube.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Contains(t, opErr.Stderr, "not found")

	fakePortForward(t, "serve")
	require.NoError(t, m.Establish(context.Background(), 1))
	assert.True(t, m.Alive(1))
	m.Teardown(1)
	assert.False(t, m.Alive(1))
}

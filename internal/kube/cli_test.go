package kube

import (
	"context"
	"testing"
	"time"

	"sumctl/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNames() Names {
	return Names{Namespace: "calculadora-suma", Prefix: "suma-digito", AppLabel: "suma-backend", UnitLabel: "digito"}
}

func newTestCLI() *CLI {
	c := NewCLI(testNames(), "kubectl", "")
	c.PollInterval = 10 * time.Millisecond
	return c
}

func TestCLI_ScaleSuccess(t *testing.T) {
	calls := fakeKubectl(t, "ok")
	rec := logging.NewRecorder()
	defer rec.Close()

	err := newTestCLI().Scale(context.Background(), 2, 1)
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "kubectl", got[0].name)
	assert.Equal(t, []string{"scale", "deployment", "suma-digito-2", "--replicas=1", "-n", "calculadora-suma"}, got[0].args)
	assert.True(t, rec.Has(logging.LevelSuccess, "suma-digito-2 scaled to 1"))
}

func TestCLI_ScaleWithContext(t *testing.T) {
	calls := fakeKubectl(t, "ok")

	c := newTestCLI()
	c.Context = "kind-demo"
	require.NoError(t, c.Scale(context.Background(), 0, 0))

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"--context", "kind-demo", "scale", "deployment", "suma-digito-0", "--replicas=0", "-n", "calculadora-suma"}, got[0].args)
}

func TestCLI_ScaleFailureKinds(t *testing.T) {
	t.Run("non-zero exit", func(t *testing.T) {
		fakeKubectl(t, "fail")
		rec := logging.NewRecorder()
		defer rec.Close()

		err := newTestCLI().Scale(context.Background(), 0, 1)
		require.Error(t, err)
		assert.Equal(t, KindCommandFailed, KindOf(err))

		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Contains(t, opErr.Stderr, "not found")
		assert.True(t, rec.Has(logging.LevelError, "Error scaling suma-digito-0"))
	})

	t.Run("timeout", func(t *testing.T) {
		fakeKubectl(t, "hang")
		rec := logging.NewRecorder()
		defer rec.Close()

		c := newTestCLI()
		c.ScaleTimeout = 200 * time.Millisecond
		err := c.Scale(context.Background(), 0, 1)
		require.Error(t, err)
		assert.Equal(t, KindTimedOut, KindOf(err))
		assert.True(t, rec.Has(logging.LevelError, "Timeout scaling suma-digito-0"))
	})

	t.Run("binary missing", func(t *testing.T) {
		rec := logging.NewRecorder()
		defer rec.Close()

		c := NewCLI(testNames(), "/nonexistent/kubectl-binary", "")
		err := c.Scale(context.Background(), 0, 1)
		require.Error(t, err)
		assert.Equal(t, KindExecutionFault, KindOf(err))
		assert.True(t, rec.Has(logging.LevelError, "Could not execute scale"))
	})

	t.Run("canceled", func(t *testing.T) {
		fakeKubectl(t, "hang")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := newTestCLI().Scale(ctx, 0, 1)
		require.Error(t, err)
		assert.Equal(t, KindCanceled, KindOf(err))
	})
}

func TestCLI_WaitPodsReady(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		calls := fakeKubectl(t, "ok")
		require.NoError(t, newTestCLI().WaitPodsReady(context.Background(), 3, 60*time.Second))

		got := calls()
		require.Len(t, got, 1)
		assert.Equal(t, []string{
			"wait", "--for=condition=ready", "pod",
			"-l", "app=suma-backend,digito=3",
			"-n", "calculadora-suma",
			"--timeout=60s",
		}, got[0].args)
	})

	t.Run("not ready", func(t *testing.T) {
		fakeKubectl(t, "fail")
		err := newTestCLI().WaitPodsReady(context.Background(), 1, time.Second)
		require.Error(t, err)
		assert.Equal(t, KindNotReady, KindOf(err))
	})

	t.Run("wait mechanism hangs past grace", func(t *testing.T) {
		fakeKubectl(t, "hang")
		start := time.Now()
		// Sub-second timeouts round up to --timeout=1s; the call is bounded by timeout+grace.
		err := newTestCLI().WaitPodsReady(context.Background(), 1, 0)
		require.Error(t, err)
		assert.Equal(t, KindTimedOut, KindOf(err))
		assert.Less(t, time.Since(start), PodWaitGrace+5*time.Second)
	})
}

func TestCLI_WaitEndpointsReady(t *testing.T) {
	tests := []struct {
		name    string
		view    string
		wantErr bool
	}{
		{"endpoint slices only", "slices", false},
		{"endpoints only", "endpoints", false},
		{"neither view", "none", true},
		{"probes keep failing", "broken", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := fakeKubectl(t, "endpoints", "HELPER_VIEW="+tt.view)
			err := newTestCLI().WaitEndpointsReady(context.Background(), 0, 300*time.Millisecond)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, KindNotReady, KindOf(err))
			// A failed probe must not abort the loop: more than one round was attempted.
			assert.Greater(t, len(calls()), 2)
		})
	}
}

func TestCLI_ExternalAddress(t *testing.T) {
	calls := fakeKubectl(t, "address")

	addr, err := newTestCLI().ExternalAddress(context.Background(), "monitoring", "grafana")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", addr)
	assert.Equal(t, []string{"get", "svc", "grafana", "-n", "monitoring", "-o",
		"jsonpath={.status.loadBalancer.ingress[0].ip}{.status.loadBalancer.ingress[0].hostname}"}, calls()[0].args)

	fakeKubectl(t, "fail")
	_, err = newTestCLI().ExternalAddress(context.Background(), "monitoring", "grafana")
	assert.Equal(t, KindCommandFailed, KindOf(err))
}

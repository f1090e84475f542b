package proxy

import (
	"context"
	"fmt"
	"time"

	"sumctl/internal/kube"
	"sumctl/internal/orchestrator"

	"github.com/stretchr/testify/mock"
)

type mockFleet struct {
	mock.Mock
	url string
}

func (m *mockFleet) MaxUnits() int { return 4 }

func (m *mockFleet) Names() kube.Names {
	return kube.Names{Namespace: "calculadora-suma", Prefix: "suma-digito", AppLabel: "suma-backend", UnitLabel: "digito"}
}

func (m *mockFleet) BringUpUnits(ctx context.Context, n int) (*orchestrator.Lease, error) {
	args := m.Called(ctx, n)
	lease, _ := args.Get(0).(*orchestrator.Lease)
	return lease, args.Error(1)
}

// Resolve points every unit at the same test backend.
func (m *mockFleet) Resolve(unit int) orchestrator.Endpoint {
	return orchestrator.Endpoint{URL: m.url, Port: 31000 + unit}
}

func (m *mockFleet) ScaleDownAsync(lease *orchestrator.Lease, delay time.Duration) {
	m.Called(lease, delay)
}

type fakeLookup map[string]string

func (f fakeLookup) ExternalAddress(ctx context.Context, namespace, service string) (string, error) {
	addr, ok := f[namespace+"/"+service]
	if !ok {
		return "", fmt.Errorf("service %s/%s not found", namespace, service)
	}
	return addr, nil
}

package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type mockCluster struct {
	mock.Mock
}

func (m *mockCluster) Scale(ctx context.Context, unit, replicas int) error {
	args := m.Called(ctx, unit, replicas)
	return args.Error(0)
}

func (m *mockCluster) WaitPodsReady(ctx context.Context, unit int, timeout time.Duration) error {
	args := m.Called(ctx, unit, timeout)
	return args.Error(0)
}

func (m *mockCluster) WaitEndpointsReady(ctx context.Context, unit int, timeout time.Duration) error {
	args := m.Called(ctx, unit, timeout)
	return args.Error(0)
}

// fakeTunnels tracks tunnel records the way the tunnel manager does.
type fakeTunnels struct {
	mu        sync.Mutex
	ports     map[int]int
	basePort  int
	failFor   map[int]error
	establish []int
	teardown  []int
}

func newFakeTunnels(basePort int) *fakeTunnels {
	return &fakeTunnels{ports: make(map[int]int), basePort: basePort, failFor: make(map[int]error)}
}

func (f *fakeTunnels) Establish(ctx context.Context, unit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.establish = append(f.establish, unit)
	if err := f.failFor[unit]; err != nil {
		return err
	}
	if _, ok := f.ports[unit]; !ok {
		f.ports[unit] = f.basePort + unit
	}
	return nil
}

func (f *fakeTunnels) Teardown(unit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardown = append(f.teardown, unit)
	delete(f.ports, unit)
}

func (f *fakeTunnels) LocalPort(unit int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	port, ok := f.ports[unit]
	return port, ok
}

func (f *fakeTunnels) records() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ports)
}

func (f *fakeTunnels) establishCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.establish...)
	sort.Ints(out)
	return out
}

func (f *fakeTunnels) teardownCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.teardown...)
}

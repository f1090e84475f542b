package portforwarding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sumctl/internal/kube"
	"sumctl/pkg/logging"
)

const (
	// DefaultSettleDelay is how long a new tunnel must survive before it counts as established.
	DefaultSettleDelay = 1500 * time.Millisecond
	// DefaultStopGrace bounds the graceful stop before a tunnel is forced down.
	DefaultStopGrace = 2 * time.Second
)

// Options configures a Manager.
type Options struct {
	Names       kube.Names
	BasePort    int
	ServicePort int
	InCluster   bool

	SettleDelay time.Duration
	StopGrace   time.Duration
}

// Manager owns at most one tunnel per unit.
// Every unit has its own lock, so Establish and Teardown on the same unit are serialized
// while different units proceed in parallel.
type Manager struct {
	names       kube.Names
	basePort    int
	servicePort int
	inCluster   bool
	settle      time.Duration
	grace       time.Duration
	opener      Opener

	mu    sync.Mutex // guards slots, not their contents
	slots map[int]*slot
}

type slot struct {
	mu  sync.Mutex
	rec *record
}

// record couples a tunnel with the local port it listens on.
type record struct {
	tunnel    Tunnel
	localPort int
}

// NewManager creates a Manager that opens tunnels with opener.
func NewManager(opts Options, opener Opener) *Manager {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	return &Manager{
		names:       opts.Names,
		basePort:    opts.BasePort,
		servicePort: opts.ServicePort,
		inCluster:   opts.InCluster,
		settle:      opts.SettleDelay,
		grace:       opts.StopGrace,
		opener:      opener,
		slots:       make(map[int]*slot),
	}
}

func subsystem(unit int) string { return fmt.Sprintf("Tunnel-%d", unit) }

func (m *Manager) slot(unit int, create bool) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[unit]
	if !ok && create {
		s = &slot{}
		m.slots[unit] = s
	}
	return s
}

// PreferredPort is the local port a unit asks for first.
func (m *Manager) PreferredPort(unit int) int { return m.basePort + unit }

// InCluster reports whether tunnels are skipped in favour of service DNS.
func (m *Manager) InCluster() bool { return m.inCluster }

// Establish makes sure a live tunnel to the unit's service exists.
// A live tunnel is reused and a dead one is replaced. Panics raised while opening are
// returned as errors.
func (m *Manager) Establish(ctx context.Context, unit int) (err error) {
	sub := subsystem(unit)
	service := m.names.Service(unit)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic establishing port-forward for %s: %v", service, r)
			logging.Error(sub, err, "Unexpected error creating port-forward")
		}
	}()

	if m.inCluster {
		logging.Info(sub, "In-cluster mode: no port-forward needed for %s", service)
		return nil
	}

	s := m.slot(unit, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec != nil {
		if s.rec.tunnel.Alive() {
			logging.Success(sub, "Port-forward for %s already active on port %d", service, s.rec.localPort)
			return nil
		}
		logging.Warn(sub, "Port-forward for %s on port %d has died, recreating", service, s.rec.localPort)
		s.rec = nil
	}

	preferred := m.PreferredPort(unit)
	res, err := Allocate(preferred)
	if err != nil {
		logging.Error(sub, err, "No local port available for %s", service)
		return err
	}
	// no-op once the opener has taken the listener
	defer res.Release()
	if !res.Preferred() {
		logging.Warn(sub, "Port %d is in use, using %d for %s instead", preferred, res.Port(), service)
	}

	logging.Info(sub, "Starting port-forward %s %d:%d", service, res.Port(), m.servicePort)
	tunnel, err := m.opener.Open(ctx, Target{
		Unit:       unit,
		Namespace:  m.names.Namespace,
		Service:    service,
		RemotePort: m.servicePort,
	}, res)
	if err != nil {
		logging.Error(sub, err, "Could not start port-forward for %s", service)
		return err
	}

	timer := time.NewTimer(m.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-tunnel.Done():
	case <-ctx.Done():
		if stopErr := tunnel.Stop(m.grace); stopErr != nil {
			logging.Warn(sub, "Could not stop port-forward for %s: %v", service, stopErr)
		}
		err = &kube.OpError{Op: "port-forward", Target: service, Kind: kube.KindCanceled, Err: ctx.Err()}
		logging.Warn(sub, "Port-forward for %s canceled", service)
		return err
	}

	if !tunnel.Alive() {
		diag := tunnel.Diagnostics()
		err = &kube.OpError{Op: "port-forward", Target: service, Kind: kube.KindCommandFailed, Stderr: diag, Err: ErrTunnelExited}
		logging.Error(sub, err, "Port-forward for %s exited immediately. Detail: %s", service, diag)
		return err
	}

	s.rec = &record{tunnel: tunnel, localPort: res.Port()}
	logging.Success(sub, "Port-forward established for %s on port %d", service, res.Port())
	return nil
}

// Teardown stops the unit's tunnel, if any. The record is dropped even when stopping fails.
func (m *Manager) Teardown(unit int) {
	s := m.slot(unit, false)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.rec
	if rec == nil {
		return
	}

	sub := subsystem(unit)
	service := m.names.Service(unit)

	defer func() { s.rec = nil }()
	defer func() {
		if r := recover(); r != nil {
			logging.Warn(sub, "Could not stop port-forward for %s: %v", service, r)
		}
	}()

	if !rec.tunnel.Alive() {
		logging.Debug(sub, "Port-forward for %s had already exited", service)
		return
	}
	if err := rec.tunnel.Stop(m.grace); err != nil {
		logging.Warn(sub, "Could not stop port-forward for %s: %v", service, err)
		return
	}
	logging.Info(sub, "Port-forward stopped for %s", service)
}

// TeardownAll stops every tracked tunnel.
func (m *Manager) TeardownAll() {
	for _, unit := range m.ActiveUnits() {
		m.Teardown(unit)
	}
}

// LocalPort returns the port recorded for unit, if a tunnel record exists.
func (m *Manager) LocalPort(unit int) (int, bool) {
	s := m.slot(unit, false)
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return 0, false
	}
	return s.rec.localPort, true
}

// Alive reports whether unit has a tunnel that is still forwarding.
func (m *Manager) Alive(unit int) bool {
	s := m.slot(unit, false)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil && s.rec.tunnel.Alive()
}

// ActiveUnits lists the units that currently have a tunnel record, in ascending order.
func (m *Manager) ActiveUnits() []int {
	m.mu.Lock()
	candidates := make([]int, 0, len(m.slots))
	for unit := range m.slots {
		candidates = append(candidates, unit)
	}
	m.mu.Unlock()

	var units []int
	for _, unit := range candidates {
		if _, ok := m.LocalPort(unit); ok {
			units = append(units, unit)
		}
	}
	sort.Ints(units)
	return units
}

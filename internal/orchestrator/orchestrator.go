package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sumctl/internal/kube"
	"sumctl/internal/telemetry"
	"sumctl/pkg/logging"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const subsystem = "Orchestrator"

// bringUpPlan lists the steps BringUp runs in the current mode.
func (o *Orchestrator) bringUpPlan(unit int) telemetry.Plan {
	var plan telemetry.Plan
	plan.Add(string(StepScale), "scale %s to 1 replica", o.opts.Names.Deployment(unit))
	plan.Add(string(StepWaitPods), "wait for pods to be ready")
	if o.opts.InCluster {
		plan.Add(string(StepWaitEndpoints), "wait for service endpoints")
	}
	plan.Add(string(StepTunnel), "establish tunnel")
	return plan
}

// scaleDownPlan announces one scale-down step per unit. Units that turn out to be
// leased again are reported as skipped when the operation ends.
func (o *Orchestrator) scaleDownPlan(units []int) telemetry.Plan {
	var plan telemetry.Plan
	for _, unit := range units {
		plan.Add(scaleDownStep(unit), "scale %s to 0 replicas", o.opts.Names.Deployment(unit))
	}
	return plan
}

func scaleDownStep(unit int) string {
	return fmt.Sprintf("scale-down-%d", unit)
}

// Orchestrator composes scaling, readiness and tunnelling into unit lifecycles.
// It is safe for concurrent use; a failed operation leaves it usable.
type Orchestrator struct {
	opts    Options
	cluster kube.Cluster
	tunnels Tunnels

	mu     sync.Mutex
	leases map[int]int // unit -> number of live leases holding it

	// gates serialize bring-up and scale-down of the same unit. The lease check
	// of a scale-down happens while the gate is held.
	gates []chan struct{}

	background sync.WaitGroup
}

// New creates an Orchestrator. The options are copied and never change afterwards.
func New(opts Options, cluster kube.Cluster, tunnels Tunnels) *Orchestrator {
	if opts.PodReadyTimeout <= 0 {
		opts.PodReadyTimeout = 60 * time.Second
	}
	if opts.EndpointsTimeout <= 0 {
		opts.EndpointsTimeout = 30 * time.Second
	}
	gates := make([]chan struct{}, max(opts.MaxUnits, 0))
	for i := range gates {
		gates[i] = make(chan struct{}, 1)
	}
	return &Orchestrator{
		opts:    opts,
		cluster: cluster,
		tunnels: tunnels,
		leases:  make(map[int]int),
		gates:   gates,
	}
}

// MaxUnits is the number of configured units.
func (o *Orchestrator) MaxUnits() int { return o.opts.MaxUnits }

// Names returns the naming convention of the units.
func (o *Orchestrator) Names() kube.Names { return o.opts.Names }

// InCluster reports whether units are addressed through cluster DNS.
func (o *Orchestrator) InCluster() bool { return o.opts.InCluster }

// Resolve returns the endpoint for unit. In local mode the tracked tunnel port is used
// when present; otherwise the preferred port is assumed, which is only correct once a
// tunnel has been established on it.
func (o *Orchestrator) Resolve(unit int) Endpoint {
	if o.opts.InCluster {
		return Endpoint{
			URL:  fmt.Sprintf("http://%s:%d", o.opts.Names.ServiceHost(unit), o.opts.ServicePort),
			Port: o.opts.ServicePort,
		}
	}

	port, ok := o.tunnels.LocalPort(unit)
	if !ok {
		port = o.opts.BasePort + unit
	}
	return Endpoint{URL: fmt.Sprintf("http://localhost:%d", port), Port: port}
}

func (o *Orchestrator) checkUnit(unit int) error {
	if unit < 0 || unit >= o.opts.MaxUnits {
		return fmt.Errorf("unit %d out of range [0, %d)", unit, o.opts.MaxUnits)
	}
	return nil
}

// lockUnit holds the unit's gate until the returned function is called.
func (o *Orchestrator) lockUnit(ctx context.Context, unit int) (unlock func(), err error) {
	gate := o.gates[unit]
	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", o.opts.Names.Deployment(unit), ctx.Err())
	}
}

func (o *Orchestrator) startOperation(ctx context.Context, name string, plan telemetry.Plan, attrs ...attribute.KeyValue) *telemetry.Operation {
	if o.opts.Tracer == nil {
		return nil
	}
	op, err := telemetry.Start(ctx, o.opts.Tracer, name, plan, attrs...)
	if err != nil {
		logging.Debug(subsystem, "Tracing disabled for %s: %v", name, err)
		return nil
	}
	return op
}

// BringUp scales the unit up, waits for it to become ready and opens its tunnel.
// The first failing step aborts the sequence and is returned as a *StepError.
func (o *Orchestrator) BringUp(ctx context.Context, unit int) (err error) {
	if err := o.checkUnit(unit); err != nil {
		return err
	}
	deployment := o.opts.Names.Deployment(unit)

	unlock, err := o.lockUnit(ctx, unit)
	if err != nil {
		return err
	}
	defer unlock()

	op := o.startOperation(ctx, "bring-up", o.bringUpPlan(unit), attribute.Int(telemetry.UnitKey, unit))
	defer func() { op.End(err) }()
	if op != nil {
		ctx = op.Context()
	}

	run := func(step Step, fn func(context.Context) error) error {
		if stepErr := op.RunStep(ctx, string(step), fn); stepErr != nil {
			logging.Error(subsystem, stepErr, "Bring-up of %s aborted at step %s", deployment, step)
			return &StepError{Step: step, Unit: unit, Err: stepErr}
		}
		return nil
	}

	if err = run(StepScale, func(ctx context.Context) error {
		return o.cluster.Scale(ctx, unit, 1)
	}); err != nil {
		return err
	}
	if err = run(StepWaitPods, func(ctx context.Context) error {
		return o.cluster.WaitPodsReady(ctx, unit, o.opts.PodReadyTimeout)
	}); err != nil {
		return err
	}
	if o.opts.InCluster {
		// traffic goes through the service, so its endpoints must be populated
		if err = run(StepWaitEndpoints, func(ctx context.Context) error {
			return o.cluster.WaitEndpointsReady(ctx, unit, o.opts.EndpointsTimeout)
		}); err != nil {
			return err
		}
	}
	if err = run(StepTunnel, func(ctx context.Context) error {
		return o.tunnels.Establish(ctx, unit)
	}); err != nil {
		return err
	}

	logging.Success(subsystem, "Unit %d (%s) ready at %s", unit, deployment, o.Resolve(unit).URL)
	return nil
}

// Lease records the units one caller brought up. Release it exactly once.
type Lease struct {
	units []int
	once  sync.Once
}

// Units returns the leased unit indices in ascending order.
func (l *Lease) Units() []int {
	if l == nil {
		return nil
	}
	return append([]int(nil), l.units...)
}

func (o *Orchestrator) acquire(units []int) *Lease {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, u := range units {
		o.leases[u]++
	}
	return &Lease{units: append([]int(nil), units...)}
}

// drop releases the lease's hold on its units. Later calls for the same lease are no-ops.
func (o *Orchestrator) drop(l *Lease) []int {
	var dropped []int
	l.once.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for _, u := range l.units {
			if o.leases[u] <= 1 {
				delete(o.leases, u)
			} else {
				o.leases[u]--
			}
		}
		dropped = append(dropped, l.units...)
	})
	return dropped
}

func (o *Orchestrator) leased(unit int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.leases[unit] > 0
}

// ActiveUnits lists the units currently held by at least one lease.
func (o *Orchestrator) ActiveUnits() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	units := make([]int, 0, len(o.leases))
	for u := range o.leases {
		units = append(units, u)
	}
	sort.Ints(units)
	return units
}

// BringUpUnits brings up units 0..n-1 in parallel. The returned lease covers every unit
// that was attempted, including on error, and must be released by the caller.
func (o *Orchestrator) BringUpUnits(ctx context.Context, n int) (*Lease, error) {
	if n < 1 || n > o.opts.MaxUnits {
		return nil, fmt.Errorf("cannot bring up %d unit(s): between 1 and %d supported", n, o.opts.MaxUnits)
	}
	units := make([]int, n)
	for i := range units {
		units[i] = i
	}
	lease := o.acquire(units)

	logging.Info(subsystem, "Bringing up %d unit(s)", n)
	g, gctx := errgroup.WithContext(ctx)
	for _, unit := range units {
		g.Go(func() error {
			return o.BringUp(gctx, unit)
		})
	}
	if err := g.Wait(); err != nil {
		return lease, err
	}
	return lease, nil
}

// Release drops lease and, after delay, scales down the units no other lease still holds.
// Scale-down failures are logged only. A canceled ctx during the delay skips the
// scale-down; the reconciler picks those units up later.
func (o *Orchestrator) Release(ctx context.Context, lease *Lease, delay time.Duration) error {
	if lease == nil {
		return nil
	}
	units := o.drop(lease)
	if len(units) == 0 {
		return nil
	}

	if err := sleep(ctx, delay); err != nil {
		logging.Warn(subsystem, "Scale-down of units %s canceled", formatUnits(units))
		return err
	}

	op := o.startOperation(ctx, "release", o.scaleDownPlan(units), attribute.String("sumctl.units", formatUnits(units)))
	defer op.End(nil)

	logging.Info(subsystem, "Starting automatic scale-down to 0 replicas")
	for _, unit := range units {
		if o.scaleDownIdle(ctx, op, unit) {
			logging.Info(subsystem, "%s still in use, keeping it up", o.opts.Names.Deployment(unit))
		}
	}
	logging.Success(subsystem, "Scale-down complete: pods at zero")
	return nil
}

// ScaleDownAsync releases lease in the background. Wait blocks until it has finished.
func (o *Orchestrator) ScaleDownAsync(lease *Lease, delay time.Duration) {
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Error(subsystem, fmt.Errorf("%v", r), "Background scale-down failed")
			}
		}()
		_ = o.Release(context.Background(), lease, delay)
	}()
}

// Wait blocks until every background scale-down has finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// ScaleToZero waits delay, then scales every configured unit to zero and closes its tunnel,
// whether or not it was brought up. All leases are forgotten.
func (o *Orchestrator) ScaleToZero(ctx context.Context, delay time.Duration) error {
	if err := sleep(ctx, delay); err != nil {
		return err
	}

	o.mu.Lock()
	o.leases = make(map[int]int)
	o.mu.Unlock()

	units := o.allUnits()
	op := o.startOperation(ctx, "scale-to-zero", o.scaleDownPlan(units), attribute.Int("sumctl.units", o.opts.MaxUnits))
	defer op.End(nil)

	logging.Info(subsystem, "Starting scale-down of all %d unit(s) to 0 replicas", o.opts.MaxUnits)
	for _, unit := range units {
		unlock, err := o.lockUnit(ctx, unit)
		if err != nil {
			logging.Warn(subsystem, "Skipping scale-down: %v", err)
			continue
		}
		o.scaleDown(ctx, op, unit)
		unlock()
	}
	logging.Success(subsystem, "Scale-down complete: pods at zero")
	return nil
}

// Sweep scales down every unit no lease holds. It is the reconciler's unit of work.
func (o *Orchestrator) Sweep(ctx context.Context) {
	units := o.allUnits()
	op := o.startOperation(ctx, "sweep", o.scaleDownPlan(units))
	defer op.End(nil)

	logging.Debug(subsystem, "Reconciling idle units")
	for _, unit := range units {
		if ctx.Err() != nil {
			return
		}
		o.scaleDownIdle(ctx, op, unit)
	}
}

// scaleDownIdle scales unit down unless a lease holds it, and reports whether it was kept.
// The check and the scale-down run under the unit's gate, so a lease taken meanwhile
// makes its bring-up wait and scale the unit up again afterwards.
func (o *Orchestrator) scaleDownIdle(ctx context.Context, op *telemetry.Operation, unit int) (kept bool) {
	unlock, err := o.lockUnit(ctx, unit)
	if err != nil {
		logging.Warn(subsystem, "Skipping scale-down: %v", err)
		return false
	}
	defer unlock()

	if o.leased(unit) {
		return true
	}
	o.scaleDown(ctx, op, unit)
	return false
}

func (o *Orchestrator) allUnits() []int {
	units := make([]int, o.opts.MaxUnits)
	for i := range units {
		units[i] = i
	}
	return units
}

// scaleDown is best effort: failures are logged and the tunnel is closed regardless.
func (o *Orchestrator) scaleDown(ctx context.Context, op *telemetry.Operation, unit int) {
	deployment := o.opts.Names.Deployment(unit)
	stepCtx := ctx
	if op != nil {
		stepCtx = op.Context()
	}

	logging.Info(subsystem, "Scaling %s -> 0", deployment)
	err := op.RunStep(stepCtx, scaleDownStep(unit), func(ctx context.Context) error {
		return o.cluster.Scale(ctx, unit, 0)
	})
	if err != nil {
		logging.Error(subsystem, err, "Could not scale %s to 0", deployment)
	} else {
		logging.Success(subsystem, "%s at 0 replicas", deployment)
	}

	if !o.opts.InCluster {
		o.tunnels.Teardown(unit)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func formatUnits(units []int) string {
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = fmt.Sprint(u)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

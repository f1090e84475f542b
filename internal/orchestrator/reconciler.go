package orchestrator

import (
	"context"
	"time"

	"sumctl/pkg/logging"
)

// Reconciler sweeps idle units back to zero on a fixed interval.
// It catches units left scaled up by callers that never released their lease.
type Reconciler struct {
	orch     *Orchestrator
	interval time.Duration
}

// NewReconciler creates a Reconciler. A non-positive interval disables it.
func NewReconciler(orch *Orchestrator, interval time.Duration) *Reconciler {
	return &Reconciler{orch: orch, interval: interval}
}

// Run sweeps until ctx is done. It always returns nil so it can sit in an errgroup.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		logging.Debug(subsystem, "Reconciler disabled")
		<-ctx.Done()
		return nil
	}

	logging.Info(subsystem, "Reconciling idle units every %s", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.orch.Sweep(ctx)
		}
	}
}

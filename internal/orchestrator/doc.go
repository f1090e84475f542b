// Package orchestrator brings per-digit units up on demand and scales them back to zero.
//
// # Lifecycle
//
// Bringing a unit up runs three steps in order and stops at the first failure:
//
//  1. scale the unit's deployment to one replica
//  2. wait until its pods report Ready (and, in-cluster, until its service has endpoints)
//  3. open a local tunnel to its service (skipped in-cluster)
//
// A failed step is reported as a *StepError naming the step and unit. Units that were
// already scaled are not rolled back; they are released with the rest.
//
// # Leases
//
// BringUpUnits hands out a Lease covering the units it touched. Release drops the lease
// and, after a drain delay, scales down only the units no other lease still holds.
// ScaleToZero is the unconditional sweep over every configured unit, and the
// reconciler repeats a sweep of idle units periodically to catch drift left by
// crashed callers.
//
// # Addressing
//
// Resolve maps a unit to the URL callers should use: the cluster DNS name of its
// service when running in-cluster, otherwise the local tunnel port.
package orchestrator

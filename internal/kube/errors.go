package kube

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a cluster or tunnel operation failed.
// Callers branch on Kind instead of parsing log text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindCommandFailed: the command ran and reported failure (non-zero exit, API error).
	KindCommandFailed
	// KindTimedOut: the operation did not finish within its bound.
	KindTimedOut
	// KindExecutionFault: the operation could not be executed at all (binary missing, spawn failure).
	KindExecutionFault
	// KindNotReady: a readiness wait was exhausted.
	KindNotReady
	// KindPortUnavailable: no local port could be obtained.
	KindPortUnavailable
	// KindCanceled: the caller's context was canceled.
	KindCanceled
)

// String makes Kind satisfy the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindCommandFailed:
		return "CommandFailed"
	case KindTimedOut:
		return "TimedOut"
	case KindExecutionFault:
		return "ExecutionFault"
	case KindNotReady:
		return "NotReady"
	case KindPortUnavailable:
		return "PortUnavailable"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// OpError is the error returned by every Cluster and tunnel operation.
type OpError struct {
	Op     string // e.g. "scale", "wait-pods", "wait-endpoints", "port-forward"
	Target string // deployment, service or selector the operation addressed
	Kind   Kind
	Stderr string // diagnostic output captured from the external command, if any
	Err    error
}

func (e *OpError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Op, e.Target, e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, " (stderr: %s)", s)
	}
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an error chain.
// It returns KindUnknown for nil and for errors that carry no classification.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimedOut
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// contextKind maps a finished operation context onto a failure kind.
// parent is the caller's context, opCtx the bounded context derived from it.
func contextKind(parent, opCtx context.Context) (Kind, bool) {
	if parent.Err() != nil {
		return KindCanceled, true
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return KindTimedOut, true
	}
	return KindUnknown, false
}

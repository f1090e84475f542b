package kube

import (
	"fmt"

	"sumctl/pkg/logging"
)

func scaleSubsystem(unit int) string { return fmt.Sprintf("Scale-%d", unit) }
func readySubsystem(unit int) string { return fmt.Sprintf("Ready-%d", unit) }

// reportScale logs the outcome of a scale call. Each failure kind gets its own message.
func reportScale(unit int, deployment string, replicas int, err error) {
	subsystem := scaleSubsystem(unit)
	if err == nil {
		logging.Success(subsystem, "Deployment %s scaled to %d replica(s)", deployment, replicas)
		return
	}
	switch KindOf(err) {
	case KindTimedOut:
		logging.Error(subsystem, err, "Timeout scaling %s", deployment)
	case KindExecutionFault:
		logging.Error(subsystem, err, "Could not execute scale of %s", deployment)
	case KindCanceled:
		logging.Warn(subsystem, "Scale of %s canceled", deployment)
	default:
		logging.Error(subsystem, err, "Error scaling %s", deployment)
	}
}

func reportPodsWaiting(unit int, deployment string) {
	logging.Info(readySubsystem(unit), "Waiting for pod %s to be ready...", deployment)
}

func reportPodsReady(unit int, deployment string, err error) {
	subsystem := readySubsystem(unit)
	if err == nil {
		logging.Success(subsystem, "Pod %s is ready", deployment)
		return
	}
	switch KindOf(err) {
	case KindTimedOut:
		logging.Error(subsystem, err, "Timeout waiting for pod %s", deployment)
	case KindExecutionFault:
		logging.Error(subsystem, err, "Could not execute readiness wait for pod %s", deployment)
	case KindCanceled:
		logging.Warn(subsystem, "Readiness wait for pod %s canceled", deployment)
	default:
		logging.Error(subsystem, err, "Pod %s is not ready", deployment)
	}
}

func reportEndpointsWaiting(unit int, service string) {
	logging.Info(readySubsystem(unit), "Waiting for endpoints of service %s...", service)
}

func reportEndpointsReady(unit int, service string, err error) {
	subsystem := readySubsystem(unit)
	if err == nil {
		logging.Success(subsystem, "Service %s has active endpoints", service)
		return
	}
	if IsKind(err, KindCanceled) {
		logging.Warn(subsystem, "Endpoint wait for service %s canceled", service)
		return
	}
	logging.Error(subsystem, err, "Timeout waiting for endpoints of service %s", service)
}

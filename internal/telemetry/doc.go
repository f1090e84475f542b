// Package telemetry traces orchestrator operations with OpenTelemetry.
// Each bring-up or release is a root span; scale, readiness and tunnel steps are its children.
package telemetry

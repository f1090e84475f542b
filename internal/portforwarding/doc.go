// Package portforwarding manages local tunnels to the per-unit services.
//
// Ports are negotiated by Allocate, which keeps the chosen port bound until a tunnel
// backend takes it over. Two backends implement Opener: ProcessOpener runs
// "kubectl port-forward" and StreamOpener forwards SPDY streams in-process through
// client-go. Manager keeps at most one live tunnel per unit, replaces tunnels that
// died and tears them down on request.
package portforwarding

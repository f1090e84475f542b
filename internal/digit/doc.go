// Package digit implements the single-digit adder that runs inside every unit pod,
// and the client the proxy uses to call it.
package digit

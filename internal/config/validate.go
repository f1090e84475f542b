package config

import (
	"fmt"
)

// MaxUnitsLimit is the largest unit count whose operands, up to 10^n-1, fit in an int64.
const MaxUnitsLimit = 18

// Validate checks the configuration for values sumctl cannot run with.
func (c SumctlConfig) Validate() error {
	o := c.Orchestrator
	if o.Namespace == "" {
		return fmt.Errorf("orchestrator.namespace must not be empty")
	}
	if o.MaxUnits <= 0 || o.MaxUnits > MaxUnitsLimit {
		return fmt.Errorf("orchestrator.maxUnits must be between 1 and %d, got %d", MaxUnitsLimit, o.MaxUnits)
	}
	if o.BasePort <= 0 || o.BasePort+o.MaxUnits-1 > 65535 {
		return fmt.Errorf("orchestrator.basePort %d leaves no room for %d units", o.BasePort, o.MaxUnits)
	}
	if o.ServicePort <= 0 || o.ServicePort > 65535 {
		return fmt.Errorf("orchestrator.servicePort %d is out of range", o.ServicePort)
	}
	if o.Prefix == "" {
		return fmt.Errorf("orchestrator.prefix must not be empty")
	}
	switch o.Backend {
	case BackendKubectl, BackendAPI:
	default:
		return fmt.Errorf("orchestrator.backend must be %q or %q, got %q", BackendKubectl, BackendAPI, o.Backend)
	}
	if o.PodReadyTimeout < 0 || o.EndpointsTimeout < 0 || o.ScaleDownDelay < 0 || o.ReconcileInterval < 0 {
		return fmt.Errorf("orchestrator timeouts must not be negative")
	}
	if c.Proxy.Port < 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port %d is out of range", c.Proxy.Port)
	}
	if c.Proxy.DigitAttempts < 0 {
		return fmt.Errorf("proxy.digitAttempts must not be negative, got %d", c.Proxy.DigitAttempts)
	}
	for name, ref := range c.Proxy.ExternalServices {
		if ref.Service == "" || ref.Namespace == "" {
			return fmt.Errorf("proxy.externalServices.%s needs both namespace and service", name)
		}
	}
	return nil
}

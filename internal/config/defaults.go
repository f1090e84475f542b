package config

import (
	"time"
)

const (
	DefaultNamespace         = "calculadora-suma"
	DefaultMaxUnits          = 4
	DefaultBasePort          = 31000
	DefaultServicePort       = 8000
	DefaultPrefix            = "suma-digito"
	DefaultAppLabel          = "suma-backend"
	DefaultUnitLabel         = "digito"
	DefaultPodReadyTimeout   = 60 * time.Second
	DefaultEndpointsTimeout  = 30 * time.Second
	DefaultScaleDownDelay    = 2 * time.Second
	DefaultProxyPort         = 8080
	DefaultDigitTimeout      = 5 * time.Second
	DefaultDigitAttempts     = 3
	DefaultRetryBackoff      = 1 * time.Second
	DefaultLogBuffer         = 500
	DefaultTelemetryService  = "sumctl"
	inClusterEnvVar          = "SUMCTL_IN_CLUSTER"
	kubernetesServiceHostEnv = "KUBERNETES_SERVICE_HOST"
)

// GetDefaultConfig returns the configuration sumctl runs with when no file overrides it.
func GetDefaultConfig() SumctlConfig {
	return SumctlConfig{
		Orchestrator: OrchestratorConfig{
			Namespace:        DefaultNamespace,
			MaxUnits:         DefaultMaxUnits,
			BasePort:         DefaultBasePort,
			ServicePort:      DefaultServicePort,
			Prefix:           DefaultPrefix,
			AppLabel:         DefaultAppLabel,
			UnitLabel:        DefaultUnitLabel,
			Backend:          BackendKubectl,
			Kubectl:          "kubectl",
			PodReadyTimeout:  DefaultPodReadyTimeout,
			EndpointsTimeout: DefaultEndpointsTimeout,
			ScaleDownDelay:   DefaultScaleDownDelay,
		},
		Proxy: ProxyConfig{
			Host:          "0.0.0.0",
			Port:          DefaultProxyPort,
			StaticDir:     ".",
			DigitTimeout:  DefaultDigitTimeout,
			DigitAttempts: DefaultDigitAttempts,
			RetryBackoff:  DefaultRetryBackoff,
			LogBuffer:     DefaultLogBuffer,
			ExternalServices: map[string]ServiceRef{
				"docs":    {Namespace: DefaultNamespace, Service: "suma-docs"},
				"grafana": {Namespace: "monitoring", Service: "grafana"},
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultTelemetryService,
		},
		LogLevel: "info",
	}
}

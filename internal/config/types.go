package config

import (
	"time"
)

// SumctlConfig is the top-level configuration structure for sumctl.
type SumctlConfig struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Proxy        ProxyConfig        `yaml:"proxy"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	LogLevel     string             `yaml:"logLevel,omitempty"` // debug, info, warn, error
}

// Backend selects how sumctl talks to the cluster.
type Backend string

const (
	// BackendKubectl shells out to the kubectl binary for every cluster operation
	// and uses `kubectl port-forward` processes as tunnels.
	BackendKubectl Backend = "kubectl"
	// BackendAPI talks to the API server through client-go and keeps tunnels in-process.
	BackendAPI Backend = "api"
)

// OrchestratorConfig describes the fleet of units and how to reach them.
// It is treated as immutable once an orchestrator has been built from it.
type OrchestratorConfig struct {
	Namespace   string `yaml:"namespace,omitempty"`   // Namespace holding the unit deployments and services
	MaxUnits    int    `yaml:"maxUnits,omitempty"`    // Number of units, indexed 0..MaxUnits-1
	BasePort    int    `yaml:"basePort,omitempty"`    // Preferred local port for unit 0; unit i prefers BasePort+i
	InCluster   bool   `yaml:"inCluster,omitempty"`   // Address units through cluster DNS instead of tunnels
	ServicePort int    `yaml:"servicePort,omitempty"` // Port every unit service listens on

	Prefix    string `yaml:"prefix,omitempty"`    // Deployment and service name prefix, e.g. "suma-digito"
	AppLabel  string `yaml:"appLabel,omitempty"`  // Value of the "app" label shared by all unit pods
	UnitLabel string `yaml:"unitLabel,omitempty"` // Label key carrying the unit index

	Backend     Backend `yaml:"backend,omitempty"`     // "kubectl" or "api"
	Kubectl     string  `yaml:"kubectl,omitempty"`     // kubectl binary, defaults to "kubectl" on PATH
	KubeContext string  `yaml:"kubeContext,omitempty"` // Optional kubeconfig context

	PodReadyTimeout   time.Duration `yaml:"podReadyTimeout,omitempty"`
	EndpointsTimeout  time.Duration `yaml:"endpointsTimeout,omitempty"`
	ScaleDownDelay    time.Duration `yaml:"scaleDownDelay,omitempty"`
	ReconcileInterval time.Duration `yaml:"reconcileInterval,omitempty"` // 0 disables the periodic full sweep
}

// ProxyConfig configures the HTTP front end that fans additions out to units.
type ProxyConfig struct {
	Host          string        `yaml:"host,omitempty"`
	Port          int           `yaml:"port,omitempty"`
	StaticDir     string        `yaml:"staticDir,omitempty"` // Directory served at "/" (index.html, script.js)
	DigitTimeout  time.Duration `yaml:"digitTimeout,omitempty"`
	DigitAttempts int           `yaml:"digitAttempts,omitempty"` // Calls per digit before the addition fails
	RetryBackoff  time.Duration `yaml:"retryBackoff,omitempty"`
	KeepWarm      bool          `yaml:"keepWarm,omitempty"`  // Skip the automatic scale-down after each addition
	LogBuffer     int           `yaml:"logBuffer,omitempty"` // Log entries replayed to new terminal clients

	// ExternalServices are LoadBalancer services whose address the UI links to,
	// keyed by link name ("docs", "grafana").
	ExternalServices map[string]ServiceRef `yaml:"externalServices,omitempty"`
}

// ServiceRef names a service in a namespace.
type ServiceRef struct {
	Namespace string `yaml:"namespace"`
	Service   string `yaml:"service"`
}

// TelemetryConfig toggles tracing of orchestration operations.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty"`
}

// Package config provides configuration management for sumctl.
//
// Configuration is loaded and merged in the following order, later layers
// overriding earlier ones:
//
//  1. Default Configuration (embedded in binary)
//  2. User Configuration (~/.config/sumctl/config.yaml)
//  3. Project Configuration (./.sumctl/config.yaml)
//  4. Environment (SUMCTL_IN_CLUSTER=true|false)
//
// # Configuration Structure
//
//	orchestrator:
//	  namespace: calculadora-suma
//	  maxUnits: 4
//	  basePort: 31000
//	  servicePort: 8000
//	  inCluster: false
//	  prefix: suma-digito
//	  backend: kubectl       # or "api"
//	  podReadyTimeout: 60s
//	  reconcileInterval: 5m  # periodic scale-to-zero sweep, 0 disables
//
//	proxy:
//	  port: 8080
//	  staticDir: ./web
//
// Command line flags on `sumctl serve` override the loaded values.
package config

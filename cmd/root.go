package cmd

import (
	"fmt"
	"os"
	"sync"

	"sumctl/internal/color"
	"sumctl/internal/config"
	"sumctl/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	logLevel    string
	kubeContext string
	backend     string
	namespace   string
	inCluster   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sumctl",
	Short: "Scale per-digit addition pods on demand and serve the addition proxy",
	Long: `sumctl orchestrates a fleet of single-digit addition units on Kubernetes.
Each unit is a deployment scaled to zero while idle. sumctl scales units up when
an addition needs them, waits for their pods, opens local tunnels and scales
them back down afterwards.

Configuration is read from ~/.config/sumctl/config.yaml and .sumctl/config.yaml,
in that order; flags override both.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. unreachable cluster, failed bring-up)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "sumctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newUpCmd())
	rootCmd.AddCommand(newDownCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newDigitCmd())
	rootCmd.AddCommand(newVersionCmd())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: layered user and project config)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides logLevel)")
	flags.StringVar(&kubeContext, "context", "", "kubeconfig context to use")
	flags.StringVar(&backend, "backend", "", "cluster backend: kubectl or api")
	flags.StringVarP(&namespace, "namespace", "n", "", "namespace holding the units")
	flags.BoolVar(&inCluster, "in-cluster", false, "address units through cluster DNS instead of tunnels")
}

// loadConfig reads the layered configuration and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.SumctlConfig, error) {
	var (
		cfg config.SumctlConfig
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadConfigFromPath(cfgFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return config.SumctlConfig{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("context") {
		cfg.Orchestrator.KubeContext = kubeContext
	}
	if flags.Changed("backend") {
		cfg.Orchestrator.Backend = config.Backend(backend)
	}
	if flags.Changed("namespace") {
		cfg.Orchestrator.Namespace = namespace
	}
	if flags.Changed("in-cluster") {
		cfg.Orchestrator.InCluster = inCluster
	}
	if err := cfg.Validate(); err != nil {
		return config.SumctlConfig{}, err
	}

	if err := initLogging(cfg.LogLevel); err != nil {
		return config.SumctlConfig{}, err
	}
	return cfg, nil
}

var (
	consoleMu     sync.Mutex
	removeConsole func()
)

// initLogging routes log entries to a styled console sink on stderr.
func initLogging(level string) error {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	color.InitializeFromEnv()
	logging.InitQuiet(lvl)

	consoleMu.Lock()
	defer consoleMu.Unlock()
	if removeConsole != nil {
		removeConsole()
	}
	removeConsole = logging.AddSink(color.ConsoleSink(os.Stderr))
	return nil
}

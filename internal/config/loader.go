package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd
var osLookupEnv = os.LookupEnv

const (
	userConfigDir    = ".config/sumctl"
	projectConfigDir = ".sumctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the sumctl configuration by layering default, user, and project settings,
// then applies environment overrides and validates the result.
func LoadConfig() (SumctlConfig, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. Determine user-specific configuration path
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// Log this error but don't fail; user config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			if err := overlayFile(&config, userConfigPath); err != nil {
				return SumctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
		}
	}

	// 3. Determine project-specific configuration path
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			if err := overlayFile(&config, projectConfigPath); err != nil {
				return SumctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
		}
	}

	// 4. Environment
	config = applyEnv(config)

	if err := config.Validate(); err != nil {
		return SumctlConfig{}, err
	}
	return config, nil
}

// LoadConfigFromPath loads defaults overlaid with a single explicit file.
func LoadConfigFromPath(path string) (SumctlConfig, error) {
	config := GetDefaultConfig()
	if err := overlayFile(&config, path); err != nil {
		return SumctlConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config = applyEnv(config)
	if err := config.Validate(); err != nil {
		return SumctlConfig{}, err
	}
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir() // Use mockable variable
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd() // Use mockable variable
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// overlayFile decodes a YAML file on top of config. Only keys present in the file
// change anything, so an explicit 0 or false overrides an earlier layer while an
// absent key keeps it. Map entries such as externalServices are merged by name.
func overlayFile(config *SumctlConfig, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyEnv lets the deployment environment force in-cluster addressing.
// SUMCTL_IN_CLUSTER wins when set; otherwise nothing changes.
func applyEnv(config SumctlConfig) SumctlConfig {
	if v, ok := osLookupEnv(inClusterEnvVar); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Orchestrator.InCluster = b
		}
	}
	return config
}

// RunningInCluster reports whether the process appears to run inside a pod.
func RunningInCluster() bool {
	_, ok := osLookupEnv(kubernetesServiceHostEnv)
	return ok
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

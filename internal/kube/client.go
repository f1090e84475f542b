package kube

import (
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // Important for various auth providers
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientsetFromConfig is a package-level variable for creating a clientset from rest.Config.
// Exported to allow overriding in tests.
var NewClientsetFromConfig = func(c *rest.Config) (kubernetes.Interface, error) {
	return kubernetes.NewForConfig(c)
}

// inClusterConfig allows tests to simulate running inside a pod.
var inClusterConfig = rest.InClusterConfig

// RESTConfig builds the client configuration. Inside a pod the service account is used;
// otherwise kubeconfig is loaded with the optional context override.
func RESTConfig(kubeContext string, inCluster bool) (*rest.Config, error) {
	if inCluster {
		restConfig, err := inClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get in-cluster REST config: %w", err)
		}
		return restConfig, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{}
	// If a specific context name is provided, use it.
	// Otherwise it will use the current context from kubeconfig.
	if kubeContext != "" {
		configOverrides.CurrentContext = kubeContext
	}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)

	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", kubeContext, err)
	}
	restConfig.Timeout = 30 * time.Second
	return restConfig, nil
}

// NewClientset returns a clientset together with the REST config it was built from.
// The REST config is needed again for SPDY port-forward streams.
func NewClientset(kubeContext string, inCluster bool) (kubernetes.Interface, *rest.Config, error) {
	restConfig, err := RESTConfig(kubeContext, inCluster)
	if err != nil {
		return nil, nil, err
	}
	clientset, err := NewClientsetFromConfig(restConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	return clientset, restConfig, nil
}

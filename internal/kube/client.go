package kube

import (
	"errors"
	"fmt"

	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // register auth providers
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrNoReadyPod indicates no pod matching a selector became ready in time.
	ErrNoReadyPod = errors.New("no ready pod found")
)

// Client bundles the typed clientset with the rest.Config it was built
// from. The config is needed separately for SPDY-based subresources
// (exec, port-forward).
type Client struct {
	Clientset  kubernetes.Interface
	RESTConfig *rest.Config
}

// NewClient builds a Client from the local kubeconfig using the default
// loading rules. kubeContext overrides the current context when non-empty.
func NewClient(kubeContext string) (*Client, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)

	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig for context %q: %w", kubeContext, err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	return &Client{Clientset: clientset, RESTConfig: restConfig}, nil
}

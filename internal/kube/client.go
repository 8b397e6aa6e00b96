// Package kube builds clients for the cluster API.
package kube

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Clients bundles the typed and dynamic cluster clients.
type Clients struct {
	Kubernetes kubernetes.Interface
	Dynamic    dynamic.Interface
}

// homeDir returns the user's home directory.
func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // Windows
}

// RESTConfig tries the in-cluster configuration first and falls back to a
// kubeconfig file for local development. An empty kubeconfig means
// ~/.kube/config.
func RESTConfig(kubeconfig string, log *slog.Logger) (*rest.Config, error) {
	if kubeconfig == "" {
		config, err := rest.InClusterConfig()
		if err == nil {
			return config, nil
		}
		log.Debug("In-cluster config not available, trying kubeconfig", "error", err)
		kubeconfig = filepath.Join(homeDir(), ".kube", "config")
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
	}
	log.Info("Using kubeconfig", "path", kubeconfig)
	return config, nil
}

// NewClients creates the typed and dynamic clients for a REST config.
func NewClients(config *rest.Config) (*Clients, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return &Clients{Kubernetes: clientset, Dynamic: dyn}, nil
}

package kube

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mehdiazizian/metrics-server-prom/internal/transport"
)

// Source implements MetricsSource through the API server, reading the
// metrics.k8s.io group with the caller's credentials.
type Source struct {
	client rest.Interface
}

// NewSource builds a source from a kubeconfig path. An empty path falls back
// to the in-cluster config, $KUBECONFIG or ~/.kube/config.
func NewSource(kubeconfigPath string, timeout time.Duration) (*Source, error) {
	cfg, err := loadConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	cfg.Timeout = timeout
	return NewSourceForConfig(cfg)
}

// NewSourceForConfig builds a source from an existing REST config.
func NewSourceForConfig(cfg *rest.Config) (*Source, error) {
	clientset, err := metricsclient.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}
	return &Source{client: clientset.MetricsV1beta1().RESTClient()}, nil
}

// loadConfig loads kubeconfig from file
func loadConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		return ctrl.GetConfig()
	}

	// Expand ~ to home directory
	if len(kubeconfigPath) >= 2 && kubeconfigPath[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		kubeconfigPath = filepath.Join(home, kubeconfigPath[2:])
	}

	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

// Fetch lists the resource across all namespaces and returns the raw body.
func (s *Source) Fetch(ctx context.Context, resource transport.Resource) (*transport.Response, error) {
	logger := log.FromContext(ctx).WithName("kube-source")

	var statusCode int
	result := s.client.Get().Resource(string(resource)).Do(ctx).StatusCode(&statusCode)
	body, err := result.Raw()
	if statusCode == 0 {
		// Either no response arrived or the error body could not be decoded
		if err == nil {
			err = fmt.Errorf("empty response")
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", resource, err)
	}
	if err != nil {
		logger.V(1).Info("Metrics API returned an error",
			"resource", resource,
			"status", statusCode,
			"error", err.Error())
	}

	return &transport.Response{
		StatusCode: statusCode,
		Body:       body,
	}, nil
}

// Close is a no-op, the REST client owns no resources to release.
func (s *Source) Close() error {
	return nil
}

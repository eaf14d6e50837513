// Package config holds the runtime configuration of the exporter.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Source selects how the metrics API is reached.
type Source string

const (
	// SourceProxy talks plain HTTP to a metrics API endpoint such as kubectl proxy
	SourceProxy Source = "proxy"

	// SourceKubernetes talks to the API server with kubeconfig or in-cluster credentials
	SourceKubernetes Source = "kubernetes"
)

// Config is the exporter configuration. Zero values are filled by Default.
type Config struct {
	// BindAddress is the address the exporter listens on
	BindAddress string `json:"bindAddress"`

	// TelemetryBindAddress serves the exporter's own metrics, "0" disables it
	TelemetryBindAddress string `json:"telemetryBindAddress"`

	Source Source `json:"source"`

	// UpstreamURL is the base URL of the metrics API for the proxy source
	UpstreamURL string `json:"upstreamURL"`

	// UpstreamCertPath holds tls.crt, tls.key and ca.crt for mTLS (optional)
	UpstreamCertPath string `json:"upstreamCertPath,omitempty"`

	// Kubeconfig for the kubernetes source, empty uses in-cluster config
	Kubeconfig string `json:"kubeconfig,omitempty"`

	// RequestTimeout bounds each upstream fetch
	RequestTimeout metav1.Duration `json:"requestTimeout"`

	// MaxRetries for upstream 5xx and transport errors (proxy source)
	MaxRetries int `json:"maxRetries"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP servers
	ShutdownTimeout metav1.Duration `json:"shutdownTimeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BindAddress:          ":5000",
		TelemetryBindAddress: "0",
		Source:               SourceProxy,
		UpstreamURL:          "http://127.0.0.1:8080",
		RequestTimeout:       metav1.Duration{Duration: 10 * time.Second},
		MaxRetries:           2,
		ShutdownTimeout:      metav1.Duration{Duration: 15 * time.Second},
	}
}

// Load reads a YAML (or JSON) file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the exporter cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.BindAddress == "" {
		errs = append(errs, errors.New("bindAddress must not be empty"))
	}

	switch c.Source {
	case SourceProxy:
		u, err := url.Parse(c.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("upstreamURL %q must be an absolute URL", c.UpstreamURL))
		}
	case SourceKubernetes:
	default:
		errs = append(errs, fmt.Errorf("unknown source %q (want %s or %s)", c.Source, SourceProxy, SourceKubernetes))
	}

	if c.RequestTimeout.Duration <= 0 {
		errs = append(errs, errors.New("requestTimeout must be positive"))
	}
	if c.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, errors.New("shutdownTimeout must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("maxRetries must not be negative"))
	}

	return errors.Join(errs...)
}

// TelemetryEnabled reports whether the self-metrics listener should run.
func (c Config) TelemetryEnabled() bool {
	return c.TelemetryBindAddress != "" && c.TelemetryBindAddress != "0"
}

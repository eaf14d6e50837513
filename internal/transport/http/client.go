package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mehdiazizian/metrics-server-prom/internal/transport"
)

// maxBodyBytes bounds how much of an upstream body is read.
const maxBodyBytes = 64 << 20

// Options configures a Source.
type Options struct {
	// BaseURL of the upstream, e.g. http://127.0.0.1:8080 for kubectl proxy
	BaseURL string

	// CertPath is a directory holding tls.crt, tls.key and ca.crt.
	// Empty disables client certificates.
	CertPath string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// InitialBackoff is the wait before the first retry, doubled afterwards
	InitialBackoff time.Duration
}

// Source implements MetricsSource over plain HTTP
type Source struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	backoff    time.Duration
}

// NewSource creates an HTTP metrics source, with mTLS when a cert path is set
func NewSource(opts Options) (*Source, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("upstream base URL is required")
	}

	// Create HTTP client with connection pooling
	httpTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if opts.CertPath != "" {
		tlsConfig, err := loadTLSConfig(opts.CertPath)
		if err != nil {
			return nil, err
		}
		httpTransport.TLSClientConfig = tlsConfig
	}

	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Source{
		httpClient: &http.Client{
			Transport: httpTransport,
			Timeout:   opts.Timeout,
		},
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		maxRetries: opts.MaxRetries,
		backoff:    backoff,
	}, nil
}

// loadTLSConfig builds a client TLS config from tls.crt, tls.key and ca.crt
func loadTLSConfig(certPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(
		filepath.Join(certPath, "tls.crt"),
		filepath.Join(certPath, "tls.key"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(filepath.Join(certPath, "ca.crt"))
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Fetch retrieves the list of the given resource from the upstream
func (s *Source) Fetch(ctx context.Context, resource transport.Resource) (*transport.Response, error) {
	logger := log.FromContext(ctx).WithName("http-source")

	url := s.baseURL + resource.Path()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.doWithRetry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", resource, err)
	}

	logger.V(1).Info("Fetched metrics",
		"resource", resource,
		"status", resp.StatusCode,
		"bytes", len(resp.Body))

	return resp, nil
}

// Close cleans up resources
func (s *Source) Close() error {
	// Close idle connections
	s.httpClient.CloseIdleConnections()
	return nil
}

// doWithRetry executes the request, retrying transport errors and 5xx
// responses with exponential backoff. The last 5xx response is returned
// once retries are exhausted.
func (s *Source) doWithRetry(ctx context.Context, req *http.Request) (*transport.Response, error) {
	backoff := wait.Backoff{
		Steps:    s.maxRetries + 1,
		Duration: s.backoff,
		Factor:   2.0,
		Jitter:   0.1,
	}

	var (
		last    *transport.Response
		lastErr error
	)
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		last, lastErr = s.do(req.Clone(ctx))
		if lastErr != nil {
			return false, nil
		}
		// Retry on 5xx errors (server errors)
		return last.StatusCode < http.StatusInternalServerError, nil
	})

	switch {
	case err == nil:
		return last, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case lastErr != nil:
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	case last != nil:
		return last, nil
	default:
		return nil, err
	}
}

func (s *Source) do(req *http.Request) (*transport.Response, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &transport.Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

package transport

import (
	"context"
	"fmt"
)

// Resource is a kind of object served by the metrics API.
type Resource string

const (
	// ResourceNodes selects node metrics
	ResourceNodes Resource = "nodes"

	// ResourcePods selects pod metrics across all namespaces
	ResourcePods Resource = "pods"
)

// MetricsAPIPrefix is the path of the metrics.k8s.io API group version.
const MetricsAPIPrefix = "/apis/metrics.k8s.io/v1beta1"

// Path returns the API path listing all objects of the resource.
func (r Resource) Path() string {
	return fmt.Sprintf("%s/%s", MetricsAPIPrefix, r)
}

// Response is a complete upstream response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered 200.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == 200
}

// MetricsSource abstracts how metrics API payloads are fetched
// Implementations: plain HTTP (kubectl proxy), Kubernetes REST client
type MetricsSource interface {
	// Fetch returns the whole response body for the resource list.
	// A non-nil error means no response was received.
	Fetch(ctx context.Context, resource Resource) (*Response, error)

	// Close cleans up resources
	Close() error
}

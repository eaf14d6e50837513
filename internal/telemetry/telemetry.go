// Package telemetry instruments the exporter itself: scrapes served and
// upstream metrics API calls. These series live on their own registry and
// are never mixed into the converted /metrics output.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
)

const namespace = "metrics_server_prom"

// codeError labels upstream calls that produced no HTTP status.
const codeError = "error"

// Recorder records exporter activity. A nil *Recorder discards everything.
type Recorder struct {
	scrapes          *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewRecorder creates the exporter collectors and registers them with registry.
func NewRecorder(registry prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		scrapes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of requests served, by handler.",
			},
			[]string{"handler"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of metrics API requests, by resource and status code.",
			},
			[]string{"resource", "code"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Latency of metrics API requests, by resource.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
	}

	for _, c := range []prometheus.Collector{r.scrapes, r.upstreamRequests, r.upstreamDuration} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveRequest counts one request served by handler.
func (r *Recorder) ObserveRequest(handler string) {
	if r == nil {
		return
	}
	r.scrapes.WithLabelValues(handler).Inc()
}

// ObserveUpstream records the outcome and latency of one upstream call.
// A non-nil err is recorded with code "error".
func (r *Recorder) ObserveUpstream(resource string, statusCode int, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	code := codeError
	if err == nil {
		code = strconv.Itoa(statusCode)
	}
	r.upstreamRequests.WithLabelValues(resource, code).Inc()
	r.upstreamDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	utilruntime.Must(registry.Register(collectors.NewGoCollector()))
	utilruntime.Must(registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})))
	return registry
}

// Handler serves the registry on /metrics.
func Handler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return mux
}

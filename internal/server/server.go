package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mehdiazizian/metrics-server-prom/internal/telemetry"
)

const indexPage = `<html>
<head><title>metrics-server-prom</title></head>
<body>
    <h1>metrics-server-prom</h1>
    <ul>
        <li><a href='/metrics'>metrics</a></li>
        <li><a href='/healthz'>healthz</a></li>
    </ul>
</body>
</html>
`

// MetricsCollector produces the converted metrics and the upstream health.
type MetricsCollector interface {
	Collect(ctx context.Context) string
	Healthy(ctx context.Context) bool
}

// Server exposes the converted metrics, a liveness endpoint and an index page.
type Server struct {
	collector MetricsCollector
	recorder  *telemetry.Recorder
}

// NewServer constructs a server. recorder may be nil.
func NewServer(collector MetricsCollector, recorder *telemetry.Recorder) *Server {
	return &Server{
		collector: collector,
		recorder:  recorder,
	}
}

// Handler returns the routes of the exporter.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.recorder.ObserveRequest("index")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

// handleMetrics always answers 200, upstream failures only shrink the output.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.recorder.ObserveRequest("metrics")
	body := s.collector.Collect(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.recorder.ObserveRequest("healthz")
	status, health := http.StatusOK, "ok"
	if !s.collector.Healthy(r.Context()) {
		status, health = http.StatusServiceUnavailable, "failed"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(health))
}

// ListenAndServe runs an HTTP server on addr until ctx is cancelled, then
// shuts it down, waiting at most shutdownTimeout for in-flight requests.
func ListenAndServe(ctx context.Context, name, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	logger := log.FromContext(ctx).WithName(name)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Requests inherit the logger but not the cancellation of ctx
		BaseContext: func(_ net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server failed: %w", name, err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", name, err)
	}
	return nil
}

package metrics

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mehdiazizian/metrics-server-prom/internal/telemetry"
	"github.com/mehdiazizian/metrics-server-prom/internal/transport"
)

// Collector fetches node and pod metrics from the metrics API and converts
// them into exposition text
type Collector struct {
	Source transport.MetricsSource
	// Timeout bounds each upstream fetch, zero means no extra bound
	Timeout  time.Duration
	Recorder *telemetry.Recorder
}

var resources = []transport.Resource{transport.ResourceNodes, transport.ResourcePods}

type fetchResult struct {
	resource transport.Resource
	resp     *transport.Response
	err      error
}

func (r fetchResult) statusCode() int {
	if r.resp == nil {
		return 0
	}
	return r.resp.StatusCode
}

// Collect renders node metrics followed by pod metrics. Upstream failures
// never surface as errors: the affected block is rendered without series.
func (c *Collector) Collect(ctx context.Context) string {
	logger := log.FromContext(ctx).WithName("collector")

	results := c.fetchAll(ctx)
	nodes := Decode(bodyOf(logger, results[transport.ResourceNodes]))
	pods := Decode(bodyOf(logger, results[transport.ResourcePods]))

	return RenderNodeMetrics(nodes) + "\n" + RenderPodMetrics(pods)
}

// Healthy reports whether both the node and the pod endpoints answer 200.
func (c *Collector) Healthy(ctx context.Context) bool {
	logger := log.FromContext(ctx).WithName("collector")

	healthy := true
	results := c.fetchAll(ctx)
	for _, resource := range resources {
		result := results[resource]
		if result.err != nil || !result.resp.OK() {
			logger.Info("Metrics API endpoint unhealthy",
				"resource", resource,
				"status", result.statusCode(),
				"error", errString(result.err))
			healthy = false
		}
	}
	return healthy
}

// fetchAll queries every resource in parallel
func (c *Collector) fetchAll(ctx context.Context) map[transport.Resource]fetchResult {
	fetched := make([]fetchResult, len(resources))

	var g errgroup.Group
	for i, resource := range resources {
		i, resource := i, resource
		g.Go(func() error {
			fetched[i] = c.fetch(ctx, resource)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[transport.Resource]fetchResult, len(resources))
	for i, resource := range resources {
		results[resource] = fetched[i]
	}
	return results
}

func (c *Collector) fetch(ctx context.Context, resource transport.Resource) fetchResult {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.Source.Fetch(ctx, resource)
	result := fetchResult{resource: resource, resp: resp, err: err}
	c.Recorder.ObserveUpstream(string(resource), result.statusCode(), err, time.Since(start))
	return result
}

// bodyOf returns the body of a successful fetch, or nil so the decoder
// yields an empty document
func bodyOf(logger logr.Logger, result fetchResult) []byte {
	if result.err != nil {
		logger.Error(result.err, "Failed to fetch metrics", "resource", result.resource)
		return nil
	}
	if !result.resp.OK() {
		logger.Info("Metrics API returned non-OK status",
			"resource", result.resource,
			"status", result.statusCode())
		return nil
	}
	return result.resp.Body
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Package metrics turns the JSON served by the Kubernetes metrics API
// (metrics.k8s.io node and pod metrics) into Prometheus text exposition.
// It decodes payloads tolerantly, normalizes unit-suffixed values into base
// units and renders one labeled series per node, or per pod container, for
// both CPU and memory usage.
package metrics

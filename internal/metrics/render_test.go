package metrics_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/mehdiazizian/metrics-server-prom/internal/metrics"
)

const nodeHeaders = `# HELP kube_metrics_server_node_cpu The CPU time of a node in seconds.
# TYPE kube_metrics_server_node_cpu gauge
# HELP kube_metrics_server_node_mem The memory of a node in Bytes.
# TYPE kube_metrics_server_node_mem gauge`

const podHeaders = `# HELP kube_metrics_server_pod_cpu The CPU time of a pod in seconds.
# TYPE kube_metrics_server_pod_cpu gauge
# HELP kube_metrics_server_pod_mem The memory of a pod in Bytes.
# TYPE kube_metrics_server_pod_mem gauge`

func parseExposition(text string) map[string]*dto.MetricFamily {
	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(strings.NewReader(text + "\n"))
	Expect(err).ToNot(HaveOccurred())
	return families
}

func labelsOf(m *dto.Metric) map[string]string {
	labels := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	return labels
}

var _ = Describe("RenderNodeMetrics", func() {
	It("renders only the four header lines for an empty document", func() {
		out := metrics.RenderNodeMetrics(metrics.Decode(nil))
		Expect(out).To(Equal(nodeHeaders))
		Expect(strings.Split(out, "\n")).To(HaveLen(4))
	})

	It("renders cpu and mem series with normalized values", func() {
		doc := metrics.MetricsDocument{Items: []metrics.ResourceSample{{
			Name:              "worker-1",
			CreationTimestamp: "2024-05-01T10:00:00Z",
			Timestamp:         "2024-05-01T09:59:45Z",
			Window:            "30s",
			Usage:             metrics.Usage{CPU: "250m", Memory: "2048Ki"},
		}}}

		Expect(metrics.RenderNodeMetrics(doc)).To(Equal(strings.Join([]string{
			"# HELP kube_metrics_server_node_cpu The CPU time of a node in seconds.",
			"# TYPE kube_metrics_server_node_cpu gauge",
			`kube_metrics_server_node_cpu{node="worker-1",created="2024-05-01T10:00:00Z",timestamp="2024-05-01T09:59:45Z",window="30s",debugval="250m"} 15000`,
			"# HELP kube_metrics_server_node_mem The memory of a node in Bytes.",
			"# TYPE kube_metrics_server_node_mem gauge",
			`kube_metrics_server_node_mem{node="worker-1",created="2024-05-01T10:00:00Z",timestamp="2024-05-01T09:59:45Z",window="30s",debugval="2048Ki"} 2097152`,
		}, "\n")))
	})

	It("keeps the whole cpu family ahead of the mem family", func() {
		lines := strings.Split(metrics.RenderNodeMetrics(metrics.Decode([]byte(nodeMetricsJSON))), "\n")

		Expect(lines).To(HaveLen(8))
		Expect(lines[0]).To(HavePrefix("# HELP kube_metrics_server_node_cpu"))
		Expect(lines[1]).To(HavePrefix("# TYPE kube_metrics_server_node_cpu"))
		Expect(lines[2]).To(HavePrefix(`kube_metrics_server_node_cpu{node="worker-1"`))
		Expect(lines[3]).To(HavePrefix(`kube_metrics_server_node_cpu{node="worker-2"`))
		Expect(lines[4]).To(HavePrefix("# HELP kube_metrics_server_node_mem"))
		Expect(lines[5]).To(HavePrefix("# TYPE kube_metrics_server_node_mem"))
		Expect(lines[6]).To(HavePrefix(`kube_metrics_server_node_mem{node="worker-1"`))
		Expect(lines[7]).To(HavePrefix(`kube_metrics_server_node_mem{node="worker-2"`))
	})

	It("produces text accepted by the Prometheus parser", func() {
		families := parseExposition(metrics.RenderNodeMetrics(metrics.Decode([]byte(nodeMetricsJSON))))

		Expect(families).To(HaveKey(metrics.NodeCPUFamily))
		Expect(families).To(HaveKey(metrics.NodeMemFamily))

		cpu := families[metrics.NodeCPUFamily]
		Expect(cpu.GetType()).To(Equal(dto.MetricType_GAUGE))
		Expect(cpu.GetMetric()).To(HaveLen(2))
		Expect(cpu.GetMetric()[0].GetGauge().GetValue()).To(Equal(15000.0))
		Expect(labelsOf(cpu.GetMetric()[0])).To(Equal(map[string]string{
			"node":      "worker-1",
			"created":   "2024-05-01T10:00:00Z",
			"timestamp": "2024-05-01T09:59:45Z",
			"window":    "30s",
			"debugval":  "250m",
		}))

		mem := families[metrics.NodeMemFamily]
		Expect(mem.GetMetric()[1].GetGauge().GetValue()).To(Equal(3145728.0))
	})

	It("renders an empty value for missing usage", func() {
		out := metrics.RenderNodeMetrics(metrics.Decode([]byte(`{"items": [{"metadata": {"name": "bare"}}]}`)))

		Expect(out).To(ContainSubstring(
			`kube_metrics_server_node_cpu{node="bare",created="",timestamp="",window="",debugval=""} ` + "\n"))
		Expect(out).To(HaveSuffix(
			`kube_metrics_server_node_mem{node="bare",created="",timestamp="",window="",debugval=""} `))
	})

	It("passes unrecognized values through", func() {
		doc := metrics.MetricsDocument{Items: []metrics.ResourceSample{{
			Name:  "n",
			Usage: metrics.Usage{CPU: "123456789n", Memory: "42"},
		}}}

		out := metrics.RenderNodeMetrics(doc)
		Expect(out).To(ContainSubstring(`debugval="123456789n"} 123456789n`))
		Expect(out).To(ContainSubstring(`debugval="42"} 42`))
	})

	It("escapes label values", func() {
		doc := metrics.MetricsDocument{Items: []metrics.ResourceSample{{
			Name:  "we\"ird\\node\nname",
			Usage: metrics.Usage{CPU: "1m", Memory: "1Ki"},
		}}}

		out := metrics.RenderNodeMetrics(doc)
		Expect(out).To(ContainSubstring(`node="we\"ird\\node\nname"`))

		families := parseExposition(out)
		Expect(labelsOf(families[metrics.NodeCPUFamily].GetMetric()[0])["node"]).To(Equal("we\"ird\\node\nname"))
	})

	It("is deterministic", func() {
		doc := metrics.Decode([]byte(nodeMetricsJSON))
		Expect(metrics.RenderNodeMetrics(doc)).To(Equal(metrics.RenderNodeMetrics(doc)))
	})

	It("does not modify the document", func() {
		doc := metrics.Decode([]byte(nodeMetricsJSON))
		_ = metrics.RenderNodeMetrics(doc)
		Expect(doc.Items[0].Usage).To(Equal(metrics.Usage{CPU: "250m", Memory: "2048Ki"}))
	})
})

var _ = Describe("RenderPodMetrics", func() {
	It("renders only the four header lines for an empty document", func() {
		Expect(metrics.RenderPodMetrics(metrics.Decode([]byte("{")))).To(Equal(podHeaders))
	})

	It("renders one series per container in container order", func() {
		lines := strings.Split(metrics.RenderPodMetrics(metrics.Decode([]byte(podMetricsJSON))), "\n")

		Expect(lines).To(Equal([]string{
			"# HELP kube_metrics_server_pod_cpu The CPU time of a pod in seconds.",
			"# TYPE kube_metrics_server_pod_cpu gauge",
			`kube_metrics_server_pod_cpu{pod="web-7f9c",container="app",namespace="shop",created="2024-05-01T10:00:00Z",timestamp="2024-05-01T09:59:40Z",window="1m0s",debugval="5m"} 300`,
			`kube_metrics_server_pod_cpu{pod="web-7f9c",container="sidecar",namespace="shop",created="2024-05-01T10:00:00Z",timestamp="2024-05-01T09:59:40Z",window="1m0s",debugval="2m"} 120`,
			"# HELP kube_metrics_server_pod_mem The memory of a pod in Bytes.",
			"# TYPE kube_metrics_server_pod_mem gauge",
			`kube_metrics_server_pod_mem{pod="web-7f9c",container="app",namespace="shop",created="2024-05-01T10:00:00Z",timestamp="2024-05-01T09:59:40Z",window="1m0s",debugval="1024Ki"} 1048576`,
			`kube_metrics_server_pod_mem{pod="web-7f9c",container="sidecar",namespace="shop",created="2024-05-01T10:00:00Z",timestamp="2024-05-01T09:59:40Z",window="1m0s",debugval="1Mi"} 1048576`,
		}))
	})

	It("iterates pods before containers", func() {
		doc := metrics.MetricsDocument{Items: []metrics.ResourceSample{
			{Name: "a", Containers: []metrics.ContainerUsage{{Name: "a1"}, {Name: "a2"}}},
			{Name: "b", Containers: []metrics.ContainerUsage{{Name: "b1"}}},
		}}

		var order []string
		for _, s := range metrics.PodSeries(doc) {
			if s.Family != metrics.PodCPUFamily {
				continue
			}
			order = append(order, s.Labels[0].Value+"/"+s.Labels[1].Value)
		}
		Expect(order).To(Equal([]string{"a/a1", "a/a2", "b/b1"}))
	})

	It("uses the same label keys in the same order for every series", func() {
		for _, s := range metrics.PodSeries(metrics.Decode([]byte(podMetricsJSON))) {
			var keys []string
			for _, l := range s.Labels {
				keys = append(keys, l.Name)
			}
			Expect(keys).To(Equal([]string{"pod", "container", "namespace", "created", "timestamp", "window", "debugval"}))
		}
	})

	It("produces text accepted by the Prometheus parser", func() {
		families := parseExposition(metrics.RenderPodMetrics(metrics.Decode([]byte(podMetricsJSON))))

		Expect(families[metrics.PodCPUFamily].GetMetric()).To(HaveLen(2))
		Expect(families[metrics.PodMemFamily].GetMetric()).To(HaveLen(2))
		Expect(labelsOf(families[metrics.PodMemFamily].GetMetric()[1])).To(HaveKeyWithValue("container", "sidecar"))
	})
})

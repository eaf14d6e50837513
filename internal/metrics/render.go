package metrics

import (
	"strings"
)

// Metric family names.
const (
	NodeCPUFamily = "kube_metrics_server_node_cpu"
	NodeMemFamily = "kube_metrics_server_node_mem"
	PodCPUFamily  = "kube_metrics_server_pod_cpu"
	PodMemFamily  = "kube_metrics_server_pod_mem"
)

type family struct {
	name string
	help string
}

var (
	nodeFamilies = []family{
		{name: NodeCPUFamily, help: "The CPU time of a node in seconds."},
		{name: NodeMemFamily, help: "The memory of a node in Bytes."},
	}
	podFamilies = []family{
		{name: PodCPUFamily, help: "The CPU time of a pod in seconds."},
		{name: PodMemFamily, help: "The memory of a pod in Bytes."},
	}
)

// labelValueEscaper escapes label values as required by the text format.
var labelValueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)

// String renders the series as a single exposition line.
func (s Series) String() string {
	var b strings.Builder
	b.WriteString(s.Family)
	b.WriteByte('{')
	for i, l := range s.Labels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Name)
		b.WriteString(`="`)
		labelValueEscaper.WriteString(&b, l.Value)
		b.WriteByte('"')
	}
	b.WriteString("} ")
	b.WriteString(s.Value.String())
	return b.String()
}

func newSeries(family string, labels []Label, raw string) Series {
	withRaw := make([]Label, 0, len(labels)+1)
	withRaw = append(withRaw, labels...)
	withRaw = append(withRaw, Label{Name: "debugval", Value: raw})
	return Series{
		Family: family,
		Labels: withRaw,
		Raw:    raw,
		Value:  Normalize(raw),
	}
}

// NodeSeries returns the CPU series of every node followed by the memory
// series of every node, in document order.
func NodeSeries(doc MetricsDocument) []Series {
	cpu := make([]Series, 0, len(doc.Items))
	mem := make([]Series, 0, len(doc.Items))
	for _, node := range doc.Items {
		labels := []Label{
			{Name: "node", Value: node.Name},
			{Name: "created", Value: node.CreationTimestamp},
			{Name: "timestamp", Value: node.Timestamp},
			{Name: "window", Value: node.Window},
		}
		cpu = append(cpu, newSeries(NodeCPUFamily, labels, node.Usage.CPU))
		mem = append(mem, newSeries(NodeMemFamily, labels, node.Usage.Memory))
	}
	return append(cpu, mem...)
}

// PodSeries returns one CPU series per container of every pod followed by
// the matching memory series. Pods without containers produce nothing.
func PodSeries(doc MetricsDocument) []Series {
	var cpu, mem []Series
	for _, pod := range doc.Items {
		for _, container := range pod.Containers {
			labels := []Label{
				{Name: "pod", Value: pod.Name},
				{Name: "container", Value: container.Name},
				{Name: "namespace", Value: pod.Namespace},
				{Name: "created", Value: pod.CreationTimestamp},
				{Name: "timestamp", Value: pod.Timestamp},
				{Name: "window", Value: pod.Window},
			}
			cpu = append(cpu, newSeries(PodCPUFamily, labels, container.Usage.CPU))
			mem = append(mem, newSeries(PodMemFamily, labels, container.Usage.Memory))
		}
	}
	return append(cpu, mem...)
}

// RenderNodeMetrics renders node usage as newline separated exposition text.
func RenderNodeMetrics(doc MetricsDocument) string {
	return render(nodeFamilies, NodeSeries(doc))
}

// RenderPodMetrics renders per container pod usage as newline separated
// exposition text.
func RenderPodMetrics(doc MetricsDocument) string {
	return render(podFamilies, PodSeries(doc))
}

// render writes each family's HELP and TYPE lines followed by its series.
// There is no trailing newline.
func render(families []family, series []Series) string {
	lines := make([]string, 0, 2*len(families)+len(series))
	for _, f := range families {
		lines = append(lines,
			"# HELP "+f.name+" "+f.help,
			"# TYPE "+f.name+" gauge",
		)
		for _, s := range series {
			if s.Family == f.name {
				lines = append(lines, s.String())
			}
		}
	}
	return strings.Join(lines, "\n")
}

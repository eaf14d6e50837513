package metrics

// MetricsDocument is the decoded top-level payload of a metrics list.
// Items is never nil after Decode.
type MetricsDocument struct {
	Items []ResourceSample
}

// ResourceSample is one node or one pod snapshot.
// Every string field defaults to "" when absent upstream.
type ResourceSample struct {
	// Name is metadata.name
	Name string
	// Namespace is metadata.namespace, empty for nodes
	Namespace string
	// CreationTimestamp is metadata.creationTimestamp, passed through as is
	CreationTimestamp string
	// Timestamp is the observation instant of the sample
	Timestamp string
	// Window is the sampling interval
	Window string

	// Usage is set for nodes
	Usage Usage
	// Containers is set for pods, defaults to an empty list
	Containers []ContainerUsage
}

// ContainerUsage is the usage of a single container inside a pod sample.
type ContainerUsage struct {
	Name  string
	Usage Usage
}

// Usage holds the raw upstream strings, e.g. "250m" or "1024Ki".
// They are normalized only when rendered.
type Usage struct {
	CPU    string
	Memory string
}

// Label is one key/value pair of a series identity.
type Label struct {
	Name  string
	Value string
}

// Series is a single rendered exposition line.
type Series struct {
	Family string
	Labels []Label
	Raw    string
	Value  Value
}

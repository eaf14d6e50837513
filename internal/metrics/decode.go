package metrics

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// Decode parses a metrics list payload. It never fails: a body that is not a
// JSON object (empty, truncated, an HTML error page, "null") yields a
// document without items, and any field that is missing or of the wrong type
// falls back to its zero value.
func Decode(data []byte) MetricsDocument {
	doc := MetricsDocument{Items: []ResourceSample{}}

	var obj map[string]interface{}
	if err := utiljson.Unmarshal(data, &obj); err != nil {
		return doc
	}

	for _, item := range nestedObjects(obj, "items") {
		doc.Items = append(doc.Items, decodeSample(item))
	}
	return doc
}

func decodeSample(obj map[string]interface{}) ResourceSample {
	sample := ResourceSample{
		Name:              nestedString(obj, "metadata", "name"),
		Namespace:         nestedString(obj, "metadata", "namespace"),
		CreationTimestamp: nestedString(obj, "metadata", "creationTimestamp"),
		Timestamp:         nestedString(obj, "timestamp"),
		Window:            nestedString(obj, "window"),
		Usage:             decodeUsage(obj),
		Containers:        []ContainerUsage{},
	}

	for _, c := range nestedObjects(obj, "containers") {
		sample.Containers = append(sample.Containers, ContainerUsage{
			Name:  nestedString(c, "name"),
			Usage: decodeUsage(c),
		})
	}
	return sample
}

func decodeUsage(obj map[string]interface{}) Usage {
	return Usage{
		CPU:    nestedString(obj, "usage", "cpu"),
		Memory: nestedString(obj, "usage", "memory"),
	}
}

// nestedString returns the string at fields, or "" if it is absent or not a string.
func nestedString(obj map[string]interface{}, fields ...string) string {
	val, found, err := unstructured.NestedString(obj, fields...)
	if !found || err != nil {
		return ""
	}
	return val
}

// nestedObjects returns the JSON objects of the list at fields in order.
// Non-object elements are skipped; a missing or non-list field yields nil.
func nestedObjects(obj map[string]interface{}, fields ...string) []map[string]interface{} {
	val, found, err := unstructured.NestedFieldNoCopy(obj, fields...)
	if !found || err != nil {
		return nil
	}
	list, ok := val.([]interface{})
	if !ok {
		return nil
	}

	objects := make([]map[string]interface{}, 0, len(list))
	for _, elem := range list {
		if m, ok := elem.(map[string]interface{}); ok {
			objects = append(objects, m)
		}
	}
	return objects
}
